package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CTAG07/Drosera/pkg/automaton"
)

// trainCmd builds a model from a text file and writes it to disk without
// generating anything.
var trainCmd = &cobra.Command{
	Use:   "train [source]",
	Short: "Train a model from a text file and export it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]
		order, _ := cmd.Flags().GetInt("order")
		if !cmd.Flags().Changed("order") && config.Generate.Order > 0 {
			order = config.Generate.Order
		}
		ignoreCase, _ := cmd.Flags().GetBool("ignore-case")
		if !cmd.Flags().Changed("ignore-case") {
			ignoreCase = config.Generate.IgnoreCase
		}

		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("failed to open training text: %w", err)
		}
		a, err := automaton.Train(f,
			automaton.WithOrder(order),
			automaton.WithIgnoreCase(ignoreCase),
			automaton.WithLogger(logger),
		)
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("training from %s: %w", source, err)
		}
		if closeErr != nil {
			return closeErr
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = automaton.DefaultExportPath(source)
		}
		if err = a.SaveFile(output); err != nil {
			return err
		}

		stats := a.Stats()
		fmt.Printf("trained order-%d model: %d states, %d transitions\n", a.Order, stats.States, stats.Transitions)
		fmt.Printf("model written to %s\n", output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().IntP("order", "o", automaton.DefaultOrder, "Order of the Markov chain")
	trainCmd.Flags().BoolP("ignore-case", "c", false, "Preserve the letter case of the training text")
	trainCmd.Flags().StringP("output", "O", "", "Where to write the model; defaults next to the source")
}
