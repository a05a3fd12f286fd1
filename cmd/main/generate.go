package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CTAG07/Drosera/pkg/automaton"
)

// generateCmd is the main entry point: train on a text (or load a saved
// model) and print freshly generated text to stdout.
var generateCmd = &cobra.Command{
	Use:   "generate [source]",
	Short: "Generate text from a training text or a saved model",
	Long: `Generate trains a character-level Markov model on the given text file and
prints generated text to stdout. With --model the source is treated as a
previously exported JSON model instead of raw text.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		length, _ := cmd.Flags().GetInt("length")
		if !cmd.Flags().Changed("length") && config.Generate.Length > 0 {
			length = config.Generate.Length
		}
		order, _ := cmd.Flags().GetInt("order")
		if !cmd.Flags().Changed("order") && config.Generate.Order > 0 {
			order = config.Generate.Order
		}
		ignoreCase, _ := cmd.Flags().GetBool("ignore-case")
		if !cmd.Flags().Changed("ignore-case") {
			ignoreCase = config.Generate.IgnoreCase
		}
		fromModel, _ := cmd.Flags().GetBool("model")
		export, _ := cmd.Flags().GetBool("export")
		exportPath, _ := cmd.Flags().GetString("export-path")

		req := automaton.Request{
			Length:       length,
			Order:        order,
			Source:       args[0],
			TrainFromRaw: !fromModel,
			IgnoreCase:   ignoreCase,
			Export:       export,
			ExportPath:   exportPath,
		}
		if cmd.Flags().Changed("seed") {
			seed, _ := cmd.Flags().GetInt64("seed")
			req.Seed = &seed
		}

		var walkOpts []automaton.WalkerOption
		if cmd.Flags().Changed("temperature") {
			temperature, _ := cmd.Flags().GetFloat64("temperature")
			walkOpts = append(walkOpts, automaton.WithTemperature(temperature))
		}
		if topK, _ := cmd.Flags().GetInt("top-k"); topK > 0 {
			walkOpts = append(walkOpts, automaton.WithTopK(topK))
		}

		text, err := automaton.Run(req, logger, walkOpts...)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntP("length", "l", automaton.DefaultLength, "Length of the generated text in characters")
	generateCmd.Flags().IntP("order", "o", automaton.DefaultOrder, "Order of the Markov chain")
	generateCmd.Flags().Int64P("seed", "s", 0, "Seed for deterministic generation")
	generateCmd.Flags().BoolP("model", "m", false, "Treat the source as an exported JSON model instead of raw text")
	generateCmd.Flags().BoolP("export", "j", false, "Export the trained model as JSON next to the source")
	generateCmd.Flags().String("export-path", "", "Where to write the exported model; defaults next to the source")
	generateCmd.Flags().BoolP("ignore-case", "c", false, "Preserve the letter case of the training text")
	generateCmd.Flags().Float64P("temperature", "t", 1.0, "Sampling temperature; 0 always picks the most likely character")
	generateCmd.Flags().IntP("top-k", "k", 0, "Restrict sampling to the k most likely characters; 0 disables")
}
