package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CTAG07/Drosera/pkg/automaton"
	"github.com/CTAG07/Drosera/pkg/modelstore"
)

// openStore opens the configured SQLite database, makes sure the schema
// exists, and returns a ready Store. The caller must close both.
func openStore() (*sql.DB, *modelstore.Store, error) {
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := initDB(config.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open model store: %w", err)
	}
	if err = modelstore.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to set up store schema: %w", err)
	}
	store, err := modelstore.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store.SetLogger(logger)
	return db, store, nil
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the named models in the local SQLite store",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored models with their sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { store.Close(); _ = db.Close() }()

		stats, err := store.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		if len(stats.Models) == 0 {
			fmt.Println("no models stored")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tORDER\tSTATES\tTRANSITIONS")
		for _, model := range stats.Models {
			s := stats.Stats[model.Id]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", model.Name, model.Order, s.Contexts, s.Transitions)
		}
		return tw.Flush()
	},
}

var modelsSaveCmd = &cobra.Command{
	Use:   "save [name] [source]",
	Short: "Train a model from a text file and store it under a name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, source := args[0], args[1]
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
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("training from %s: %w", source, err)
		}

		db, store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { store.Close(); _ = db.Close() }()

		info, err := store.SaveModel(cmd.Context(), name, a)
		if err != nil {
			return err
		}
		stats := a.Stats()
		fmt.Printf("stored model %q (order %d, %d states, %d transitions)\n",
			info.Name, info.Order, stats.States, stats.Transitions)
		return nil
	},
}

var modelsExportCmd = &cobra.Command{
	Use:   "export [name]",
	Short: "Export a stored model to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		db, store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { store.Close(); _ = db.Close() }()

		a, err := loadStoredModel(cmd.Context(), store, name)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = name + ".model.json"
		}
		if err = a.SaveFile(output); err != nil {
			return err
		}
		fmt.Printf("model %q written to %s\n", name, output)
		return nil
	},
}

var modelsImportCmd = &cobra.Command{
	Use:   "import [source]",
	Short: "Import a JSON model file into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]
		a, err := automaton.LoadFile(source)
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = modelNameFromPath(source)
		}

		db, store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { store.Close(); _ = db.Close() }()

		info, err := store.SaveModel(cmd.Context(), name, a)
		if err != nil {
			return err
		}
		fmt.Printf("imported model %q (order %d)\n", info.Name, info.Order)
		return nil
	},
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a stored model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		db, store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { store.Close(); _ = db.Close() }()

		info, err := store.GetModelInfo(cmd.Context(), name)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("no stored model named %q", name)
			}
			return err
		}
		if err = store.RemoveModel(cmd.Context(), info); err != nil {
			return err
		}
		fmt.Printf("deleted model %q\n", name)
		return nil
	},
}

// loadStoredModel wraps LoadModel with a friendlier not-found error.
func loadStoredModel(ctx context.Context, store *modelstore.Store, name string) (*automaton.Automaton, error) {
	a, err := store.LoadModel(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no stored model named %q", name)
		}
		return nil, err
	}
	return a, nil
}

// modelNameFromPath derives a store name from a model file path:
// "data/alice.model.json" becomes "alice".
func modelNameFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".json")
	name = strings.TrimSuffix(name, ".model")
	return name
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsSaveCmd)
	modelsCmd.AddCommand(modelsExportCmd)
	modelsCmd.AddCommand(modelsImportCmd)
	modelsCmd.AddCommand(modelsDeleteCmd)

	modelsSaveCmd.Flags().IntP("order", "o", automaton.DefaultOrder, "Order of the Markov chain")
	modelsSaveCmd.Flags().BoolP("ignore-case", "c", false, "Preserve the letter case of the training text")
	modelsExportCmd.Flags().StringP("output", "O", "", "Where to write the model; defaults to <name>.model.json")
	modelsImportCmd.Flags().String("name", "", "Store the model under this name; defaults to the file stem")
}
