package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	config *Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "drosera",
	Short: "Drosera is a character-level Markov chain text generator",
	Long: `Drosera trains character-level Markov chain models from plain text and
generates new text by walking them. Models can be exported as JSON files,
kept in a local SQLite store under stable names, or served over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		c, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = c

		level := config.LogLevel
		if cmd.Flags().Changed("log-level") {
			level, _ = cmd.Flags().GetString("log-level")
		}
		logFile, _ := cmd.Flags().GetString("log-file")
		logger, err = newLogger(level, logFile)
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// newLogger builds the application logger. Logs go to stderr so generated
// text on stdout stays clean, or to a file when one is given.
func newLogger(level, path string) (*slog.Logger, error) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	out := os.Stderr
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel})), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and version information",
	// No config or logger needed, skip the root's setup.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("drosera %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "./config.json", "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides the config file)")
	rootCmd.PersistentFlags().StringP("log-file", "L", "", "Write logs to a file instead of stderr")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	Execute()
}
