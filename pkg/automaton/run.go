package automaton

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Defaults applied by Run and by the command line front end.
const (
	DefaultLength = 120
	DefaultOrder  = 3
)

// Request describes one end-to-end generation run: where the model comes
// from, how it is built, and how much text to produce.
type Request struct {
	// Length is the number of characters to generate. Zero produces an
	// empty string.
	Length int
	// Order is the context window length used when training from raw
	// text. Zero means DefaultOrder. Ignored when loading a saved model.
	Order int
	// Source is the path to either a raw training text or a saved model,
	// depending on TrainFromRaw.
	Source string
	// Seed, when non-nil, makes the run deterministic.
	Seed *int64
	// TrainFromRaw treats Source as raw text to train on instead of a
	// saved model to load.
	TrainFromRaw bool
	// IgnoreCase preserves the letter case of the training text.
	IgnoreCase bool
	// Export saves the freshly trained model next to Source, or to
	// ExportPath when set. Only meaningful together with TrainFromRaw.
	Export bool
	// ExportPath overrides the default export location.
	ExportPath string
}

// Run executes a full generation request: obtain a model, optionally
// persist it, and walk it for the requested number of characters. Extra
// walker options, such as WithTemperature, are applied on top of the seed
// from the request.
func Run(req Request, logger *slog.Logger, walkOpts ...WalkerOption) (string, error) {
	if logger == nil {
		logger = discardLogger()
	}
	start := time.Now()

	var a *Automaton
	if req.TrainFromRaw {
		order := req.Order
		if order == 0 {
			order = DefaultOrder
		}
		f, err := os.Open(req.Source)
		if err != nil {
			return "", fmt.Errorf("failed to open training text: %w", err)
		}
		a, err = Train(f,
			WithOrder(order),
			WithIgnoreCase(req.IgnoreCase),
			WithLogger(logger),
		)
		closeErr := f.Close()
		if err != nil {
			return "", fmt.Errorf("training from %s: %w", req.Source, err)
		}
		if closeErr != nil {
			return "", closeErr
		}

		if req.Export {
			path := req.ExportPath
			if path == "" {
				path = DefaultExportPath(req.Source)
			}
			saveStart := time.Now()
			if err := a.SaveFile(path); err != nil {
				return "", err
			}
			logger.Info("model exported",
				slog.String("path", path),
				slog.Duration("elapsed", time.Since(saveStart)),
			)
		}
	} else {
		loadStart := time.Now()
		var err error
		a, err = LoadFile(req.Source)
		if err != nil {
			return "", err
		}
		logger.Info("model loaded",
			slog.String("path", req.Source),
			slog.Int("order", a.Order),
			slog.Int("states", len(a.States)),
			slog.Duration("elapsed", time.Since(loadStart)),
		)
	}

	opts := walkOpts
	if req.Seed != nil {
		opts = append([]WalkerOption{WithSeed(*req.Seed)}, opts...)
	}
	walker := NewWalker(a, opts...)
	walker.SetLogger(logger)

	text, err := walker.Generate(req.Length)
	if err != nil {
		return "", err
	}
	logger.Info("generation complete",
		slog.Int("length", req.Length),
		slog.Int("walk_resets", walker.Resets()),
		slog.Duration("total_elapsed", time.Since(start)),
	)
	return text, nil
}

// DefaultExportPath is where Run saves a trained model when no explicit
// export path is given: the training text's path with its extension
// replaced by ".model.json".
func DefaultExportPath(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".model.json"
}
