package automaton

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// TrainOption configures a single call to Train.
type TrainOption func(*trainOptions)

type trainOptions struct {
	order      int
	ignoreCase bool
	logger     *slog.Logger
}

// WithOrder sets the context window length in characters. The default is
// DefaultOrder.
func WithOrder(order int) TrainOption {
	return func(o *trainOptions) {
		o.order = order
	}
}

// WithIgnoreCase preserves the original letter case of the training text
// instead of lowercasing it.
func WithIgnoreCase(ignoreCase bool) TrainOption {
	return func(o *trainOptions) {
		o.ignoreCase = ignoreCase
	}
}

// WithLogger routes training progress logs to the given logger. By default
// Train is silent.
func WithLogger(logger *slog.Logger) TrainOption {
	return func(o *trainOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// successorCounts accumulates raw observation counts for one context while
// remembering the order in which successors first appeared.
type successorCounts struct {
	seen   []rune
	counts map[rune]int
}

type countTable struct {
	start  string
	states map[string]*successorCounts
}

func newCountTable() *countTable {
	return &countTable{states: make(map[string]*successorCounts)}
}

func (t *countTable) add(context string, next rune) {
	if len(t.states) == 0 {
		t.start = context
	}
	sc, ok := t.states[context]
	if !ok {
		sc = &successorCounts{counts: make(map[rune]int)}
		t.states[context] = sc
	}
	if _, ok := sc.counts[next]; !ok {
		sc.seen = append(sc.seen, next)
	}
	sc.counts[next]++
}

// normalize converts the accumulated counts into probability distributions,
// taking ownership of the successor slices. The table must not be used
// afterwards.
func (t *countTable) normalize(order int) *Automaton {
	states := make(map[string]Transitions, len(t.states))
	for context, sc := range t.states {
		total := 0
		for _, n := range sc.counts {
			total += n
		}
		probs := make([]float64, len(sc.seen))
		for i, c := range sc.seen {
			probs[i] = float64(sc.counts[c]) / float64(total)
		}
		states[context] = Transitions{Successors: sc.seen, Probabilities: probs}
	}
	return &Automaton{Order: order, Start: t.start, States: states}
}

// Train builds a character-level Markov model from the text in r. The text
// is streamed through a Filter, so arbitrarily large inputs train in memory
// proportional to the number of distinct contexts, not the input size.
//
// The first full context of the filtered text becomes the model's start
// context. Training fails with ErrInsufficientData when the filtered text
// is too short to observe a single transition at the requested order.
func Train(r io.Reader, opts ...TrainOption) (*Automaton, error) {
	options := &trainOptions{
		order:  DefaultOrder,
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.order < 1 {
		return nil, fmt.Errorf("%w: order must be at least 1, got %d", ErrInvalidParameter, options.order)
	}

	start := time.Now()
	filter := NewFilter(r, options.ignoreCase)

	// Prime the sliding window with the first full context.
	window := make([]rune, 0, options.order)
	for len(window) < options.order {
		c, err := filter.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: need more than %d characters after filtering, got %d",
				ErrInsufficientData, options.order, len(window))
		}
		if err != nil {
			return nil, err
		}
		window = append(window, c)
	}

	table := newCountTable()
	transitions := 0
	key := string(window)
	for {
		c, err := filter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		table.add(key, c)
		transitions++
		window = append(window[1:], c)
		key = string(window)
	}
	if len(table.states) == 0 {
		// Priming swallowed the wrap-around character too, so the real text
		// was still shorter than the order.
		return nil, fmt.Errorf("%w: need more than %d characters after filtering",
			ErrInsufficientData, options.order)
	}

	a := table.normalize(options.order)
	options.logger.Info("training complete",
		slog.Int("order", options.order),
		slog.Int("states", len(a.States)),
		slog.Int("transitions", transitions),
		slog.String("start_context", a.Start),
		slog.Duration("elapsed", time.Since(start)),
	)
	return a, nil
}
