package automaton

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WalkerOption configures a Walker at construction time.
type WalkerOption func(*Walker)

// WithSeed gives the walker a deterministic random source. Two walkers
// built from the same model with the same seed produce identical output.
func WithSeed(seed int64) WalkerOption {
	return func(w *Walker) {
		w.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	}
}

// WithRand hands the walker a caller-owned random source. The walker uses
// it exclusively; sharing one source between walkers makes their output
// interleave unpredictably.
func WithRand(rng *rand.Rand) WalkerOption {
	return func(w *Walker) {
		w.rng = rng
	}
}

// WithTemperature adjusts how adventurous sampling is. 1.0 samples the
// trained distribution as-is, values below 1.0 sharpen it towards the most
// likely successors, values above flatten it. 0 or below always picks the
// single most probable successor.
func WithTemperature(temperature float64) WalkerOption {
	return func(w *Walker) {
		w.temperature = temperature
	}
}

// WithTopK restricts sampling to the k most probable successors of each
// context. 0 disables the restriction.
func WithTopK(k int) WalkerOption {
	return func(w *Walker) {
		w.topK = k
	}
}

// A Walker generates text by walking a trained Automaton. It owns its
// random source, so concurrent generation needs one Walker per goroutine;
// the underlying Automaton can be shared by any number of walkers.
type Walker struct {
	a           *Automaton
	rng         *rand.Rand
	logger      *slog.Logger
	temperature float64
	topK        int
	resets      int
}

// NewWalker builds a Walker over a. Without WithSeed or WithRand the walker
// seeds itself from the global source, so every walker produces a different
// stream.
func NewWalker(a *Automaton, opts ...WalkerOption) *Walker {
	w := &Walker{
		a:           a,
		logger:      discardLogger(),
		temperature: 1.0,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.rng == nil {
		w.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return w
}

// SetLogger replaces the logger for this walker. By default walkers are
// silent.
func (w *Walker) SetLogger(logger *slog.Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Resets reports how many times generation fell back to the start context
// because the walk assembled a context the model never observed.
func (w *Walker) Resets() int {
	return w.resets
}

// Generate walks the model from its start context and returns exactly
// length characters. A zero length returns the empty string; a negative
// length is an error.
//
// When the walk reaches a context with no recorded transitions it resets
// to the start context and continues, so the output always reaches the
// requested length.
func (w *Walker) Generate(length int) (string, error) {
	if length < 0 {
		return "", fmt.Errorf("%w: length must not be negative, got %d", ErrInvalidParameter, length)
	}
	if length == 0 {
		return "", nil
	}
	if _, ok := w.a.States[w.a.Start]; !ok {
		return "", fmt.Errorf("%w: start context %q has no transitions", ErrUnknownContext, w.a.Start)
	}

	var sb strings.Builder
	sb.Grow(length)

	startWindow := []rune(w.a.Start)
	window := append([]rune(nil), startWindow...)
	key := w.a.Start
	for i := 0; i < length; i++ {
		tr, ok := w.a.States[key]
		if !ok {
			w.resets++
			w.logger.Debug("walk reset to start context",
				slog.String("context", key),
				slog.Int("generated", i),
			)
			window = append(window[:0], startWindow...)
			key = w.a.Start
			tr = w.a.States[key]
		}
		c := w.pick(tr)
		sb.WriteRune(c)
		window = append(window[1:], c)
		key = string(window)
	}
	return sb.String(), nil
}

// GenerateStream walks the model like Generate but delivers characters over
// a channel as they are produced. The channel is closed after length
// characters or as soon as ctx is cancelled.
func (w *Walker) GenerateStream(ctx context.Context, length int) (<-chan rune, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: length must not be negative, got %d", ErrInvalidParameter, length)
	}
	if _, ok := w.a.States[w.a.Start]; !ok && length > 0 {
		return nil, fmt.Errorf("%w: start context %q has no transitions", ErrUnknownContext, w.a.Start)
	}

	out := make(chan rune)
	go func() {
		defer close(out)
		startWindow := []rune(w.a.Start)
		window := append([]rune(nil), startWindow...)
		key := w.a.Start
		for i := 0; i < length; i++ {
			tr, ok := w.a.States[key]
			if !ok {
				w.resets++
				w.logger.DebugContext(ctx, "walk reset to start context",
					slog.String("context", key),
					slog.Int("generated", i),
				)
				window = append(window[:0], startWindow...)
				key = w.a.Start
				tr = w.a.States[key]
			}
			c := w.pick(tr)
			select {
			case <-ctx.Done():
				w.logger.DebugContext(ctx, "generation stream cancelled",
					slog.Int("generated", i),
				)
				return
			case out <- c:
			}
			window = append(window[1:], c)
			key = string(window)
		}
	}()
	return out, nil
}

// pick samples one successor from tr using the walker's temperature and
// top-k settings. tr belongs to the shared model, so pick never mutates it.
func (w *Walker) pick(tr Transitions) rune {
	succ, probs := tr.Successors, tr.Probabilities
	total := 1.0
	if w.topK > 0 && w.topK < len(succ) {
		succ, probs, total = topTransitions(succ, probs, w.topK)
	}

	if w.temperature <= 0 {
		best := 0
		for i, p := range probs {
			if p > probs[best] {
				best = i
			}
		}
		return succ[best]
	}

	if w.temperature != 1.0 {
		// Rescale in log space so extreme temperatures stay finite, the
		// same way softmax implementations subtract the max logit.
		logs := make([]float64, len(probs))
		maxLog := math.Inf(-1)
		for i, p := range probs {
			logs[i] = math.Log(p) / w.temperature
			if logs[i] > maxLog {
				maxLog = logs[i]
			}
		}
		weights := make([]float64, len(logs))
		total = 0
		for i, l := range logs {
			weights[i] = math.Exp(l - maxLog)
			total += weights[i]
		}
		probs = weights
	}

	choice := w.rng.Float64() * total
	for i, p := range probs {
		choice -= p
		if choice < 0 {
			return succ[i]
		}
	}
	// Floating point residue can leave choice barely non-negative.
	return succ[len(succ)-1]
}

// topTransitions returns the k most probable successors with their
// probabilities and the retained probability mass, leaving the input
// slices untouched.
func topTransitions(succ []rune, probs []float64, k int) ([]rune, []float64, float64) {
	order := make([]int, len(succ))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return probs[order[i]] > probs[order[j]]
	})

	topSucc := make([]rune, k)
	topProbs := make([]float64, k)
	total := 0.0
	for i, j := range order[:k] {
		topSucc[i] = succ[j]
		topProbs[i] = probs[j]
		total += probs[j]
	}
	return topSucc, topProbs, total
}
