package automaton

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// probTolerance is the largest deviation from 1.0 that a state's probability
// sum may show before the state is considered malformed.
const probTolerance = 1e-9

// Transitions holds the successor distribution observed after one context.
// Successors and Probabilities are parallel slices: Probabilities[i] is the
// chance of Successors[i] following the context. Successors appear in the
// order they were first observed during training, and every probability is
// strictly positive with the whole slice summing to 1.0.
type Transitions struct {
	Successors    []rune
	Probabilities []float64
}

// Automaton is a trained character-level Markov model. Order is the context
// window length in characters, Start is the context a walk begins from, and
// States maps every observed context to its successor distribution.
//
// A trained Automaton is read-only. Walkers may share one freely across
// goroutines as long as nothing mutates it.
type Automaton struct {
	Order  int
	Start  string
	States map[string]Transitions
}

// Validate checks the structural invariants of the model and returns an
// error wrapping ErrMalformedModel on the first violation it finds. Train
// always produces a valid model; Validate exists for models that arrive
// over a deserialization or storage boundary.
func (a *Automaton) Validate() error {
	if a.Order < 1 {
		return fmt.Errorf("%w: order must be at least 1, got %d", ErrMalformedModel, a.Order)
	}
	if len(a.States) == 0 {
		return fmt.Errorf("%w: model has no states", ErrMalformedModel)
	}
	if utf8.RuneCountInString(a.Start) != a.Order {
		return fmt.Errorf("%w: start context %q is not %d characters long", ErrMalformedModel, a.Start, a.Order)
	}
	if _, ok := a.States[a.Start]; !ok {
		return fmt.Errorf("%w: start context %q has no state entry", ErrMalformedModel, a.Start)
	}
	for context, tr := range a.States {
		if utf8.RuneCountInString(context) != a.Order {
			return fmt.Errorf("%w: context %q is not %d characters long", ErrMalformedModel, context, a.Order)
		}
		if len(tr.Successors) == 0 {
			return fmt.Errorf("%w: context %q has no successors", ErrMalformedModel, context)
		}
		if len(tr.Successors) != len(tr.Probabilities) {
			return fmt.Errorf("%w: context %q has %d successors but %d probabilities",
				ErrMalformedModel, context, len(tr.Successors), len(tr.Probabilities))
		}
		sum := 0.0
		for i, p := range tr.Probabilities {
			if p <= 0 {
				return fmt.Errorf("%w: context %q successor %q has non-positive probability %g",
					ErrMalformedModel, context, string(tr.Successors[i]), p)
			}
			sum += p
		}
		if math.Abs(sum-1.0) > probTolerance {
			return fmt.Errorf("%w: context %q probabilities sum to %g", ErrMalformedModel, context, sum)
		}
	}
	return nil
}
