package automaton

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/natefinch/atomic"
)

// exportedAutomaton is the on-disk shape of a model. Successors are encoded
// as single-character strings because JSON has no rune type; contexts are
// the map keys, which encoding/json writes in sorted order so the output is
// stable across runs.
type exportedAutomaton struct {
	Order  int                      `json:"order"`
	Start  string                   `json:"start"`
	States map[string]exportedState `json:"states"`
}

type exportedState struct {
	Successors    []string  `json:"successors"`
	Probabilities []float64 `json:"probabilities"`
}

// Export writes the model to w as indented JSON.
func (a *Automaton) Export(w io.Writer) error {
	out := exportedAutomaton{
		Order:  a.Order,
		Start:  a.Start,
		States: make(map[string]exportedState, len(a.States)),
	}
	for context, tr := range a.States {
		succ := make([]string, len(tr.Successors))
		for i, c := range tr.Successors {
			succ[i] = string(c)
		}
		out.States[context] = exportedState{Successors: succ, Probabilities: tr.Probabilities}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// Import reads a model in the format written by Export and validates it.
// Any structural problem, from broken JSON to probabilities that do not
// sum to one, is reported as an error wrapping ErrMalformedModel.
func Import(r io.Reader) (*Automaton, error) {
	var in exportedAutomaton
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedModel, err)
	}

	a := &Automaton{
		Order:  in.Order,
		Start:  in.Start,
		States: make(map[string]Transitions, len(in.States)),
	}
	for context, st := range in.States {
		succ := make([]rune, len(st.Successors))
		for i, s := range st.Successors {
			if utf8.RuneCountInString(s) != 1 {
				return nil, fmt.Errorf("%w: context %q successor %q is not a single character",
					ErrMalformedModel, context, s)
			}
			c, _ := utf8.DecodeRuneInString(s)
			succ[i] = c
		}
		a.States[context] = Transitions{Successors: succ, Probabilities: st.Probabilities}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// SaveFile writes the model to path atomically, so a crash mid-write never
// leaves a truncated model behind.
func (a *Automaton) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := a.Export(&buf); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write model file %s: %w", path, err)
	}
	return nil
}

// LoadFile reads and validates a model previously written with SaveFile.
func LoadFile(path string) (*Automaton, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	a, err := Import(f)
	if err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	return a, nil
}
