package automaton

import (
	"strings"
	"sync"
	"testing"
)

// trainFromString is a helper for tests that need a model without caring
// about the io.Reader plumbing.
func trainFromString(t *testing.T, text string, opts ...TrainOption) *Automaton {
	t.Helper()
	a, err := Train(strings.NewReader(text), opts...)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	return a
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus builds a few hundred kilobytes of repetitive but
// non-trivial prose so benchmarks exercise realistic state tables.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		paragraphs := []string{
			"the quick brown fox jumps over the lazy dog while the dog dreams of faster foxes.",
			"pack my box with five dozen liquor jugs, then pack another box just to be sure.",
			"sphinx of black quartz, judge my vow; the vow was judged and found wanting.",
			"how vexingly quick daft zebras jump when the jungle drums begin to sound.",
		}
		var sb strings.Builder
		for i := 0; i < 400; i++ {
			sb.WriteString(paragraphs[i%len(paragraphs)])
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
