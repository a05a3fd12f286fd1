package automaton

// Stats summarizes the size and shape of a trained model.
type Stats struct {
	States       int `json:"states"`
	Transitions  int `json:"transitions"`
	MaxBranching int `json:"max_branching"`
}

// Stats walks the state table once and reports how many contexts the model
// holds, the total number of successor entries, and the widest single
// distribution.
func (a *Automaton) Stats() Stats {
	var s Stats
	s.States = len(a.States)
	for _, tr := range a.States {
		s.Transitions += len(tr.Successors)
		if len(tr.Successors) > s.MaxBranching {
			s.MaxBranching = len(tr.Successors)
		}
	}
	return s
}
