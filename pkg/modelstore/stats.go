package modelstore

import (
	"context"
)

// StoreStats holds aggregated statistics for the entire database, including
// a list of all models and their individual stats.
type StoreStats struct {
	Models []ModelInfo        // A list of models in the database
	Stats  map[int]ModelStats // A mapping of model ids to their stats
}

// ModelStats holds aggregated statistics for a single stored model.
type ModelStats struct {
	Contexts    int // The number of distinct contexts the model knows.
	Transitions int // The total number of stored context->successor entries.
}

// GetStats returns a snapshot of statistics for the entire database,
// including per-model state and transition counts.
func (s *Store) GetStats(ctx context.Context) (*StoreStats, error) {
	models, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	modelStats := make(map[int]ModelStats)
	for _, model := range models {
		var contexts, transitions int
		if err = s.stmtCountContexts.QueryRowContext(ctx, model.Id).Scan(&contexts); err != nil {
			return nil, err
		}
		if err = s.stmtCountChains.QueryRowContext(ctx, model.Id).Scan(&transitions); err != nil {
			return nil, err
		}
		modelStats[model.Id] = ModelStats{
			Contexts:    contexts,
			Transitions: transitions,
		}
	}

	return &StoreStats{
		Models: models,
		Stats:  modelStats,
	}, nil
}
