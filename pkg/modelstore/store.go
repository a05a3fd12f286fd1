package modelstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/CTAG07/Drosera/pkg/automaton"
)

// ModelInfo holds the essential metadata for a stored model: its database
// ID, its unique name, and the order of the underlying chain.
type ModelInfo struct {
	Id    int
	Name  string
	Order int
}

// SetupSchema initializes the tables used by the store. This function
// should be called once on a new database before any other operations are
// performed. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS automaton_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL,
    start_context TEXT NOT NULL
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS automaton_transitions (
    model_id INTEGER NOT NULL,
    context TEXT NOT NULL,
    position INTEGER NOT NULL,
    successor TEXT NOT NULL,
    probability REAL NOT NULL,
    PRIMARY KEY (model_id, context, position)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if _, err = tx.Exec(schemaTransitions); err != nil {
		return fmt.Errorf("could not create transitions schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store reads and writes automaton models in a SQLite database. It holds
// the database connection and prepared SQL statements for the queries it
// runs.
type Store struct {
	db                   *sql.DB
	stmtGetModelInfo     *sql.Stmt
	stmtGetModels        *sql.Stmt
	stmtUpsertModel      *sql.Stmt
	stmtDeleteModel      *sql.Stmt
	stmtGetTransitions   *sql.Stmt
	stmtInsertTransition *sql.Stmt
	stmtDeleteChains     *sql.Stmt
	stmtCountChains      *sql.Stmt
	stmtCountContexts    *sql.Stmt
	logger               *slog.Logger
}

// NewStore creates and returns a new Store over db. It pre-compiles all
// necessary SQL statements, returning an error if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetModelInfo, err := db.Prepare(`SELECT model_id, model_order, start_context FROM automaton_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := db.Prepare(`SELECT model_id, model_name, model_order FROM automaton_models ORDER BY model_name;`)
	if err != nil {
		return nil, err
	}

	stmtUpsertModel, err := db.Prepare(`INSERT INTO automaton_models (model_name, model_order, start_context) VALUES (?, ?, ?) ON CONFLICT(model_name) DO UPDATE SET model_order = excluded.model_order, start_context = excluded.start_context RETURNING model_id;`)
	if err != nil {
		return nil, err
	}

	stmtDeleteModel, err := db.Prepare(`DELETE FROM automaton_models WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetTransitions, err := db.Prepare(`SELECT context, successor, probability FROM automaton_transitions WHERE model_id = ? ORDER BY context, position;`)
	if err != nil {
		return nil, err
	}

	stmtInsertTransition, err := db.Prepare(`INSERT INTO automaton_transitions (model_id, context, position, successor, probability) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtDeleteChains, err := db.Prepare(`DELETE FROM automaton_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtCountChains, err := db.Prepare(`SELECT COUNT(*) FROM automaton_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtCountContexts, err := db.Prepare(`SELECT COUNT(DISTINCT context) FROM automaton_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                   db,
		stmtGetModelInfo:     stmtGetModelInfo,
		stmtGetModels:        stmtGetModels,
		stmtUpsertModel:      stmtUpsertModel,
		stmtDeleteModel:      stmtDeleteModel,
		stmtGetTransitions:   stmtGetTransitions,
		stmtInsertTransition: stmtInsertTransition,
		stmtDeleteChains:     stmtDeleteChains,
		stmtCountChains:      stmtCountChains,
		stmtCountContexts:    stmtCountContexts,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store. It should
// be called when the Store is no longer needed to free up database
// resources.
func (s *Store) Close() {
	_ = s.stmtGetModelInfo.Close()
	_ = s.stmtGetModels.Close()
	_ = s.stmtUpsertModel.Close()
	_ = s.stmtDeleteModel.Close()
	_ = s.stmtGetTransitions.Close()
	_ = s.stmtInsertTransition.Close()
	_ = s.stmtDeleteChains.Close()
	_ = s.stmtCountChains.Close()
	_ = s.stmtCountContexts.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are
// discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// GetModelInfo retrieves the metadata for a single model specified by name.
// It returns sql.ErrNoRows when no model has that name.
func (s *Store) GetModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	var modelId, modelOrder int
	var startContext string
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&modelId, &modelOrder, &startContext)
	if err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{
		Id:    modelId,
		Name:  modelName,
		Order: modelOrder,
	}, nil
}

// GetModelInfos retrieves metadata for all stored models, ordered by name.
func (s *Store) GetModelInfos(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make([]ModelInfo, 0)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.Order); err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// SaveModel stores a validated model under the given name, replacing any
// previous model with that name. The operation is performed within a
// transaction, so a failed save leaves the old model intact.
func (s *Store) SaveModel(ctx context.Context, modelName string, a *automaton.Automaton) (ModelInfo, error) {
	if err := a.Validate(); err != nil {
		return ModelInfo{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelId int
	if err = tx.StmtContext(ctx, s.stmtUpsertModel).QueryRowContext(ctx, modelName, a.Order, a.Start).Scan(&modelId); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to upsert model '%s': %w", modelName, err)
	}

	if _, err = tx.StmtContext(ctx, s.stmtDeleteChains).ExecContext(ctx, modelId); err != nil {
		return ModelInfo{}, fmt.Errorf("failed to clear old transitions for model %d: %w", modelId, err)
	}

	stmtInsert := tx.StmtContext(ctx, s.stmtInsertTransition)
	transitions := 0
	for context, tr := range a.States {
		for i, succ := range tr.Successors {
			if _, err = stmtInsert.ExecContext(ctx, modelId, context, i, string(succ), tr.Probabilities[i]); err != nil {
				return ModelInfo{}, fmt.Errorf("failed to insert transition %q -> %q: %w", context, string(succ), err)
			}
			transitions++
		}
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, fmt.Errorf("could not commit save: %w", err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", modelName),
		slog.Int("model_id", modelId),
		slog.Int("states", len(a.States)),
		slog.Int("transitions", transitions),
	)

	return ModelInfo{Id: modelId, Name: modelName, Order: a.Order}, nil
}

// LoadModel rebuilds the named model from its stored transitions and
// validates it before returning. It returns sql.ErrNoRows when no model
// has that name.
func (s *Store) LoadModel(ctx context.Context, modelName string) (*automaton.Automaton, error) {
	var modelId, modelOrder int
	var startContext string
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&modelId, &modelOrder, &startContext)
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtGetTransitions.QueryContext(ctx, modelId)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions for model '%s': %w", modelName, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	states := make(map[string]automaton.Transitions)
	for rows.Next() {
		var context, succ string
		var probability float64
		if err = rows.Scan(&context, &succ, &probability); err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(succ) != 1 {
			return nil, fmt.Errorf("%w: stored successor %q is not a single character",
				automaton.ErrMalformedModel, succ)
		}
		c, _ := utf8.DecodeRuneInString(succ)

		tr := states[context]
		tr.Successors = append(tr.Successors, c)
		tr.Probabilities = append(tr.Probabilities, probability)
		states[context] = tr
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	a := &automaton.Automaton{
		Order:  modelOrder,
		Start:  startContext,
		States: states,
	}
	if err = a.Validate(); err != nil {
		return nil, fmt.Errorf("model '%s': %w", modelName, err)
	}

	s.logger.InfoContext(ctx, "Model loaded",
		slog.String("model_name", modelName),
		slog.Int("model_id", modelId),
		slog.Int("states", len(states)),
	)

	return a, nil
}

// RemoveModel deletes a model and all of its transitions from the
// database. The operation is performed within a transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.StmtContext(ctx, s.stmtDeleteChains).ExecContext(ctx, model.Id); err != nil {
		return fmt.Errorf("failed to remove transitions for model %d: %w", model.Id, err)
	}

	if _, err = tx.StmtContext(ctx, s.stmtDeleteModel).ExecContext(ctx, model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model removed",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)

	return nil
}
