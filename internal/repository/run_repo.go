package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sentiment-classifier/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunRepository handles persistence of training runs and their epoch results.
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.Run) error
	UpdateRun(ctx context.Context, run *models.Run) error
	SaveEpoch(ctx context.Context, result *models.EpochResult) error
	GetRun(ctx context.Context, runID string) (*models.Run, error)
	ListRuns(ctx context.Context) ([]*models.Run, error)
	GetEpochs(ctx context.Context, runID string) ([]*models.EpochResult, error)
}

type runRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sqlx.DB) RunRepository {
	return &runRepository{db: db}
}

const runColumns = `id, status, model_name, epochs, batch_size, learning_rate,
	train_size, test_size, started_at, completed_at, error_message`

// CreateRun inserts a new run.
func (r *runRepository) CreateRun(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO training_runs (` + runColumns + `)
		VALUES (:id, :status, :model_name, :epochs, :batch_size, :learning_rate,
		        :train_size, :test_size, :started_at, :completed_at, :error_message)
	`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun updates run status and progress fields.
func (r *runRepository) UpdateRun(ctx context.Context, run *models.Run) error {
	query := `
		UPDATE training_runs
		SET status = :status, train_size = :train_size, test_size = :test_size,
		    completed_at = :completed_at, error_message = :error_message
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SaveEpoch stores the evaluation result of one epoch.
func (r *runRepository) SaveEpoch(ctx context.Context, result *models.EpochResult) error {
	query := `
		INSERT INTO epoch_results (
			run_id, epoch, train_loss, tp, tn, fp, fn,
			accuracy, precision_score, recall, f1, auc, created_at
		) VALUES (
			:run_id, :epoch, :train_loss, :tp, :tn, :fp, :fn,
			:accuracy, :precision_score, :recall, :f1, :auc, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("failed to save epoch result: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *runRepository) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	run := &models.Run{}
	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM training_runs WHERE id = ?`)
	err := r.db.GetContext(ctx, run, query, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first.
func (r *runRepository) ListRuns(ctx context.Context) ([]*models.Run, error) {
	var runs []*models.Run
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY started_at DESC`
	if err := r.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetEpochs returns the epoch results of a run in epoch order.
func (r *runRepository) GetEpochs(ctx context.Context, runID string) ([]*models.EpochResult, error) {
	var results []*models.EpochResult
	query := r.db.Rebind(`
		SELECT run_id, epoch, train_loss, tp, tn, fp, fn,
		       accuracy, precision_score, recall, f1, auc, created_at
		FROM epoch_results
		WHERE run_id = ?
		ORDER BY epoch
	`)
	if err := r.db.SelectContext(ctx, &results, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get epoch results: %w", err)
	}
	return results, nil
}
