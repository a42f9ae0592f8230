package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"sentiment-classifier/internal/corpus"
	"sentiment-classifier/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CorpusRepository reads labeled comments from (comment, state) tables.
type CorpusRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCorpusRepository creates a new corpus repository
func NewCorpusRepository(db *sqlx.DB, logger *zap.Logger) *CorpusRepository {
	return &CorpusRepository{
		db:     db,
		logger: logger,
	}
}

// ReadTable returns the comment and state columns of a split table as parallel
// slices, truncated to the first limit rows when limit > 0. NULL comments become
// empty texts.
func (r *CorpusRepository) ReadTable(ctx context.Context, table string, limit int) ([]string, []string, error) {
	if !identifierRe.MatchString(table) {
		return nil, nil, fmt.Errorf("invalid table name %q", table)
	}

	query := fmt.Sprintf("SELECT comment, state FROM %s", table)
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var texts, labels []string
	for rows.Next() {
		var comment, state sql.NullString
		if err := rows.Scan(&comment, &state); err != nil {
			return nil, nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		texts = append(texts, comment.String)
		labels = append(labels, state.String)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return texts, labels, nil
}

// LoadSamples reads (comment, state) rows from table as samples.
func (r *CorpusRepository) LoadSamples(ctx context.Context, table string, limit int) ([]models.Sample, error) {
	texts, labels, err := r.ReadTable(ctx, table, limit)
	if err != nil {
		return nil, err
	}
	samples := corpus.Zip(texts, labels)

	r.logger.Info("Corpus split loaded",
		zap.String("table", table),
		zap.Int("rows", len(samples)))

	return samples, nil
}

// ImportSamples creates table if needed and appends samples in a single transaction.
func (r *CorpusRepository) ImportSamples(ctx context.Context, table string, samples []models.Sample) error {
	if !identifierRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (comment TEXT, state INTEGER)`, table)
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf("INSERT INTO %s (comment, state) VALUES (?, ?)", table)))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range samples {
		var comment sql.NullString
		if s.Text != "" {
			comment = sql.NullString{String: s.Text, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, comment, s.Label); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	r.logger.Info("Corpus samples imported",
		zap.String("table", table),
		zap.Int("rows", len(samples)))
	return nil
}

// TableSource adapts a corpus table to corpus.Source.
type TableSource struct {
	Repo  *CorpusRepository
	Table string
}

// Load implements corpus.Source.
func (s TableSource) Load(ctx context.Context, limit int) ([]models.Sample, error) {
	return s.Repo.LoadSamples(ctx, s.Table, limit)
}
