package repository

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"sentiment-classifier/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := NewDB("sqlite", filepath.Join(t.TempDir(), "weibo_db.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCorpusImportAndRead(t *testing.T) {
	ctx := context.Background()
	repo := NewCorpusRepository(newTestDB(t), zap.NewNop())

	samples := []models.Sample{
		{Text: "good", Label: "0"},
		{Text: "", Label: "1"},
		{Text: "bad", Label: "1"},
	}
	if err := repo.ImportSamples(ctx, "train_data", samples); err != nil {
		t.Fatalf("ImportSamples: %v", err)
	}

	texts, labels, err := repo.ReadTable(ctx, "train_data", 0)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("rows: got %d, want 3", len(texts))
	}
	for i, s := range samples {
		if texts[i] != s.Text || labels[i] != s.Label {
			t.Errorf("row %d: got (%q, %q), want (%q, %q)", i, texts[i], labels[i], s.Text, s.Label)
		}
	}

	limited, err := TableSource{Repo: repo, Table: "train_data"}.Load(ctx, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit: got %d rows, want 2", len(limited))
	}
}

func TestCorpusNullComment(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	if _, err := db.Exec(`CREATE TABLE test_data (comment TEXT, state INTEGER);
		INSERT INTO test_data VALUES (NULL, 1), ('fine', 0);`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	texts, labels, err := NewCorpusRepository(db, zap.NewNop()).ReadTable(ctx, "test_data", 0)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if texts[0] != "" || labels[0] != "1" {
		t.Errorf("null row: got (%q, %q), want (\"\", \"1\")", texts[0], labels[0])
	}
	if texts[1] != "fine" || labels[1] != "0" {
		t.Errorf("row 1: got (%q, %q)", texts[1], labels[1])
	}

	samples, err := TableSource{Repo: NewCorpusRepository(db, zap.NewNop()), Table: "test_data"}.Load(ctx, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []models.Sample{{Text: "", Label: "1"}, {Text: "fine", Label: "0"}}
	if !slices.Equal(samples, want) {
		t.Errorf("samples: got %+v, want %+v", samples, want)
	}
}

func TestCorpusRejectsBadTable(t *testing.T) {
	repo := NewCorpusRepository(newTestDB(t), zap.NewNop())
	if _, _, err := repo.ReadTable(context.Background(), "x; DROP TABLE y", 0); err == nil {
		t.Fatal("expected error for invalid table name")
	}
	if _, _, err := repo.ReadTable(context.Background(), "missing_table", 0); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	if err := MigrateDB(db, "sqlite", zap.NewNop()); err != nil {
		t.Fatalf("MigrateDB: %v", err)
	}
	// second run is a no-op
	if err := MigrateDB(db, "sqlite", zap.NewNop()); err != nil {
		t.Fatalf("MigrateDB again: %v", err)
	}

	repo := NewRunRepository(db)
	run := &models.Run{
		ID:           "run-1",
		Status:       models.RunPending,
		ModelName:    "bert-base-chinese",
		Epochs:       1,
		BatchSize:    2,
		LearningRate: 0.001,
		StartedAt:    time.Now().UTC(),
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	auc := 0.75
	result := &models.EpochResult{
		RunID: "run-1", Epoch: 1, TrainLoss: 0.69,
		TP: 1, TN: 1, Accuracy: 1, Precision: 1, Recall: 1, F1: 1,
		AUC: &auc, CreatedAt: time.Now().UTC(),
	}
	if err := repo.SaveEpoch(ctx, result); err != nil {
		t.Fatalf("SaveEpoch: %v", err)
	}

	done := time.Now().UTC()
	run.Status = models.RunCompleted
	run.TrainSize, run.TestSize = 2, 2
	run.CompletedAt = &done
	if err := repo.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunCompleted || got.TrainSize != 2 || got.CompletedAt == nil {
		t.Errorf("run: got %+v", got)
	}

	runs, err := repo.ListRuns(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns: got %d runs, err %v", len(runs), err)
	}

	epochs, err := repo.GetEpochs(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetEpochs: %v", err)
	}
	if len(epochs) != 1 || epochs[0].TP != 1 || epochs[0].AUC == nil || *epochs[0].AUC != 0.75 {
		t.Errorf("epochs: got %+v", epochs)
	}

	if _, err := repo.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun missing: got %v, want ErrRunNotFound", err)
	}
	if err := repo.UpdateRun(ctx, &models.Run{ID: "missing", Status: models.RunFailed}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("UpdateRun missing: got %v, want ErrRunNotFound", err)
	}
}
