package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sentiment-classifier/internal/models"
	"sentiment-classifier/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type fakeClassifier struct {
	err error
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (*models.ClassifyResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := 0
	if strings.Contains(text, "bad") {
		id = 1
	}
	probs := []float64{0.9, 0.1}
	if id == 1 {
		probs = []float64{0.2, 0.8}
	}
	return &models.ClassifyResponse{
		Text:          text,
		Category:      []string{"positive", "negative"}[id],
		CategoryID:    id,
		Confidence:    probs[id],
		Probabilities: probs,
	}, nil
}

func (f *fakeClassifier) ClassifyBatch(ctx context.Context, messages []models.BatchMessage) (*models.BatchClassifyResponse, error) {
	resp := &models.BatchClassifyResponse{}
	for _, m := range messages {
		r, err := f.Classify(ctx, m.Text)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, models.BatchResult{ID: m.ID, ClassifyResponse: *r})
	}
	resp.Total = len(resp.Results)
	return resp, nil
}

func (f *fakeClassifier) ModelInfo() *models.ModelInfo {
	return &models.ModelInfo{ServiceName: "sentiment-classifier", Classes: []string{"positive", "negative"}, NumLabels: 2, Device: "cpu"}
}

func newRouter(t *testing.T, c Classifier, runs repository.RunRepository) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(), Metrics())
	NewHandler(c, runs, zap.NewNop()).RegisterRoutes(r)
	return r
}

func seededRuns(t *testing.T) repository.RunRepository {
	t.Helper()
	db, err := repository.NewDB("sqlite", filepath.Join(t.TempDir(), "runs.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.MigrateDB(db, "sqlite", zap.NewNop()))

	runs := repository.NewRunRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, runs.CreateRun(ctx, &models.Run{
		ID: "run-1", Status: models.RunCompleted, ModelName: "bert-base-chinese",
		Epochs: 1, BatchSize: 10, LearningRate: 0.001, TrainSize: 4, TestSize: 2, StartedAt: now,
	}))
	auc := 0.75
	require.NoError(t, runs.SaveEpoch(ctx, &models.EpochResult{
		RunID: "run-1", Epoch: 1, TrainLoss: 0.6931, TP: 1, TN: 1,
		Accuracy: 1, Precision: 1, Recall: 1, F1: 1, AUC: &auc, CreatedAt: now,
	}))
	return runs
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClassifySingle(t *testing.T) {
	r := newRouter(t, &fakeClassifier{}, nil)

	w := do(r, http.MethodPost, "/api/v1/classify/single", `{"text":"bad day"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.CategoryID)
	assert.Equal(t, "negative", resp.Category)

	w = do(r, http.MethodPost, "/api/v1/classify/single", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = newRouter(t, &fakeClassifier{err: errors.New("boom")}, nil)
	w = do(r, http.MethodPost, "/api/v1/classify/single", `{"text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestClassifyBatch(t *testing.T) {
	r := newRouter(t, &fakeClassifier{}, nil)

	w := do(r, http.MethodPost, "/api/v1/classify/batch",
		`{"messages":[{"id":1,"text":"good"},{"id":2,"text":"bad"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.BatchClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, int64(2), resp.Results[1].ID)
	assert.Equal(t, 1, resp.Results[1].CategoryID)

	w = do(r, http.MethodPost, "/api/v1/classify/batch", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInfoAndHealth(t *testing.T) {
	r := newRouter(t, &fakeClassifier{}, nil)

	w := do(r, http.MethodGet, "/api/v1/model/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info models.ModelInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 2, info.NumLabels)

	w = do(r, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.True(t, health.ModelLoaded)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodOptions, "/api/v1/classify/single", "").Code)

	w = do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sentiment_http_requests_total")
}

func TestRuns(t *testing.T) {
	r := newRouter(t, &fakeClassifier{}, seededRuns(t))

	w := do(r, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs  []models.Run `json:"runs"`
		Total int          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	w = do(r, http.MethodGet, "/api/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var details models.RunDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, "run-1", details.Run.ID)
	require.Len(t, details.Epochs, 1)
	assert.Equal(t, 0.75, *details.Epochs[0].AUC)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/runs/missing", "").Code)

	noStore := newRouter(t, &fakeClassifier{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(noStore, http.MethodGet, "/api/v1/runs", "").Code)
}

func TestExportRun(t *testing.T) {
	r := newRouter(t, &fakeClassifier{}, seededRuns(t))

	t.Run("csv", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/runs/run-1/export?format=csv", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "run_run-1.csv")

		rows, err := csv.NewReader(w.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, exportHeader, rows[0])
		assert.Equal(t, []string{"1", "0.693", "1", "1", "0", "0", "100.00", "100.00", "100.00", "100.00", "0.750"}, rows[1])
	})

	t.Run("json", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/runs/run-1/export?format=json", "")
		require.Equal(t, http.StatusOK, w.Code)
		var details models.RunDetails
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
		assert.Len(t, details.Epochs, 1)
	})

	t.Run("xlsx", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/runs/run-1/export?format=xlsx", "")
		require.Equal(t, http.StatusOK, w.Code)

		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()

		rows, err := f.GetRows(epochSheet)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "epoch", rows[0][0])
		assert.Equal(t, "1", rows[1][0])

		info, err := f.GetRows("Run")
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "run-1"}, info[0])
	})

	t.Run("bad format", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/runs/run-1/export?format=pdf", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing run", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/runs/nope/export", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
