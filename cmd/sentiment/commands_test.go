package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"sentiment-classifier/internal/handler"
	"sentiment-classifier/internal/mlclient"
	"sentiment-classifier/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// lengthClassifier calls texts shorter than five bytes positive.
type lengthClassifier struct{}

func (lengthClassifier) Classify(ctx context.Context, text string) (*models.ClassifyResponse, error) {
	if len(text) < 5 {
		return &models.ClassifyResponse{Text: text, Category: "positive", Confidence: 0.75, Probabilities: []float64{0.75, 0.25}}, nil
	}
	return &models.ClassifyResponse{Text: text, Category: "negative", CategoryID: 1, Confidence: 0.6, Probabilities: []float64{0.4, 0.6}}, nil
}

func (c lengthClassifier) ClassifyBatch(ctx context.Context, messages []models.BatchMessage) (*models.BatchClassifyResponse, error) {
	resp := &models.BatchClassifyResponse{Total: len(messages)}
	for _, m := range messages {
		r, _ := c.Classify(ctx, m.Text)
		resp.Results = append(resp.Results, models.BatchResult{ID: m.ID, ClassifyResponse: *r})
	}
	return resp, nil
}

func (lengthClassifier) ModelInfo() *models.ModelInfo {
	return &models.ModelInfo{ServiceName: "sentiment-classifier", NumLabels: 2}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler.NewHandler(lengthClassifier{}, nil, zap.NewNop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifyRemoteSingle(t *testing.T) {
	var out bytes.Buffer
	err := classifyRemote(context.Background(), mlclient.NewClient(newServer(t).URL), []string{"good"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "positive\t0.7500\tgood\n", out.String())
}

func TestClassifyRemoteBatch(t *testing.T) {
	var out bytes.Buffer
	err := classifyRemote(context.Background(), mlclient.NewClient(newServer(t).URL),
		[]string{"good", "terrible"}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "positive\t0.7500\tgood", lines[0])
	assert.Equal(t, "negative\t0.6000\tterrible", lines[1])
}

func TestClassifyRemoteServerDown(t *testing.T) {
	srv := newServer(t)
	url := srv.URL
	srv.Close()

	var out bytes.Buffer
	err := classifyRemote(context.Background(), mlclient.NewClient(url), []string{"good"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server unavailable")
	assert.Empty(t, out.String())
}
