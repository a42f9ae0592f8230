package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sentiment-classifier/internal/metrics"
	"sentiment-classifier/internal/models"
	"sentiment-classifier/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Classifier is the inference surface served over HTTP.
type Classifier interface {
	Classify(ctx context.Context, text string) (*models.ClassifyResponse, error)
	ClassifyBatch(ctx context.Context, messages []models.BatchMessage) (*models.BatchClassifyResponse, error)
	ModelInfo() *models.ModelInfo
}

// Handler handles HTTP requests
type Handler struct {
	classifier Classifier
	runs       repository.RunRepository
	logger     *zap.Logger
}

// NewHandler creates a new API handler. runs may be nil when no run store is configured.
func NewHandler(classifier Classifier, runs repository.RunRepository, logger *zap.Logger) *Handler {
	return &Handler{
		classifier: classifier,
		runs:       runs,
		logger:     logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Classification endpoints
		api.POST("/classify/single", h.ClassifySingle)
		api.POST("/classify/batch", h.ClassifyBatch)
		api.GET("/model/info", h.ModelInfo)
		api.GET("/health", h.ModelHealth)

		// Training history
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		api.GET("/runs/:id/export", h.ExportRun)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", h.HealthCheck)
}

// ClassifySingle handles single message classification
func (h *Handler) ClassifySingle(c *gin.Context) {
	var req models.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.classifier.Classify(c.Request.Context(), req.Text)
	if err != nil {
		h.logger.Error("Failed to classify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ClassifyBatch handles batch classification
func (h *Handler) ClassifyBatch(c *gin.Context) {
	var req models.BatchClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.classifier.ClassifyBatch(c.Request.Context(), req.Messages)
	if err != nil {
		h.logger.Error("Failed to classify batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch classification failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ModelInfo returns the loaded model description
func (h *Handler) ModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.classifier.ModelInfo())
}

// ModelHealth reports the classifier as ready. The handler is only built
// around a loaded model.
func (h *Handler) ModelHealth(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:      "healthy",
		ModelLoaded: true,
		Device:      "cpu",
		Message:     "ready",
	})
}

// ListRuns returns every recorded training run
func (h *Handler) ListRuns(c *gin.Context) {
	if !h.requireRuns(c) {
		return
	}

	runs, err := h.runs.ListRuns(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// GetRun returns a run with its epoch results
func (h *Handler) GetRun(c *gin.Context) {
	details, ok := h.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) requireRuns(c *gin.Context) bool {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history not configured"})
		return false
	}
	return true
}

func (h *Handler) loadRun(c *gin.Context) (*models.RunDetails, bool) {
	if !h.requireRuns(c) {
		return nil, false
	}

	runID := c.Param("id")
	run, err := h.runs.GetRun(c.Request.Context(), runID)
	if errors.Is(err, repository.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to get run", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return nil, false
	}

	epochs, err := h.runs.GetEpochs(c.Request.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to get epochs", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return nil, false
	}

	return &models.RunDetails{Run: run, Epochs: epochs}, true
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "sentiment-classifier",
		"time":    time.Now().UTC(),
	})
}

// CORS allows cross-origin calls from the dashboard.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Metrics counts requests by method, route and status code.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
