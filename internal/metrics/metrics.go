package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Training metrics
var (
	// TrainBatchesTotal counts optimizer steps.
	TrainBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentiment_train_batches_total",
		Help: "Total training batches processed.",
	})

	// TrainLoss is the cross-entropy loss of the most recent training batch.
	TrainLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentiment_train_loss",
		Help: "Loss of the last training batch.",
	})

	// EvalMetric holds the latest epoch metrics by name (accuracy, precision, recall, f1, auc).
	EvalMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentiment_eval_metric",
		Help: "Latest evaluation metric value by name.",
	}, []string{"metric"})

	// EpochDuration tracks wall time per epoch phase.
	EpochDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentiment_epoch_duration_seconds",
		Help:    "Time spent per epoch phase.",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
	}, []string{"phase"})
)

// Serving metrics
var (
	// PredictionsTotal counts classified texts by predicted category.
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_predictions_total",
		Help: "Total texts classified by category.",
	}, []string{"category"})

	// PredictDuration tracks inference latency per request kind.
	PredictDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentiment_predict_duration_seconds",
		Help:    "Time spent on classification requests.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"kind"})

	// RequestsTotal counts HTTP requests by method, route and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_http_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "path", "status"})
)
