package models

import "time"

// Run statuses
const (
	RunPending    = "pending"
	RunProcessing = "processing"
	RunCompleted  = "completed"
	RunFailed     = "failed"
)

// Run represents one training invocation
type Run struct {
	ID           string     `json:"id" db:"id"`
	Status       string     `json:"status" db:"status"`
	ModelName    string     `json:"model_name" db:"model_name"`
	Epochs       int        `json:"epochs" db:"epochs"`
	BatchSize    int        `json:"batch_size" db:"batch_size"`
	LearningRate float64    `json:"learning_rate" db:"learning_rate"`
	TrainSize    int        `json:"train_size" db:"train_size"`
	TestSize     int        `json:"test_size" db:"test_size"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
}

// EpochResult holds the evaluation outcome of a single epoch.
// AUC is nil when the evaluated labels contain only one class.
type EpochResult struct {
	RunID     string    `json:"run_id" db:"run_id"`
	Epoch     int       `json:"epoch" db:"epoch"`
	TrainLoss float64   `json:"train_loss" db:"train_loss"`
	TP        int       `json:"tp" db:"tp"`
	TN        int       `json:"tn" db:"tn"`
	FP        int       `json:"fp" db:"fp"`
	FN        int       `json:"fn" db:"fn"`
	Accuracy  float64   `json:"accuracy" db:"accuracy"`
	Precision float64   `json:"precision" db:"precision_score"`
	Recall    float64   `json:"recall" db:"recall"`
	F1        float64   `json:"f1" db:"f1"`
	AUC       *float64  `json:"auc,omitempty" db:"auc"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RunDetails is a run together with its per-epoch results.
type RunDetails struct {
	Run    *Run           `json:"run"`
	Epochs []*EpochResult `json:"epochs"`
}
