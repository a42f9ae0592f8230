package models

// ClassifyRequest represents a single message classification request
type ClassifyRequest struct {
	Text string `json:"text" binding:"required"`
}

// BatchClassifyRequest represents a batch classification request
type BatchClassifyRequest struct {
	Messages []BatchMessage `json:"messages" binding:"required,min=1,dive"`
}

// BatchMessage represents a message in batch request
type BatchMessage struct {
	ID   int64  `json:"id"`
	Text string `json:"text" binding:"required"`
}

// ClassifyResponse represents the classification result
type ClassifyResponse struct {
	Text             string    `json:"text"`
	Category         string    `json:"category"`
	CategoryID       int       `json:"category_id"`
	Confidence       float64   `json:"confidence"`
	Probabilities    []float64 `json:"probabilities"`
	ProcessingTimeMs float64   `json:"processing_time_ms,omitempty"`
}

// BatchResult represents a single result in batch response
type BatchResult struct {
	ID int64 `json:"id"`
	ClassifyResponse
}

// BatchClassifyResponse represents batch classification results
type BatchClassifyResponse struct {
	Results          []BatchResult `json:"results"`
	Total            int           `json:"total"`
	ProcessingTimeMs float64       `json:"processing_time_ms"`
}

// ModelInfo describes the loaded model
type ModelInfo struct {
	ServiceName string   `json:"service_name"`
	Version     string   `json:"version"`
	Encoder     string   `json:"encoder"`
	Classes     []string `json:"classes"`
	NumLabels   int      `json:"num_labels"`
	Device      string   `json:"device"`
	MaxLength   int      `json:"max_length"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      string `json:"device"`
	Message     string `json:"message"`
}
