package domain

// QueueStats aggregates outcomes over the tasks currently held by the registry.
type QueueStats struct {
	TotalProcessed           int     `json:"total_processed"`
	SuccessCount             int     `json:"success_count"`
	FailureCount             int     `json:"failure_count"`
	AverageProcessingSeconds float64 `json:"average_processing_seconds"`
}

// QueueState is a projection of the registry: tasks partitioned by status plus
// concurrency figures. It is recomputed after every mutation and never stored.
type QueueState struct {
	Queued             []Task     `json:"queued"`
	Processing         []Task     `json:"processing"`
	Completed          []Task     `json:"completed"`
	Failed             []Task     `json:"failed"`
	CurrentConcurrency int        `json:"current_concurrency"`
	MaxConcurrency     int        `json:"max_concurrency"`
	Stats              QueueStats `json:"stats"`
}
