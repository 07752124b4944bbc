package domain

import "time"

// PipelineProgress is a snapshot of a batch run.
type PipelineProgress struct {
	Seen     int `json:"seen"`     // records read from the input
	Resolved int `json:"resolved"` // records resolved during this run
	Skipped  int `json:"skipped"`  // already-processed, duplicate, or unusable records
	Records  int `json:"records"`  // total records in the checkpoint
}

// CheckpointSaved announces a durable checkpoint write.
type CheckpointSaved struct {
	Path    string    `json:"path"`
	Records int       `json:"records"`
	SavedAt time.Time `json:"saved_at"`
}
