// Package run models an indexing run and its observable progress.
package run

import "time"

// State is the lifecycle state of a run.
type State string

// Run states.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Run is a snapshot of one indexing run. Values are copied out of the
// registry, so callers may keep them without synchronization.
type Run struct {
	ID               string    `json:"id"`
	State            State     `json:"state"`
	CreatedAt        time.Time `json:"createdAt"`
	StartedAt        time.Time `json:"startedAt,omitzero"`
	FinishedAt       time.Time `json:"finishedAt,omitzero"`
	TotalImages      int       `json:"totalImages"`
	TotalBatches     int       `json:"totalBatches"`
	BatchesSucceeded int       `json:"batchesSucceeded"`
	BatchesFailed    int       `json:"batchesFailed"`
	ImagesUpserted   int       `json:"imagesUpserted"`
	Error            string    `json:"error,omitempty"`
}

// New creates a pending run.
func New(id string, now time.Time) Run {
	return Run{ID: id, State: StatePending, CreatedAt: now}
}

// Start moves the run to running.
func (r *Run) Start(now time.Time) {
	r.State = StateRunning
	r.StartedAt = now
}

// Plan records the enumerated workload.
func (r *Run) Plan(images, batches int) {
	r.TotalImages = images
	r.TotalBatches = batches
}

// RecordBatch accounts one finished outer batch.
func (r *Run) RecordBatch(upserted int, err error) {
	r.ImagesUpserted += upserted
	if err != nil {
		r.BatchesFailed++
		r.Error = err.Error()
		return
	}
	r.BatchesSucceeded++
}

// Finish moves the run to a terminal state. Finishing a terminal run is a no-op.
func (r *Run) Finish(state State, err error, now time.Time) {
	if r.State.Terminal() {
		return
	}
	r.State = state
	r.FinishedAt = now
	if err != nil {
		r.Error = err.Error()
	}
}
