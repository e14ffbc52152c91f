package pipeline

import (
	"context"
)

// Build status values reported by the delivery pipeline.
const (
	StatusNotStarted = "notStarted"
	StatusInProgress = "inProgress"
	StatusCompleted  = "completed"
)

// Build result values, set once status reaches completed.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultCanceled  = "canceled"
)

// Ref identifies a pipeline within the delivery system.
type Ref struct {
	Project    string
	PipelineID int
	Branch     string
	ModuleName string
}

// Build is the observable state of a pipeline run.
type Build struct {
	ID     int64
	URL    string
	Status string
	Result string
}

// Finished reports whether the build reached a terminal state.
func (b Build) Finished() bool {
	return b.Status == StatusCompleted
}

// Succeeded is meaningful only when Finished.
func (b Build) Succeeded() bool {
	return b.Finished() && b.Result == ResultSucceeded
}

// Trigger starts pipeline runs and reports their progress. Run failures are
// best-effort from the caller's point of view: the request that asked for the
// run keeps its state and the trigger may be retried.
type Trigger interface {
	Run(ctx context.Context, ref Ref, parameters map[string]string) (Build, error)
	Status(ctx context.Context, project string, buildID int64) (Build, error)
}
