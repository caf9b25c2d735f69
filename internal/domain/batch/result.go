package batch

// Status is the processing outcome of one outer batch.
type Status string

// Batch status values.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of processing one outer batch of an indexing run.
type Result struct {
	index    int
	size     int
	upserted int
	status   Status
	err      error
}

// NewOK creates a successful batch result.
func NewOK(index, size, upserted int) Result {
	return Result{index: index, size: size, upserted: upserted, status: StatusOK}
}

// NewError creates a failed batch result. upserted counts chunks written before the failure.
func NewError(index, size, upserted int, err error) Result {
	return Result{index: index, size: size, upserted: upserted, status: StatusError, err: err}
}

// Index returns the zero-based batch position in the run.
func (r Result) Index() int { return r.index }

// Size returns the number of images in the batch.
func (r Result) Size() int { return r.size }

// Upserted returns the number of records written.
func (r Result) Upserted() int { return r.upserted }

// Status returns the processing outcome.
func (r Result) Status() Status { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
