package job

// ItemStatus is the outcome of one batch member.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

// AggregateStatus summarises a batch.
type AggregateStatus string

const (
	AllSucceeded   AggregateStatus = "all_succeeded"
	PartialFailure AggregateStatus = "partial_failure"
	AllFailed      AggregateStatus = "all_failed"
)

// BatchItemResult records what happened to one archive member.
type BatchItemResult struct {
	Index  int        `json:"index"`
	Source string     `json:"source"`
	Status ItemStatus `json:"status"`

	// Output is the entry name in the result archive on success.
	Output string `json:"output,omitempty"`

	// ErrorKind and Error describe a failure or the reason for a skip.
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	// Artifact is the produced file; it is not part of the manifest.
	Artifact *Artifact `json:"-"`
}

// BatchResult is the ordered outcome of a batch plus its aggregate status.
type BatchResult struct {
	Operation Operation         `json:"operation"`
	Status    AggregateStatus   `json:"status"`
	Items     []BatchItemResult `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
}

// NewBatchResult tallies items and derives the aggregate status. Skipped
// items count toward neither success nor failure; a batch with no successful
// item is AllFailed.
func NewBatchResult(op Operation, items []BatchItemResult) *BatchResult {
	r := &BatchResult{Operation: op, Items: items}
	for _, it := range items {
		switch it.Status {
		case ItemSuccess:
			r.Succeeded++
		case ItemFailed:
			r.Failed++
		case ItemSkipped:
			r.Skipped++
		}
	}
	switch {
	case r.Succeeded == 0:
		r.Status = AllFailed
	case r.Failed == 0 && r.Skipped == 0:
		r.Status = AllSucceeded
	default:
		r.Status = PartialFailure
	}
	return r
}
