package recovery

import "context"

// Fallback attempts Primary; on terminal failure it invokes Alternate with
// the same context (spec.md §4.7 "attempts primary; on terminal failure
// invokes alternate with the same inputs").
type Fallback struct {
	Primary   Operation
	Alternate Operation
}

func (f Fallback) Run(ctx context.Context) error {
	if err := f.Primary(ctx); err != nil {
		return f.Alternate(ctx)
	}
	return nil
}
