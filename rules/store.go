package rules

import "context"

// Store is a read-only snapshot source the pipeline queries once per
// request. Implementations must never return a slice that is concurrently
// mutated by a writer.
type Store interface {
	Snapshot(ctx context.Context) ([]CaptureRule, error)
}

// Writer is implemented by Store backends whose rule set can be replaced
// wholesale, e.g. by the administrative rule-CRUD surface.
type Writer interface {
	Replace(rules []CaptureRule) error
}
