package flow

import (
	"context"

	"flowbridge/pkg/records"
)

// Tap is an external storage endpoint: a file set, a table, a topic. Taps are
// opened through a Process so they can partition by worker.
type Tap interface {
	// Identifier names the endpoint in logs and errors.
	Identifier() string
	OpenForRead(ctx context.Context, p *Process) (records.Iterator, error)
	OpenForWrite(ctx context.Context, p *Process) (records.Collector, error)
}
