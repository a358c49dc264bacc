package stream

import (
	"context"

	"github.com/collinglass/blarg/internal/domain"
)

// EventProducer republishes feed broadcasts to an external stream.
type EventProducer interface {
	Produce(ctx context.Context, ev *domain.Event) error
	Close() error
}
