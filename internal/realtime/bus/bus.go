package bus

import (
	"context"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
)

// Bus carries stage events between service instances.
type Bus interface {
	Publish(ctx context.Context, ev review.StageEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev review.StageEvent)) error
	Close() error
}
