package dispatcher

import (
	"context"

	"github.com/garyjia/sygfp/internal/domain/event"
)

// Handler reacts to a committed domain event
type Handler func(ctx context.Context, evt *event.Event) error

type subscription struct {
	name    string
	handler Handler
}
