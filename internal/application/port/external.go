package port

import (
	"context"

	"github.com/garyjia/sygfp/internal/domain/entity"
)

// PushSender delivers a notification outside the application (chat, mail)
type PushSender interface {
	Send(ctx context.Context, user *entity.User, title, message string) error
}
