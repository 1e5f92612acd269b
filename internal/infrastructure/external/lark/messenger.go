package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
)

// messageCreator is the part of the IM API the messenger uses
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.PushSender with Lark IM text messages
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a Lark push sender
func NewMessenger(client *Client, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages: client.client.Im.Message,
		logger:   logger,
	}
}

// Send delivers a text message to the user's Lark account.
// Users without a Lark open id are skipped.
func (m *Messenger) Send(ctx context.Context, user *entity.User, title, message string) error {
	if user == nil || user.LarkOpenID == "" {
		return nil
	}

	text := title
	if message != "" {
		text += "\n" + message
	}
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(user.LarkOpenID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("user_id", user.ID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("user_id", user.ID))
	return nil
}

// Verify interface compliance
var _ port.PushSender = (*Messenger)(nil)
