package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/event"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// NotifyOptions qualifies a notification
type NotifyOptions struct {
	Type       string
	Urgent     bool
	EntityType string
	EntityID   string
}

// NotificationService delivers in-app and push notifications
type NotificationService interface {
	// Notify delivers to each distinct recipient. Delivery failures are logged only.
	Notify(ctx context.Context, recipients []string, title, message string, opts NotifyOptions)

	// OnStatusChanged is the dispatcher handler for document.status_changed
	OnStatusChanged(ctx context.Context, evt *event.Event) error

	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, id int64, userID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	identity         port.IdentityProvider
	registry         *workflow.Registry
	pushSender       port.PushSender
	logger           Logger
	now              func() time.Time
}

// NewNotificationService creates a new NotificationService. pushSender may be nil.
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	identity port.IdentityProvider,
	registry *workflow.Registry,
	pushSender port.PushSender,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		identity:         identity,
		registry:         registry,
		pushSender:       pushSender,
		logger:           logger,
		now:              time.Now,
	}
}

// Notify sends a notification to every distinct non-empty recipient
func (s *notificationServiceImpl) Notify(ctx context.Context, recipients []string, title, message string, opts NotifyOptions) {
	if opts.Type == "" {
		opts.Type = entity.NotificationTypeInfo
	}

	for _, userID := range dedupe(recipients) {
		n := &entity.Notification{
			UserID:     userID,
			Type:       opts.Type,
			Title:      title,
			Message:    message,
			EntityType: opts.EntityType,
			EntityID:   opts.EntityID,
			Urgent:     opts.Urgent,
			CreatedAt:  s.now(),
		}
		if err := s.notificationRepo.Insert(ctx, n); err != nil {
			s.logger.Error("Failed to insert notification",
				"error", err,
				"user_id", userID,
				"document_id", opts.EntityID,
			)
		}

		if s.pushSender == nil {
			continue
		}
		user, err := s.identity.GetUser(ctx, userID)
		if err != nil || user == nil {
			s.logger.Error("Failed to load push recipient", "error", err, "user_id", userID)
			continue
		}
		if err := s.pushSender.Send(ctx, user, title, message); err != nil {
			s.logger.Error("Failed to push notification",
				"error", err,
				"user_id", userID,
				"document_id", opts.EntityID,
			)
		}
	}
}

// OnStatusChanged routes a transition to the users who must act on or learn about it.
// It reads the document snapshot carried by the event, never the current row.
func (s *notificationServiceImpl) OnStatusChanged(ctx context.Context, evt *event.Event) error {
	doc := snapshot(evt)
	def, err := s.registry.Definition(doc.DocType)
	if err != nil {
		return err
	}

	action := workflow.Action(evt.GetPayloadString(event.KeyAction))
	opts := NotifyOptions{EntityType: string(doc.DocType), EntityID: doc.ID}
	ref := doc.DisplayRef()
	label := doc.DocType.Label()

	switch {
	case action == workflow.ActionSubmit || action == workflow.ActionResubmit:
		opts.Type = entity.NotificationTypeValidation
		s.notifyStepHolders(ctx, def, doc, opts,
			fmt.Sprintf("%s à valider", label),
			fmt.Sprintf("%s a été soumis et attend votre validation.", ref))

	case evt.GetPayloadBool(event.KeyMotifRule):
		opts.Type = entity.NotificationTypeDecision
		motif := evt.GetPayloadString(event.KeyMotif)
		switch action {
		case workflow.ActionReject:
			opts.Urgent = true
			s.Notify(ctx, doc.Stakeholders(),
				fmt.Sprintf("%s rejeté", label),
				fmt.Sprintf("%s a été rejeté. Motif: %s", ref, motif), opts)
		case workflow.ActionDefer:
			s.Notify(ctx, doc.Stakeholders(),
				fmt.Sprintf("%s différé", label),
				fmt.Sprintf("%s a été différé. Motif: %s", ref, motif), opts)
		default:
			opts.Urgent = action == workflow.ActionCancel
			s.Notify(ctx, doc.Stakeholders(),
				fmt.Sprintf("%s: %s", label, action.Label()),
				fmt.Sprintf("%s: %s. Motif: %s", ref, action.Label(), motif), opts)
		}

	case def.IsValidated(doc.Statut):
		opts.Type = entity.NotificationTypeDecision
		s.Notify(ctx, doc.Stakeholders(),
			fmt.Sprintf("%s validé", label),
			fmt.Sprintf("%s a été validé.", ref), opts)

	case evt.GetPayloadInt(event.KeyStepOrder) > 0:
		opts.Type = entity.NotificationTypeValidation
		s.notifyStepHolders(ctx, def, doc, opts,
			fmt.Sprintf("%s à viser", label),
			fmt.Sprintf("%s a franchi une étape et attend votre visa.", ref))

	case action.HistoryAction() == workflow.HistoryTransmission:
		opts.Type = entity.NotificationTypeValidation
		s.notifyStatusHolders(ctx, def, doc, opts,
			fmt.Sprintf("%s transmis", label),
			fmt.Sprintf("%s vous a été transmis pour décision.", ref))
	}
	return nil
}

// snapshot rebuilds the document state published with a status change
func snapshot(evt *event.Event) *entity.Document {
	return &entity.Document{
		ID:                    evt.DocumentID,
		DocType:               workflow.DocType(evt.DocType),
		Reference:             evt.GetPayloadString(event.KeyReference),
		Statut:                workflow.Status(evt.GetPayloadString(event.KeyNewStatut)),
		CurrentValidationStep: int(evt.GetPayloadInt(event.KeyPointer)),
		CreatedBy:             evt.GetPayloadString(event.KeyCreatedBy),
		Demandeur:             evt.GetPayloadString(event.KeyDemandeur),
	}
}

// notifyStepHolders notifies the holders of the roles of the step under the pointer
func (s *notificationServiceImpl) notifyStepHolders(ctx context.Context, def *workflow.Definition, doc *entity.Document, opts NotifyOptions, title, message string) {
	pointer := doc.CurrentValidationStep
	if pointer < 1 {
		pointer = 1
	}
	step, ok := def.StepAt(pointer)
	if !ok {
		return
	}
	s.notifyRoleHolders(ctx, doc, step.Roles(), step.DirectionRequired, opts, title, message)
}

// notifyStatusHolders notifies the holders of the primary actions out of the new status
func (s *notificationServiceImpl) notifyStatusHolders(ctx context.Context, def *workflow.Definition, doc *entity.Document, opts NotifyOptions, title, message string) {
	var roles []workflow.Role
	direction := ""
	for _, t := range def.Transitions(doc.Statut) {
		if !t.Primary || t.OwnerOnly {
			continue
		}
		roles = append(roles, t.Roles...)
		if t.StepOrder > 0 {
			if step, ok := def.StepAt(t.StepOrder); ok {
				direction = step.DirectionRequired
			}
		}
	}
	if len(roles) == 0 {
		return
	}
	s.notifyRoleHolders(ctx, doc, roles, direction, opts, title, message)
}

func (s *notificationServiceImpl) notifyRoleHolders(ctx context.Context, doc *entity.Document, roles []workflow.Role, direction string, opts NotifyOptions, title, message string) {
	users, err := s.identity.ListUsersByRoles(ctx, roles)
	if err != nil {
		s.logger.Error("Failed to list role holders", "error", err, "document_id", doc.ID, "statut", doc.Statut)
		return
	}

	recipients := make([]string, 0, len(users))
	for _, u := range users {
		if direction != "" && u.Direction != direction {
			continue
		}
		recipients = append(recipients, u.ID)
	}
	s.Notify(ctx, recipients, title, message, opts)
}

func (s *notificationServiceImpl) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	if userID == "" {
		return nil, workflow.ErrNotAuthenticated
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notificationRepo.ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *notificationServiceImpl) MarkRead(ctx context.Context, id int64, userID string) error {
	if userID == "" {
		return workflow.ErrNotAuthenticated
	}
	return s.notificationRepo.MarkRead(ctx, id, userID)
}

func (s *notificationServiceImpl) CountUnread(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, workflow.ErrNotAuthenticated
	}
	return s.notificationRepo.CountUnread(ctx, userID)
}

// dedupe keeps the first occurrence of each non-blank id
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
