package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/application/rbac"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/event"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Upload is a file to attach to a document
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// AttachmentService stores document attachments in blob storage
type AttachmentService interface {
	Upload(ctx context.Context, actorID, documentID string, up Upload) (*entity.Attachment, error)
	Delete(ctx context.Context, actorID, attachmentID string) error
	URL(ctx context.Context, actorID, attachmentID string) (string, error)
	List(ctx context.Context, documentID string) ([]*entity.Attachment, error)
}

type attachmentServiceImpl struct {
	attachmentRepo port.AttachmentRepository
	docRepo        port.DocumentRepository
	storage        port.BlobStorage
	resolver       *rbac.Resolver
	audit          AuditService
	publish        func(ctx context.Context, evt *event.Event)
	urlExpiry      time.Duration
	logger         Logger
	now            func() time.Time
}

// NewAttachmentService creates a new AttachmentService. publish may be nil.
func NewAttachmentService(
	attachmentRepo port.AttachmentRepository,
	docRepo port.DocumentRepository,
	storage port.BlobStorage,
	resolver *rbac.Resolver,
	audit AuditService,
	publish func(ctx context.Context, evt *event.Event),
	urlExpiry time.Duration,
	logger Logger,
) AttachmentService {
	if urlExpiry <= 0 {
		urlExpiry = 15 * time.Minute
	}
	return &attachmentServiceImpl{
		attachmentRepo: attachmentRepo,
		docRepo:        docRepo,
		storage:        storage,
		resolver:       resolver,
		audit:          audit,
		publish:        publish,
		urlExpiry:      urlExpiry,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *attachmentServiceImpl) Upload(ctx context.Context, actorID, documentID string, up Upload) (*entity.Attachment, error) {
	doc, err := s.document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, doc); err != nil {
		return nil, err
	}
	if up.Content == nil {
		return nil, &workflow.ValidationError{Missing: []string{"fichier"}}
	}

	name := SanitizeFileName(up.FileName)
	existing, err := s.attachmentRepo.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	for _, a := range existing {
		if a.FileName == name {
			name = strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + "_" + name
			break
		}
	}

	att := &entity.Attachment{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		DocType:    doc.DocType,
		Exercice:   doc.Exercice,
		FileName:   name,
		StorageKey: StorageKey(doc, name),
		Size:       up.Size,
		MimeType:   up.ContentType,
		UploadedBy: actorID,
		CreatedAt:  s.now(),
	}

	if err := s.storage.Put(ctx, att.StorageKey, up.Content, up.Size, up.ContentType); err != nil {
		s.logger.Error("Failed to store attachment", "error", err, "document_id", doc.ID, "key", att.StorageKey)
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	if err := s.attachmentRepo.Create(ctx, att); err != nil {
		if derr := s.storage.Delete(ctx, att.StorageKey); derr != nil {
			s.logger.Error("Failed to remove orphan blob", "error", derr, "key", att.StorageKey)
		}
		return nil, fmt.Errorf("create attachment: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{
		DocumentID: doc.ID,
		DocType:    doc.DocType,
		Action:     workflow.HistoryModification,
		OldStatut:  doc.Statut,
		NewStatut:  doc.Statut,
		ActorID:    actorID,
		Comment:    "Pièce jointe ajoutée: " + name,
	})
	if s.publish != nil {
		s.publish(ctx, event.NewEvent(event.TypeAttachmentUploaded, doc.ID, string(doc.DocType), map[string]interface{}{
			event.KeyActorID:    actorID,
			event.KeyStorageKey: att.StorageKey,
		}))
	}

	s.logger.Info("Attachment uploaded", "document_id", doc.ID, "attachment_id", att.ID, "size", att.Size)
	return att, nil
}

func (s *attachmentServiceImpl) Delete(ctx context.Context, actorID, attachmentID string) error {
	att, doc, err := s.load(ctx, attachmentID)
	if err != nil {
		return err
	}
	if att.UploadedBy != actorID {
		admin, err := s.resolver.IsAdmin(ctx, actorID)
		if err != nil {
			return err
		}
		if !admin {
			return fmt.Errorf("%w: only the uploader may delete %s", workflow.ErrNotAuthorized, att.ID)
		}
	}

	if err := s.attachmentRepo.Delete(ctx, att.ID); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if err := s.storage.Delete(ctx, att.StorageKey); err != nil {
		s.logger.Error("Failed to delete blob", "error", err, "key", att.StorageKey)
	}

	s.audit.Record(ctx, AuditEntry{
		DocumentID: doc.ID,
		DocType:    doc.DocType,
		Action:     workflow.HistoryModification,
		OldStatut:  doc.Statut,
		NewStatut:  doc.Statut,
		ActorID:    actorID,
		Comment:    "Pièce jointe supprimée: " + att.FileName,
	})
	return nil
}

func (s *attachmentServiceImpl) URL(ctx context.Context, actorID, attachmentID string) (string, error) {
	att, doc, err := s.load(ctx, attachmentID)
	if err != nil {
		return "", err
	}
	if err := s.authorize(ctx, actorID, doc); err != nil {
		return "", err
	}
	return s.storage.URL(ctx, att.StorageKey, s.urlExpiry)
}

func (s *attachmentServiceImpl) List(ctx context.Context, documentID string) ([]*entity.Attachment, error) {
	return s.attachmentRepo.ListByDocument(ctx, documentID)
}

func (s *attachmentServiceImpl) load(ctx context.Context, attachmentID string) (*entity.Attachment, *entity.Document, error) {
	att, err := s.attachmentRepo.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("get attachment: %w", err)
	}
	if att == nil {
		return nil, nil, fmt.Errorf("%w: attachment %s", workflow.ErrNotFound, attachmentID)
	}
	doc, err := s.document(ctx, att.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	return att, doc, nil
}

func (s *attachmentServiceImpl) document(ctx context.Context, id string) (*entity.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", workflow.ErrNotFound, id)
	}
	return doc, nil
}

// authorize lets the owner and the actors of the document stage through
func (s *attachmentServiceImpl) authorize(ctx context.Context, actorID string, doc *entity.Document) error {
	if actorID == "" {
		return workflow.ErrNotAuthenticated
	}
	if doc.IsOwner(actorID) {
		return nil
	}
	stage, _ := workflow.Stage(doc.DocType)
	roles := append(append([]workflow.Role{}, stage.Owners...), stage.Validators...)
	d, err := s.resolver.CanPerform(ctx, actorID, rbac.Capability{DocType: doc.DocType, Roles: roles})
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s has no access to %s", workflow.ErrNotAuthorized, actorID, doc.ID)
	}
	return nil
}

// StorageKey builds {exercice}/{docType}/{docID}/{file}
func StorageKey(doc *entity.Document, fileName string) string {
	return fmt.Sprintf("%d/%s/%s/%s", doc.Exercice, doc.DocType, doc.ID, fileName)
}

// SanitizeFileName keeps the base name with letters, digits, dot, dash and underscore
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "fichier"
	}
	if len(out) > 120 {
		out = out[len(out)-120:]
	}
	return out
}
