package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	accountmodel "naskahlive/internal/account/model"
	"naskahlive/internal/apperror"
	"naskahlive/internal/document/model"
	"naskahlive/internal/identity"
	"naskahlive/pkg/logger"
	"naskahlive/socket"
)

const defaultTitle = "Untitled Document"

type Store interface {
	Create(ctx context.Context, doc model.Document) error
	Get(ctx context.Context, docID string) (model.Document, error)
	UpdateTitle(ctx context.Context, docID, title string) error
	SetContent(ctx context.Context, docID string, content json.RawMessage) error
	Delete(ctx context.Context, docID string) error
	ListForUser(ctx context.Context, userID string) ([]model.Document, error)
	UpsertCollaborator(ctx context.Context, c model.Collaborator) (model.Collaborator, error)
	RemoveCollaborator(ctx context.Context, docID, userID string) error
	ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error)
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (accountmodel.User, error)
	GetUserByUsername(ctx context.Context, username string) (accountmodel.User, error)
}

type Authorizer interface {
	CanView(ctx context.Context, docID string, who identity.Identity) (bool, error)
	CanEdit(ctx context.Context, docID string, who identity.Identity) (bool, error)
	CanManage(ctx context.Context, docID string, who identity.Identity) (bool, error)
}

// Broadcaster reaches the live sessions of a document.
type Broadcaster interface {
	Broadcast(ctx context.Context, docID string, evt socket.Event, exclude socket.Member) int
	CloseDocument(docID string) int
}

type DocumentService struct {
	store Store
	users Users
	auth  Authorizer
	live  Broadcaster
	now   func() time.Time
}

func NewDocumentService(store Store, users Users, auth Authorizer, live Broadcaster) *DocumentService {
	return &DocumentService{
		store: store,
		users: users,
		auth:  auth,
		live:  live,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// List returns every document the caller owns or collaborates on.
func (s *DocumentService) List(ctx context.Context, who identity.Identity) ([]model.Document, error) {
	docs, err := s.store.ListForUser(ctx, who.UserID)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		collaborators, err := s.store.ListCollaborators(ctx, docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Collaborators = collaborators
	}
	return docs, nil
}

func (s *DocumentService) Create(ctx context.Context, who identity.Identity, req model.CreateDocRequest) (model.Document, error) {
	owner, err := s.users.GetUserByID(ctx, who.UserID)
	if err != nil {
		return model.Document{}, err
	}

	content, err := normalizeContent(req.Content)
	if err != nil {
		return model.Document{}, err
	}
	if content == nil {
		content = model.DefaultContent
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle
	}

	now := s.now()
	doc := model.Document{
		ID:            uuid.NewString(),
		Title:         title,
		Content:       content,
		Owner:         model.UserRef{ID: owner.ID, Username: owner.Username, Email: owner.Email},
		Collaborators: []model.Collaborator{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return model.Document{}, err
	}
	logger.Sugar.Infof("User %s created document %s", who.UserID, doc.ID)
	return doc, nil
}

// Get hides documents the caller cannot see behind ErrNotFound.
func (s *DocumentService) Get(ctx context.Context, who identity.Identity, docID string) (model.Document, error) {
	if err := s.requireView(ctx, docID, who); err != nil {
		return model.Document{}, err
	}
	return s.load(ctx, docID)
}

// Update changes the title and/or content. New content is pushed to the
// document's live sessions.
func (s *DocumentService) Update(ctx context.Context, who identity.Identity, docID string, req model.UpdateDocRequest) (model.Document, error) {
	if err := s.require(ctx, docID, who, s.auth.CanEdit, "edit"); err != nil {
		return model.Document{}, err
	}

	content, err := normalizeContent(req.Content)
	if err != nil {
		return model.Document{}, err
	}

	if req.Title != nil {
		if err := s.store.UpdateTitle(ctx, docID, strings.TrimSpace(*req.Title)); err != nil {
			return model.Document{}, err
		}
	}
	if content != nil {
		s.live.Broadcast(ctx, docID, socket.Event{
			DocumentID: docID,
			UserID:     who.UserID,
			Content:    content,
		}, nil)
		if err := s.store.SetContent(ctx, docID, content); err != nil {
			return model.Document{}, err
		}
	}
	return s.load(ctx, docID)
}

// Delete is reserved to the owner. Live sessions on the document are told
// to disconnect.
func (s *DocumentService) Delete(ctx context.Context, who identity.Identity, docID string) error {
	if err := s.require(ctx, docID, who, s.auth.CanManage, "delete"); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, docID); err != nil {
		return err
	}
	n := s.live.CloseDocument(docID)
	logger.Sugar.Infof("User %s deleted document %s (%d live sessions closed)", who.UserID, docID, n)
	return nil
}

// AddCollaborator grants username access to the document, replacing any
// existing grant. The permission defaults to VIEW.
func (s *DocumentService) AddCollaborator(ctx context.Context, who identity.Identity, docID string, req model.CollaboratorRequest) (model.Collaborator, error) {
	if err := s.require(ctx, docID, who, s.auth.CanManage, "share"); err != nil {
		return model.Collaborator{}, err
	}

	perm := lo.Ternary(req.Permission == "", model.PermissionView, req.Permission)
	if !perm.Valid() {
		return model.Collaborator{}, fmt.Errorf("permission %q: %w", req.Permission, apperror.ErrInvalidInput)
	}

	user, err := s.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return model.Collaborator{}, err
	}
	if user.ID == who.UserID {
		return model.Collaborator{}, fmt.Errorf("owner cannot be a collaborator: %w", apperror.ErrInvalidInput)
	}

	c, err := s.store.UpsertCollaborator(ctx, model.Collaborator{
		ID:         uuid.NewString(),
		DocumentID: docID,
		User:       model.UserRef{ID: user.ID, Username: user.Username, Email: user.Email},
		Permission: perm,
		AddedAt:    s.now(),
	})
	if err != nil {
		return model.Collaborator{}, err
	}
	logger.Sugar.Infof("User %s granted %s on document %s to %s", who.UserID, perm, docID, user.ID)
	return c, nil
}

func (s *DocumentService) RemoveCollaborator(ctx context.Context, who identity.Identity, docID, username string) error {
	if err := s.require(ctx, docID, who, s.auth.CanManage, "share"); err != nil {
		return err
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.store.RemoveCollaborator(ctx, docID, user.ID); err != nil {
		return err
	}
	logger.Sugar.Infof("User %s revoked access to document %s from %s", who.UserID, docID, user.ID)
	return nil
}

func (s *DocumentService) Collaborators(ctx context.Context, who identity.Identity, docID string) ([]model.Collaborator, error) {
	if err := s.requireView(ctx, docID, who); err != nil {
		return nil, err
	}
	return s.store.ListCollaborators(ctx, docID)
}

func (s *DocumentService) load(ctx context.Context, docID string) (model.Document, error) {
	doc, err := s.store.Get(ctx, docID)
	if err != nil {
		return model.Document{}, err
	}
	doc.Collaborators, err = s.store.ListCollaborators(ctx, docID)
	if err != nil {
		return model.Document{}, err
	}
	return doc, nil
}

type check func(ctx context.Context, docID string, who identity.Identity) (bool, error)

func (s *DocumentService) requireView(ctx context.Context, docID string, who identity.Identity) error {
	ok, err := s.auth.CanView(ctx, docID, who)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %s: %w", docID, apperror.ErrNotFound)
	}
	return nil
}

// require answers ErrNotFound to callers who cannot even see the document
// and ErrForbidden to those who can see it but fail allowed.
func (s *DocumentService) require(ctx context.Context, docID string, who identity.Identity, allowed check, action string) error {
	if err := s.requireView(ctx, docID, who); err != nil {
		return err
	}
	ok, err := allowed(ctx, docID, who)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s document %s: %w", action, docID, apperror.ErrForbidden)
	}
	return nil
}

var errInvalidContent = errors.New("content must be valid JSON")

// normalizeContent returns nil when no content was supplied.
func normalizeContent(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("%w: %w", errInvalidContent, apperror.ErrInvalidInput)
	}
	return json.RawMessage(trimmed), nil
}
