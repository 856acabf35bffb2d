package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"naskahlive/internal/apperror"
	"naskahlive/internal/document/model"
	"naskahlive/pkg/logger"
)

type DocumentRepository struct {
	DB  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

const selectDocument = `SELECT d.id, d.title, d.content, d.created_at, d.updated_at, u.id, u.username, u.email
	FROM documents d JOIN users u ON u.id = d.owner_id`

func (r *DocumentRepository) Create(ctx context.Context, doc model.Document) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO documents (id, title, content, owner_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Title, string(doc.Content), doc.Owner.ID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, docID string) (model.Document, error) {
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, selectDocument+` WHERE d.id = $1`, docID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, fmt.Errorf("document %s: %w", docID, apperror.ErrNotFound)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get doc %s: %v", docID, err)
		return model.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) GetContent(ctx context.Context, docID string) (json.RawMessage, error) {
	var content string
	err := r.DB.QueryRowContext(ctx, `SELECT content FROM documents WHERE id = $1`, docID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", docID, apperror.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return json.RawMessage(content), nil
}

// SetContent overwrites the stored content unconditionally. There is no
// version check: the last completed write wins.
func (r *DocumentRepository) SetContent(ctx context.Context, docID string, content json.RawMessage) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE documents SET content = $1, updated_at = $2 WHERE id = $3`, string(content), r.now(), docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for doc %s: %v", docID, err)
		return fmt.Errorf("set content: %w", err)
	}
	return affected(res, "document "+docID)
}

func (r *DocumentRepository) UpdateTitle(ctx context.Context, docID, title string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE documents SET title = $1, updated_at = $2 WHERE id = $3`, title, r.now(), docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update title for doc %s: %v", docID, err)
		return fmt.Errorf("update title: %w", err)
	}
	return affected(res, "document "+docID)
}

func (r *DocumentRepository) Delete(ctx context.Context, docID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", docID, err)
		return fmt.Errorf("delete document: %w", err)
	}
	return affected(res, "document "+docID)
}

// ListForUser returns documents owned by or shared with userID, most
// recently updated first. Collaborators are not populated.
func (r *DocumentRepository) ListForUser(ctx context.Context, userID string) ([]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx, selectDocument+`
		WHERE d.owner_id = $1
		   OR EXISTS (SELECT 1 FROM document_collaborators c WHERE c.document_id = d.id AND c.user_id = $1)
		ORDER BY d.updated_at DESC`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", userID, err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) GetOwnerID(ctx context.Context, docID string) (string, error) {
	var ownerID string
	err := r.DB.QueryRowContext(ctx, `SELECT owner_id FROM documents WHERE id = $1`, docID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("document %s: %w", docID, apperror.ErrNotFound)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get owner ID for doc %s: %v", docID, err)
		return "", fmt.Errorf("get owner: %w", err)
	}
	return ownerID, nil
}

func (r *DocumentRepository) GetCollaboratorPermission(ctx context.Context, docID, userID string) (model.Permission, error) {
	var perm string
	err := r.DB.QueryRowContext(ctx, `SELECT permission FROM document_collaborators WHERE document_id = $1 AND user_id = $2`, docID, userID).Scan(&perm)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("grant %s/%s: %w", docID, userID, apperror.ErrNotFound)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get collaborator role: %v", err)
		return "", fmt.Errorf("get permission: %w", err)
	}
	return model.Permission(perm), nil
}

// UpsertCollaborator creates the grant or updates its permission level.
func (r *DocumentRepository) UpsertCollaborator(ctx context.Context, c model.Collaborator) (model.Collaborator, error) {
	err := r.DB.QueryRowContext(ctx, `INSERT INTO document_collaborators (id, document_id, user_id, permission, added_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, user_id) DO UPDATE SET permission = excluded.permission
		RETURNING id, added_at`, c.ID, c.DocumentID, c.User.ID, string(c.Permission), c.AddedAt).Scan(&c.ID, &c.AddedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to add collaborator %s to doc %s: %v", c.User.ID, c.DocumentID, err)
		return model.Collaborator{}, fmt.Errorf("upsert collaborator: %w", err)
	}
	return c, nil
}

func (r *DocumentRepository) RemoveCollaborator(ctx context.Context, docID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM document_collaborators WHERE document_id = $1 AND user_id = $2`, docID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to remove collaborator %s from doc %s: %v", userID, docID, err)
		return fmt.Errorf("remove collaborator: %w", err)
	}
	return affected(res, "grant "+docID+"/"+userID)
}

func (r *DocumentRepository) ListCollaborators(ctx context.Context, docID string) ([]model.Collaborator, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT c.id, c.document_id, c.permission, c.added_at, u.id, u.username, u.email
		FROM document_collaborators c JOIN users u ON u.id = c.user_id
		WHERE c.document_id = $1 ORDER BY c.added_at ASC`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get collaborators for doc %s: %v", docID, err)
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := []model.Collaborator{}
	for rows.Next() {
		var c model.Collaborator
		var perm string
		if err := rows.Scan(&c.ID, &c.DocumentID, &perm, &c.AddedAt, &c.User.ID, &c.User.Username, &c.User.Email); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		c.Permission = model.Permission(perm)
		collaborators = append(collaborators, c)
	}
	return collaborators, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (model.Document, error) {
	var doc model.Document
	var content string
	err := s.Scan(&doc.ID, &doc.Title, &content, &doc.CreatedAt, &doc.UpdatedAt, &doc.Owner.ID, &doc.Owner.Username, &doc.Owner.Email)
	if err != nil {
		return model.Document{}, err
	}
	doc.Content = json.RawMessage(content)
	return doc, nil
}

func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, apperror.ErrNotFound)
	}
	return nil
}
