package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"naskahlive/internal/document/model"
	"naskahlive/internal/identity"
	"naskahlive/pkg/respond"
)

// Service is the slice of the document service the REST layer needs.
type Service interface {
	List(ctx context.Context, who identity.Identity) ([]model.Document, error)
	Create(ctx context.Context, who identity.Identity, req model.CreateDocRequest) (model.Document, error)
	Get(ctx context.Context, who identity.Identity, docID string) (model.Document, error)
	Update(ctx context.Context, who identity.Identity, docID string, req model.UpdateDocRequest) (model.Document, error)
	Delete(ctx context.Context, who identity.Identity, docID string) error
	AddCollaborator(ctx context.Context, who identity.Identity, docID string, req model.CollaboratorRequest) (model.Collaborator, error)
	RemoveCollaborator(ctx context.Context, who identity.Identity, docID, username string) error
	Collaborators(ctx context.Context, who identity.Identity, docID string) ([]model.Collaborator, error)
}

type DocumentHandler struct {
	Service Service
}

func NewDocumentHandler(service Service) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

// Routes mounts under /api/documents. Callers must already be authenticated.
func (h *DocumentHandler) Routes(r chi.Router) {
	r.Get("/", h.ListDocuments)
	r.Post("/", h.CreateDocument)
	r.Route("/{documentID}", func(r chi.Router) {
		r.Get("/", h.GetDocument)
		r.Put("/", h.UpdateDocument)
		r.Patch("/", h.UpdateDocument)
		r.Delete("/", h.DeleteDocument)
		r.Post("/add_collaborator", h.AddCollaborator)
		r.Post("/remove_collaborator", h.RemoveCollaborator)
		r.Get("/collaborators", h.GetCollaborators)
	})
}

func caller(r *http.Request) identity.Identity {
	who, _ := identity.FromContext(r.Context())
	return who
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Service.List(r.Context(), caller(r))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDocRequest
	if err := respond.Bind(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	doc, err := h.Service.Create(r.Context(), caller(r), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Service.Get(r.Context(), caller(r), chi.URLParam(r, "documentID"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateDocRequest
	if err := respond.Bind(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	doc, err := h.Service.Update(r.Context(), caller(r), chi.URLParam(r, "documentID"), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), caller(r), chi.URLParam(r, "documentID")); err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	var req model.CollaboratorRequest
	if err := respond.Bind(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	c, err := h.Service.AddCollaborator(r.Context(), caller(r), chi.URLParam(r, "documentID"), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

func (h *DocumentHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	var req model.CollaboratorRequest
	if err := respond.Bind(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.Service.RemoveCollaborator(r.Context(), caller(r), chi.URLParam(r, "documentID"), req.Username); err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) GetCollaborators(w http.ResponseWriter, r *http.Request) {
	collaborators, err := h.Service.Collaborators(r.Context(), caller(r), chi.URLParam(r, "documentID"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, collaborators)
}
