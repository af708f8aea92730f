package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ragcore/internal/domain"
	"ragcore/internal/service"
)

// KBHandler manages knowledge bases and their documents.
type KBHandler struct {
	indexer *service.Indexer
	logger  *zap.Logger
}

func NewKBHandler(indexer *service.Indexer, logger *zap.Logger) *KBHandler {
	return &KBHandler{indexer: indexer, logger: logger}
}

type createKBRequest struct {
	OwnerID     string `json:"ownerId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type kbList struct {
	KnowledgeBases []domain.KnowledgeBase `json:"knowledgeBases"`
}

type ingestRequest struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Source  string   `json:"source,omitempty"`
	Content string   `json:"content"`
	Chunks  []string `json:"chunks,omitempty"`
}

// Create handles POST /api/v1/kbs.
func (h *KBHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKBRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	kb, err := h.indexer.CreateKB(r.Context(), req.OwnerID, req.Name, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, kb)
}

// Get handles GET /api/v1/kbs/{kbID}.
func (h *KBHandler) Get(w http.ResponseWriter, r *http.Request) {
	kb, err := h.indexer.GetKB(r.Context(), chi.URLParam(r, "kbID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, kb)
}

// List handles GET /api/v1/kbs.
func (h *KBHandler) List(w http.ResponseWriter, r *http.Request) {
	kbs, err := h.indexer.ListKBs(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if kbs == nil {
		kbs = []domain.KnowledgeBase{}
	}
	writeJSON(w, h.logger, http.StatusOK, kbList{KnowledgeBases: kbs})
}

// Delete handles DELETE /api/v1/kbs/{kbID}. Removal covers every index
// plane, not just the relational row.
func (h *KBHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.indexer.DeleteKB(r.Context(), chi.URLParam(r, "kbID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IngestDocument handles POST /api/v1/kbs/{kbID}/documents.
func (h *KBHandler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	doc, err := h.indexer.Ingest(r.Context(), chi.URLParam(r, "kbID"), service.IngestRequest{
		ID:      req.ID,
		Name:    req.Name,
		Source:  req.Source,
		Content: req.Content,
		Chunks:  req.Chunks,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, doc)
}

// DeleteDocument handles DELETE /api/v1/kbs/{kbID}/documents/{docID}.
func (h *KBHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := h.indexer.DeleteDocument(r.Context(), chi.URLParam(r, "kbID"), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
