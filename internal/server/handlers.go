package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
	"github.com/ledgerpipe/ledgerpipe/internal/pipeline"
	"github.com/ledgerpipe/ledgerpipe/internal/storage"
)

// ProcessRunner runs the processing pipeline for an uploaded document.
type ProcessRunner interface {
	Process(ctx context.Context, documentID, actorID string) (pipeline.Context, error)
}

// UploadPolicy validates and places incoming invoice files.
type UploadPolicy struct {
	Dir               string
	MaxSizeBytes      int64
	AllowedExtensions []string
}

func (p UploadPolicy) allowed(ext string) bool {
	return slices.Contains(p.AllowedExtensions, ext)
}

// API holds the HTTP handlers for the invoice endpoints.
type API struct {
	store     storage.Store
	processor ProcessRunner
	uploads   UploadPolicy
	logger    *slog.Logger
}

// NewAPI creates the handler set over the given collaborators.
func NewAPI(store storage.Store, processor ProcessRunner, uploads UploadPolicy, logger *slog.Logger) *API {
	return &API{
		store:     store,
		processor: processor,
		uploads:   uploads,
		logger:    logger,
	}
}

// Routes mounts the invoice endpoints on the given router.
func (a *API) Routes(r chi.Router) {
	r.Post("/v1/invoices", a.handleUpload)
	r.Get("/v1/invoices", a.handleListInvoices)
	r.Get("/v1/invoices/{id}", a.handleGetInvoice)
	r.Get("/v1/suggestions/{id}", a.handleGetSuggestion)
	r.Post("/v1/suggestions/{id}/approve", a.handleApproval)
	r.Get("/v1/audit", a.handleListAudit)
}

type invoiceResponse struct {
	Document    *storage.Document     `json:"document"`
	Suggestions []*storage.Suggestion `json:"suggestions"`
	// ProcessingError is set when the upload was stored but the pipeline
	// failed; the document is retained with status error.
	ProcessingError string `json:"processing_error,omitempty"`
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := GetActor(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, a.uploads.MaxSizeBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing or oversized file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !a.uploads.allowed(ext) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", ext))
		return
	}

	mediaType := mime.TypeByExtension(ext)
	if mediaType == "" {
		mediaType = header.Header.Get("Content-Type")
	}
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}

	id := uuid.New().String()
	location := filepath.Join(a.uploads.Dir, id+ext)
	if err := a.saveFile(file, location); err != nil {
		AddError(ctx, err)
		respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	doc := &storage.Document{
		ID:         id,
		Filename:   header.Filename,
		Location:   location,
		Size:       header.Size,
		MediaType:  mediaType,
		UploadedBy: actor,
		Status:     storage.StatusUploaded,
	}
	if err := a.store.CreateDocument(ctx, doc); err != nil {
		AddError(ctx, err)
		respondError(w, http.StatusInternalServerError, "failed to create document")
		return
	}

	if err := a.store.Record(ctx, &audit.Event{
		Action:     audit.ActionUpload,
		ActorID:    actor,
		DocumentID: doc.ID,
		Success:    true,
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Metadata: map[string]any{
			"filename": header.Filename,
			"size":     header.Size,
		},
	}); err != nil {
		AddError(ctx, err)
		respondError(w, http.StatusInternalServerError, "failed to record upload")
		return
	}

	// Processing is synchronous; a failed pipeline leaves the document in
	// status error but the upload itself stands.
	resp := invoiceResponse{}
	if _, perr := a.processor.Process(ctx, doc.ID, actor); perr != nil {
		AddError(ctx, perr)
		resp.ProcessingError = perr.Error()
	}

	if resp.Document, err = a.store.GetDocument(ctx, doc.ID); err != nil {
		AddError(ctx, err)
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if resp.Suggestions, err = a.store.ListSuggestionsByDocument(ctx, doc.ID); err != nil {
		AddError(ctx, err)
		respondError(w, http.StatusInternalServerError, "failed to load suggestions")
		return
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []*storage.Suggestion{}
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (a *API) saveFile(src io.Reader, location string) error {
	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(location)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(location)
		return err
	}
	return nil
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	docs, err := a.store.ListDocuments(r.Context(), opts)
	if err != nil {
		AddError(r.Context(), err)
		respondError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []*storage.Document{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := a.store.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "document not found")
			return
		}
		AddError(r.Context(), err)
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	suggestions, err := a.store.ListSuggestionsByDocument(r.Context(), id)
	if err != nil {
		AddError(r.Context(), err)
		respondError(w, http.StatusInternalServerError, "failed to load suggestions")
		return
	}
	if suggestions == nil {
		suggestions = []*storage.Suggestion{}
	}
	respondJSON(w, http.StatusOK, invoiceResponse{Document: doc, Suggestions: suggestions})
}

func (a *API) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	sg, err := a.store.GetSuggestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "suggestion not found")
			return
		}
		AddError(r.Context(), err)
		respondError(w, http.StatusInternalServerError, "failed to load suggestion")
		return
	}
	respondJSON(w, http.StatusOK, sg)
}

type approvalRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (a *API) handleApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	actor := GetActor(ctx)

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var status storage.ApprovalStatus
	var action string
	switch req.Status {
	case "approved":
		status, action = storage.ApprovalApproved, audit.ActionApprove
	case "rejected":
		status, action = storage.ApprovalRejected, audit.ActionReject
	default:
		respondError(w, http.StatusBadRequest, `status must be "approved" or "rejected"`)
		return
	}

	sg, err := a.store.SetApproval(ctx, id, status, actor, req.Notes)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "suggestion not found")
			return
		}
		AddError(ctx, err)
		respondError(w, http.StatusInternalServerError, "failed to update suggestion")
		return
	}

	if err := a.store.Record(ctx, &audit.Event{
		Action:     action,
		ActorID:    actor,
		DocumentID: sg.DocumentID,
		Success:    true,
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Metadata: map[string]any{
			"suggestion_id": sg.ID,
			"notes":         req.Notes,
		},
	}); err != nil {
		AddError(ctx, err)
		respondError(w, http.StatusInternalServerError, "failed to record decision")
		return
	}

	respondJSON(w, http.StatusOK, sg)
}

func (a *API) handleListAudit(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	opts.DocumentID = r.URL.Query().Get("document_id")

	events, err := a.store.ListAudit(r.Context(), opts)
	if err != nil {
		AddError(r.Context(), err)
		respondError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func listOptions(r *http.Request) storage.ListOptions {
	var opts storage.ListOptions
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		opts.Offset = v
	}
	return opts
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
