package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"ainotes"
	"ainotes/parser"
	"ainotes/store"
)

// handler serves the HTTP API. The base service's store handle is
// single-owner, so every request works on a fresh clone.
type handler struct {
	base *ainotes.Service

	reindexMu sync.Mutex
	reindex   reindexState
}

type reindexState struct {
	Running bool   `json:"running"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Error   string `json:"error,omitempty"`
}

func newHandler(svc *ainotes.Service) *handler {
	return &handler{base: svc}
}

// service returns a per-request clone. Callers must Close it.
func (h *handler) service(w http.ResponseWriter) *ainotes.Service {
	svc, err := h.base.CloneForThread()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database unavailable")
		slog.Error("cloning service", "error", err)
		return nil
	}
	return svc
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type notePayload struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	IsMarkdown bool   `json:"is_markdown"`
}

// GET /notes?tag_ids=1,2&without_tags=true
func (h *handler) handleListNotes(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	tagIDs := parseTagIDs(r.URL.Query().Get("tag_ids"))
	withoutTags := r.URL.Query().Get("without_tags") == "true"

	notes, err := svc.Store().ListNotes(r.Context(), tagIDs, withoutTags)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notes")
		slog.Error("listing notes", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// POST /notes
func (h *handler) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req notePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	id, err := svc.Store().CreateNote(r.Context(), req.Title, req.Content, req.IsMarkdown)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create note")
		slog.Error("creating note", "error", err)
		return
	}

	// Index inline so the note is searchable without a full reindex.
	// Failures degrade to lexical-only search for this note.
	if _, err := svc.IndexNote(r.Context(), id); err != nil {
		slog.Warn("indexing new note failed", "note_id", id, "error", err)
	}

	note, err := svc.Store().GetNote(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// POST /notes/import
func (h *handler) handleImportNote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(20 << 20); err != nil { // 20MB max
		writeError(w, http.StatusBadRequest, "expected multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	imported, err := parser.Parse(r.Context(), header.Filename, data)
	if errors.Is(err, parser.ErrUnsupportedFormat) {
		writeError(w, http.StatusUnsupportedMediaType,
			"unsupported file type, expected one of "+strings.Join(parser.SupportedExtensions(), " "))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse file")
		slog.Error("import parse error", "filename", header.Filename, "error", err)
		return
	}

	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	id, err := svc.Store().CreateNote(r.Context(), imported.Title, imported.Content, imported.Markdown)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create note")
		slog.Error("creating imported note", "error", err)
		return
	}
	if _, err := svc.IndexNote(r.Context(), id); err != nil {
		slog.Warn("indexing imported note failed", "note_id", id, "error", err)
	}

	note, err := svc.Store().GetNote(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GET /notes/{id}
func (h *handler) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	note, err := svc.Store().GetNote(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load note")
		slog.Error("loading note", "note_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// PUT /notes/{id}
func (h *handler) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req notePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	if err := svc.Store().UpdateNote(r.Context(), id, req.Title, req.Content, req.IsMarkdown); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update note")
		slog.Error("updating note", "note_id", id, "error", err)
		return
	}
	if _, err := svc.IndexNote(r.Context(), id); err != nil {
		slog.Warn("reindexing updated note failed", "note_id", id, "error", err)
	}

	note, err := svc.Store().GetNote(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DELETE /notes/{id}
func (h *handler) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	if err := svc.Store().DeleteNote(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete note")
		slog.Error("deleting note", "note_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /notes/{id}/favourite
func (h *handler) handleToggleFavourite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	fav, err := svc.Store().ToggleFavourite(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle favourite")
		slog.Error("toggling favourite", "note_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_favourite": fav})
}

// GET /notes/{id}/tags
func (h *handler) handleGetNoteTags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	tags, err := svc.Store().GetNoteTags(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load tags")
		slog.Error("loading note tags", "note_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// PUT /notes/{id}/tags
func (h *handler) handleSetNoteTags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	cleaned := make([]string, 0, len(req.Tags))
	for _, name := range req.Tags {
		if name = strings.TrimSpace(name); name != "" {
			cleaned = append(cleaned, name)
		}
	}

	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	if err := svc.Store().SetNoteTags(r.Context(), id, cleaned); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set tags")
		slog.Error("setting note tags", "note_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /tags
func (h *handler) handleListTags(w http.ResponseWriter, r *http.Request) {
	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	tags, err := svc.Store().ListTags(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tags")
		slog.Error("listing tags", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// PUT /tags/{id}
func (h *handler) handleRenameTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	err := svc.Store().RenameTag(r.Context(), id, strings.TrimSpace(req.Name))
	switch {
	case errors.Is(err, store.ErrDuplicateTag):
		writeError(w, http.StatusConflict, "tag name already exists")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to rename tag")
		slog.Error("renaming tag", "tag_id", id, "error", err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// DELETE /tags/{id}
func (h *handler) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	if err := svc.Store().DeleteTag(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete tag")
		slog.Error("deleting tag", "tag_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type askRequest struct {
	Question string `json:"question"`
}

// POST /rag/ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is empty")
		return
	}

	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	result, err := svc.Ask(ctx, question)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		slog.Error("ask error", "question", question, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /rag/ask/stream
// Server-Sent Events: status {stage,label}, thinking {delta},
// answer {delta}, done {sources?}, error {message}.
func (h *handler) handleAskStream(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	svc := h.service(w)
	if svc == nil {
		return
	}
	defer svc.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	sse := func(event string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
		flusher.Flush()
	}

	sse("status", map[string]string{"stage": "send", "label": "Send"})

	// Client disconnect cancels the stream between deltas.
	cancelled := func() bool { return r.Context().Err() != nil }

	err := svc.AskStream(r.Context(), question, cancelled, func(ev ainotes.StreamEvent) {
		switch {
		case ev.Status != "":
			stage, label := mapStatus(ev.Status)
			sse("status", map[string]string{"stage": stage, "label": label})
		case ev.ThinkingDelta != "":
			sse("thinking", map[string]string{"delta": ev.ThinkingDelta})
		case ev.AnswerDelta != "":
			sse("answer", map[string]string{"delta": ev.AnswerDelta})
		case ev.Done:
			if len(ev.Sources) > 0 {
				sse("done", map[string]any{"sources": ev.Sources})
			} else {
				sse("done", map[string]any{})
			}
			sse("status", map[string]string{"stage": "done", "label": "Done"})
		}
	})
	if err != nil {
		slog.Error("ask stream error", "question", question, "error", err)
		sse("error", map[string]string{"message": err.Error()})
		sse("status", map[string]string{"stage": "error", "label": "Error"})
	}
}

// mapStatus converts the core's semantic labels to UI stages.
func mapStatus(status string) (stage, label string) {
	switch status {
	case "expanding":
		return "embed", "Embed"
	case "searching":
		return "search", "Search"
	case "selecting", "generating":
		return "compose", "Compose"
	default:
		return "compose", "Compose"
	}
}

// POST /rag/reindex
func (h *handler) handleReindexStart(w http.ResponseWriter, r *http.Request) {
	h.reindexMu.Lock()
	if h.reindex.Running {
		h.reindexMu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "already running"})
		return
	}
	h.reindex = reindexState{Running: true}
	h.reindexMu.Unlock()

	svc, err := h.base.CloneForThread()
	if err != nil {
		h.setReindexDone(err)
		writeError(w, http.StatusInternalServerError, "database unavailable")
		return
	}

	go func() {
		defer svc.Close()
		total, err := svc.BuildIndex(context.Background(), func(current, total int, _ string) {
			h.reindexMu.Lock()
			h.reindex.Current = current
			h.reindex.Total = total
			h.reindexMu.Unlock()
		})
		if err == nil {
			h.reindexMu.Lock()
			h.reindex.Current = total
			h.reindex.Total = total
			h.reindexMu.Unlock()
		}
		h.setReindexDone(err)
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *handler) setReindexDone(err error) {
	h.reindexMu.Lock()
	defer h.reindexMu.Unlock()
	h.reindex.Running = false
	if err != nil {
		h.reindex.Error = err.Error()
		slog.Error("reindex failed", "error", err)
	}
}

// GET /rag/reindex
func (h *handler) handleReindexStatus(w http.ResponseWriter, r *http.Request) {
	h.reindexMu.Lock()
	state := h.reindex
	h.reindexMu.Unlock()
	writeJSON(w, http.StatusOK, state)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func parseTagIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
