// Package ainotes is the core of a personal note-taking backend with
// retrieval-augmented question answering. Notes are chunked and embedded
// into a local SQLite database; questions are answered by hybrid
// vector+BM25 retrieval over the index followed by streamed LLM
// generation grounded in the retrieved notes.
package ainotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ainotes/chunker"
	"ainotes/llm"
	"ainotes/retrieval"
	"ainotes/store"
)

// Service is the main entry point. It owns a store handle and must be
// confined to one goroutine at a time; use CloneForThread for concurrent
// workers.
type Service struct {
	cfg      Config
	store    *store.Store
	client   llm.Client
	index    *retrieval.Index
	selector *retrieval.Selector
}

// New opens the database and wires the retrieval pipeline.
func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := llm.New(cfg.LLMConfig())
	if err != nil {
		return nil, err
	}

	path := cfg.resolveDBPath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}

	return newServiceWithClient(cfg, st, client), nil
}

func newServiceWithClient(cfg Config, st *store.Store, client llm.Client) *Service {
	ch := chunker.New(chunker.Config{MaxChars: cfg.ChunkMaxChars})
	return &Service{
		cfg:      cfg,
		store:    st,
		client:   client,
		index:    retrieval.NewIndex(st, client, ch, cfg.FusionOversample),
		selector: retrieval.NewSelector(client),
	}
}

// Store exposes the underlying store for the HTTP layer's note and tag
// operations.
func (s *Service) Store() *store.Store {
	return s.store
}

// Config returns the configuration captured at construction.
func (s *Service) Config() Config {
	return s.cfg
}

// BuildIndex rebuilds the whole embedding index. The progress callback,
// when non-nil, fires after each note.
func (s *Service) BuildIndex(ctx context.Context, progress retrieval.ProgressFunc) (int, error) {
	return s.index.BuildIndex(ctx, progress)
}

// IndexNote reindexes one note, reporting false when the note does not
// exist or produced no embeddable chunks.
func (s *Service) IndexNote(ctx context.Context, noteID int64) (bool, error) {
	return s.index.IndexNote(ctx, noteID)
}

// AskResult is the non-streaming answer.
type AskResult struct {
	Answer   string   `json:"answer"`
	Thinking string   `json:"thinking"` // reserved, always empty
	Sources  []string `json:"sources"`
}

// Ask answers a question over the index without streaming. Generation
// failure degrades to an empty answer with sources intact.
func (s *Service) Ask(ctx context.Context, question string) (*AskResult, error) {
	contexts, err := s.retrieve(ctx, question, nil)
	if err != nil {
		return nil, err
	}

	system, user := buildAnswerPrompt(contexts, question)
	answer, err := s.client.Generate(ctx, user, system)
	if err != nil {
		slog.Warn("answer generation failed", "error", err)
		answer = ""
	}

	sources := make([]string, 0, len(contexts))
	for _, c := range contexts {
		sources = append(sources, c.Title)
	}
	return &AskResult{Answer: answer, Sources: sources}, nil
}

// SourceRef identifies a note that backed an answer.
type SourceRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// StreamEvent is one element of the ask_stream sequence. Exactly one of
// the field groups is populated: a status label, an answer delta, or the
// terminal done/cancelled record with sources.
type StreamEvent struct {
	Status        string      `json:"status,omitempty"`
	AnswerDelta   string      `json:"answer_delta,omitempty"`
	ThinkingDelta string      `json:"thinking_delta,omitempty"`
	Done          bool        `json:"done,omitempty"`
	Cancelled     bool        `json:"cancelled,omitempty"`
	Sources       []SourceRef `json:"sources,omitempty"`
}

var errStreamCancelled = errors.New("stream cancelled")

// AskStream answers a question, delivering events through emit in order:
// status transitions, answer deltas, then a single terminal event with
// done set and the final sources. The cancel predicate, when non-nil, is
// polled between deltas; once it reports true the terminal event carries
// cancelled and no further events follow. A generation transport failure
// is returned as an error without a terminal event; the transport layer
// decides how to surface it.
func (s *Service) AskStream(ctx context.Context, question string, cancel func() bool, emit func(StreamEvent)) error {
	slog.Info("rag query started", "question", question)

	contexts, err := s.retrieve(ctx, question, func(label string) {
		emit(StreamEvent{Status: label})
	})
	if err != nil {
		return err
	}
	slog.Info("retrieved context documents", "count", len(contexts))

	sources := make([]SourceRef, 0, len(contexts))
	for _, c := range contexts {
		sources = append(sources, SourceRef{ID: c.NoteID, Title: c.Title})
	}

	emit(StreamEvent{Status: "generating"})
	system, user := buildAnswerPrompt(contexts, question)

	err = s.client.GenerateStream(ctx, user, system, func(delta string) error {
		if cancel != nil && cancel() {
			return errStreamCancelled
		}
		if delta != "" {
			emit(StreamEvent{AnswerDelta: delta})
		}
		return nil
	})
	if errors.Is(err, errStreamCancelled) {
		slog.Info("rag query cancelled")
		emit(StreamEvent{Done: true, Cancelled: true, Sources: sources})
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("rag query completed")
	emit(StreamEvent{Done: true, Sources: sources})
	return nil
}

// retrieve runs retrieval and, when enabled, chunk selection. The status
// callback receives semantic stage labels.
func (s *Service) retrieve(ctx context.Context, question string, status func(string)) ([]store.SearchResult, error) {
	contexts, err := s.index.Query(ctx, question, s.cfg.TopK, s.cfg.QueryCount, s.cfg.HybridSearchEnabled, status)
	if err != nil {
		return nil, err
	}

	if s.cfg.ChunkSelectionEnabled && len(contexts) > 0 {
		if status != nil {
			status("selecting")
		}
		contexts = s.selector.Select(ctx, contexts, question)
	}
	return contexts, nil
}

// CheckLLM probes the configured LLM backend.
func (s *Service) CheckLLM(ctx context.Context) (bool, string) {
	return s.client.CheckConnection(ctx)
}

// CloneForThread returns an independent Service bound to a fresh store
// handle on the same database file. The store handle is single-owner, so
// every worker goroutine needs its own clone.
func (s *Service) CloneForThread() (*Service, error) {
	st, err := store.Open(s.store.Path())
	if err != nil {
		return nil, err
	}
	return newServiceWithClient(s.cfg, st, s.client), nil
}

// Close releases the store handle.
func (s *Service) Close() error {
	return s.store.Close()
}
