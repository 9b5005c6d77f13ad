package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atendai/chatd/internal/observability"
	"github.com/atendai/chatd/internal/provider"
	metrics "github.com/atendai/chatd/pkg/observability"
	"github.com/atendai/chatd/pkg/session"
)

// ServiceConfig holds the static relay parameters.
type ServiceConfig struct {
	// SystemPrompt is the fixed instruction prepended to every prompt.
	SystemPrompt string
	// Model is the completion model identifier.
	Model string
	// Temperature is the fixed sampling temperature.
	Temperature float32
	// FallbackReply substitutes an empty model reply.
	FallbackReply string
	// HistoryLimit caps the number of retained turns per session.
	HistoryLimit int
}

// Service orchestrates one exchange: load history, assemble the prompt,
// call the provider, and update the stored history.
type Service struct {
	provider provider.Provider
	store    session.Store
	cfg      ServiceConfig

	// One mutex per session serializes concurrent exchanges for the same
	// session so the read-modify-write against the store cannot lose
	// updates. Entries live for the process lifetime, like the sessions
	// themselves.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService creates a relay service.
func NewService(p provider.Provider, store session.Store, cfg ServiceConfig) *Service {
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 20
	}
	return &Service{
		provider: p,
		store:    store,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// ResolveSession returns the caller-supplied session ID when present and
// non-empty, or a freshly generated one.
func (s *Service) ResolveSession(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return uuid.New().String()
}

// Exchange relays one user message for a session and returns the reply.
// The stored history is only updated after a successful completion; on
// failure it is left exactly as it was.
func (s *Service) Exchange(ctx context.Context, sessionID, message string) (string, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	ctx, span := observability.StartSpan(ctx, "chat.exchange",
		trace.WithAttributes(attribute.String("chat.session_id", sessionID)))
	defer span.End()

	history, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	messages := AssemblePrompt(s.cfg.SystemPrompt, history, message)

	start := time.Now()
	resp, err := s.provider.Complete(ctx, provider.CompletionRequest{
		Messages:    messages,
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordProviderCall(s.provider.Name(), status, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = s.cfg.FallbackReply
	}

	updated := append(history,
		session.Turn{Role: session.RoleUser, Text: message},
		session.Turn{Role: session.RoleAssistant, Text: reply},
	)
	updated = session.Trim(updated, s.cfg.HistoryLimit)

	if err := s.store.Set(ctx, sessionID, updated); err != nil {
		return "", fmt.Errorf("save history: %w", err)
	}

	return reply, nil
}

func (s *Service) lockSession(sessionID string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}
