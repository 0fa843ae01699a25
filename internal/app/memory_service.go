package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/internal/model"
	"docuchat/internal/repository"
)

const DefaultHistoryLimit = 50

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrInvalidRole     = errors.New("invalid message role")
	ErrMessageEnqueue  = errors.New("message enqueue failed")
)

// AsyncMessagePublisher hands a message to the durable persistence queue.
// A nil error means the message is safely enqueued and will reach the
// store even if this process dies.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.ChatMessage) error
}

// HistoryCache is a read-through cache over session history. The dirty
// marker suppresses caching while enqueued writes may not have landed yet.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// MemoryService owns conversation sessions and their message history.
type MemoryService struct {
	sessionRepo  *repository.ChatSessionRepository
	messageRepo  *repository.ChatMessageRepository
	docRepo      *repository.DocumentRepository
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	historyLimit int
}

func NewMemoryService(
	sessionRepo *repository.ChatSessionRepository,
	messageRepo *repository.ChatMessageRepository,
	docRepo *repository.DocumentRepository,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	historyLimit int,
) *MemoryService {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &MemoryService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		docRepo:      docRepo,
		publisher:    publisher,
		historyCache: historyCache,
		historyLimit: historyLimit,
	}
}

type CreateSessionInput struct {
	UserID     string
	Title      string
	DocumentID string // non-empty binds the session to one document
}

// CreateSession opens a new conversation. When a document is named, it
// must belong to the user; the binding is permanent.
func (s *MemoryService) CreateSession(input CreateSessionInput) (*model.ChatSession, error) {
	if input.UserID == "" {
		return nil, ErrInvalidInput
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	session := &model.ChatSession{
		ID:     uuid.NewString(),
		UserID: input.UserID,
		Title:  title,
	}
	if input.DocumentID != "" {
		doc, err := s.docRepo.GetByIDAndUserID(input.DocumentID, input.UserID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, ErrDocumentNotFound
		}
		docID := input.DocumentID
		session.DocumentID = &docID
	}

	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *MemoryService) ListSessions(userID string) ([]model.ChatSession, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *MemoryService) GetSession(userID, sessionID string) (*model.ChatSession, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// AppendMessage assigns identity and timestamp, invalidates the cached
// history, and enqueues the message for durable persistence. The message
// counts as persisted once the enqueue is confirmed.
func (s *MemoryService) AppendMessage(ctx context.Context, sessionID, userID, role, content, metadata string) (*model.ChatMessage, error) {
	if sessionID == "" || userID == "" {
		return nil, ErrInvalidInput
	}
	if role != model.RoleUser && role != model.RoleAssistant && role != model.RoleSystem {
		return nil, ErrInvalidRole
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	if s.publisher == nil {
		return nil, ErrMessageEnqueue
	}

	msg := &model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, sessionID)
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	if err := s.publisher.Publish(ctx, *msg); err != nil {
		return nil, ErrMessageEnqueue
	}
	return msg, nil
}

// GetHistory returns the newest limit messages of the session, oldest
// first. The cache always holds the full newest page so hits and misses
// agree on which messages survive the cap; it is consulted only when no
// recent write has marked it dirty.
func (s *MemoryService) GetHistory(ctx context.Context, userID, sessionID string, limit int) ([]model.ChatMessage, error) {
	if _, err := s.GetSession(userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return tailMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return tailMessages(messages, limit), nil
}

// RecentWindow returns the last n messages of the session, oldest first,
// for prompt assembly.
func (s *MemoryService) RecentWindow(ctx context.Context, userID, sessionID string, n int) ([]model.ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	history, err := s.GetHistory(ctx, userID, sessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	return tailMessages(history, n), nil
}

// DeleteSession removes the session with all of its messages and drops
// the cached history.
func (s *MemoryService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return ErrInvalidInput
	}
	if err := s.sessionRepo.DeleteWithMessages(sessionID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

// FormatHistory renders messages as a readable transcript block for
// prompt assembly.
func FormatHistory(messages []model.ChatMessage) string {
	if len(messages) == 0 {
		return "No prior conversation."
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, displayRole(m.Role)+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}

func displayRole(role string) string {
	switch role {
	case model.RoleAssistant:
		return "Assistant"
	case model.RoleSystem:
		return "System"
	default:
		return "User"
	}
}

func tailMessages(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
