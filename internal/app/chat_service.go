package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"docuchat/internal/ai"
	"docuchat/internal/model"
)

const (
	chatDefaultTopK      = 5
	chatDefaultThreshold = 0.6
	defaultHistoryWindow = 10

	sessionTitleMaxRunes = 64
)

var ErrLLMConfig = errors.New("llm config is invalid")

// TextGenerator produces assistant replies from a message list.
type TextGenerator interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

// ChatService orchestrates one conversational turn: resolve the session,
// retrieve grounding context, persist the user message, generate, and
// persist the reply.
type ChatService struct {
	memory        *MemoryService
	retrieval     *RetrievalService
	generator     TextGenerator
	llmCfg        ai.ChatConfig
	topK          int
	threshold     float64
	historyWindow int
}

func NewChatService(
	memory *MemoryService,
	retrieval *RetrievalService,
	generator TextGenerator,
	llmCfg ai.ChatConfig,
	topK int,
	threshold float64,
	historyWindow int,
) *ChatService {
	if topK <= 0 {
		topK = chatDefaultTopK
	}
	if threshold <= 0 || threshold > 1 {
		threshold = chatDefaultThreshold
	}
	if historyWindow <= 0 {
		historyWindow = defaultHistoryWindow
	}
	return &ChatService{
		memory:        memory,
		retrieval:     retrieval,
		generator:     generator,
		llmCfg:        llmCfg,
		topK:          topK,
		threshold:     threshold,
		historyWindow: historyWindow,
	}
}

type ChatInput struct {
	UserID     string
	SessionID  string // empty starts a new session
	Message    string
	DocumentID string // binds a new session; must match an existing session's binding
}

type ChatResult struct {
	SessionID      string         `json:"session_id"`
	SessionCreated bool           `json:"session_created"`
	Answer         string         `json:"answer"`
	Sources        []SearchResult `json:"sources"`
}

// StreamCallbacks receive ordered stream events: the session frame first,
// then sources, then every answer fragment.
type StreamCallbacks struct {
	OnSession func(sessionID string, created bool) error
	OnSources func(sources []SearchResult) error
	OnDelta   func(chunk string) error
}

// ProcessChat runs one blocking turn and returns the full answer. The
// user message is durably enqueued before generation starts, so a failed
// generation leaves the question in history with no assistant reply.
func (s *ChatService) ProcessChat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	turn, err := s.prepareTurn(ctx, input)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Complete(ctx, s.llmCfg, turn.prompt)
	if err != nil {
		return nil, err
	}
	return s.finishTurn(ctx, turn, answer)
}

// ProcessChatStream runs one streaming turn. The session frame is emitted
// before any answer fragment; the assistant message is persisted only
// after the stream completes, so a broken stream discards partial output.
func (s *ChatService) ProcessChatStream(ctx context.Context, input ChatInput, callbacks StreamCallbacks) (*ChatResult, error) {
	turn, err := s.prepareTurn(ctx, input)
	if err != nil {
		return nil, err
	}

	if callbacks.OnSession != nil {
		if err := callbacks.OnSession(turn.session.ID, turn.created); err != nil {
			return nil, err
		}
	}
	if callbacks.OnSources != nil {
		if err := callbacks.OnSources(turn.sources); err != nil {
			return nil, err
		}
	}

	onDelta := callbacks.OnDelta
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	answer, err := s.generator.StreamComplete(ctx, s.llmCfg, turn.prompt, onDelta)
	if err != nil {
		return nil, err
	}
	return s.finishTurn(ctx, turn, answer)
}

type chatTurn struct {
	session *model.ChatSession
	created bool
	sources []SearchResult
	prompt  []ai.ChatMessage
}

func (s *ChatService) prepareTurn(ctx context.Context, input ChatInput) (*chatTurn, error) {
	if input.UserID == "" {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Message)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	if s.llmCfg.BaseURL == "" || s.llmCfg.Model == "" {
		return nil, ErrLLMConfig
	}

	session, created, err := s.resolveSession(input, content)
	if err != nil {
		return nil, err
	}

	window, err := s.memory.RecentWindow(ctx, input.UserID, session.ID, s.historyWindow)
	if err != nil {
		return nil, err
	}

	docScope := ""
	if session.DocumentID != nil {
		docScope = *session.DocumentID
	}
	threshold := s.threshold
	sources, err := s.retrieval.HybridSearch(ctx, SearchInput{
		UserID:     input.UserID,
		Query:      content,
		DocumentID: docScope,
		TopK:       s.topK,
		Threshold:  &threshold,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.memory.AppendMessage(ctx, session.ID, input.UserID, model.RoleUser, content, ""); err != nil {
		return nil, err
	}

	return &chatTurn{
		session: session,
		created: created,
		sources: sources,
		prompt:  buildPrompt(sources, window, content),
	}, nil
}

func (s *ChatService) resolveSession(input ChatInput, content string) (*model.ChatSession, bool, error) {
	if input.SessionID != "" {
		session, err := s.memory.GetSession(input.UserID, input.SessionID)
		if err != nil {
			return nil, false, err
		}
		if input.DocumentID != "" {
			if session.DocumentID == nil || *session.DocumentID != input.DocumentID {
				return nil, false, ErrInvalidInput
			}
		}
		return session, false, nil
	}
	session, err := s.memory.CreateSession(CreateSessionInput{
		UserID:     input.UserID,
		Title:      sessionTitle(content),
		DocumentID: input.DocumentID,
	})
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

func (s *ChatService) finishTurn(ctx context.Context, turn *chatTurn, answer string) (*ChatResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}

	metadata := sourceMetadata(turn.sources)
	if _, err := s.memory.AppendMessage(ctx, turn.session.ID, turn.session.UserID, model.RoleAssistant, answer, metadata); err != nil {
		return nil, err
	}

	return &ChatResult{
		SessionID:      turn.session.ID,
		SessionCreated: turn.created,
		Answer:         answer,
		Sources:        turn.sources,
	}, nil
}

func buildPrompt(sources []SearchResult, window []model.ChatMessage, userInput string) []ai.ChatMessage {
	system := "You are a helpful assistant that answers questions about the user's documents. " +
		"Answer using only the context below. If the context does not contain the answer, say so plainly.\n\n" +
		"Context:\n" + FormatContext(sources) + "\n\n" +
		"Conversation so far:\n" + FormatHistory(window)

	messages := make([]ai.ChatMessage, 0, len(window)+2)
	messages = append(messages, ai.ChatMessage{Role: model.RoleSystem, Content: system})
	for _, m := range window {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			continue
		}
		messages = append(messages, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: model.RoleUser, Content: userInput})
	return messages
}

// sourceMetadata records which chunks grounded the reply, stored beside
// the assistant message.
func sourceMetadata(sources []SearchResult) string {
	if len(sources) == 0 {
		return ""
	}
	type ref struct {
		ChunkID    string  `json:"chunk_id"`
		DocumentID string  `json:"document_id"`
		Score      float64 `json:"score"`
	}
	refs := make([]ref, len(sources))
	for i, src := range sources {
		refs[i] = ref{ChunkID: src.ChunkID, DocumentID: src.DocumentID, Score: src.Score}
	}
	b, err := json.Marshal(map[string][]ref{"sources": refs})
	if err != nil {
		return ""
	}
	return string(b)
}

func sessionTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= sessionTitleMaxRunes {
		return content
	}
	return string(runes[:sessionTitleMaxRunes])
}
