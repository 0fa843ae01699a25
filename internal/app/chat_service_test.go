package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/ai"
	"docuchat/internal/model"
	"docuchat/internal/repository"
)

func newChatFixture(t *testing.T, gen *stubGenerator) (*ChatService, *syncPublisher, *MemoryService) {
	t.Helper()
	db := newTestDB(t)
	seedDocument(t, db, "user-1", "guide", []float64{0.9, 0.75})

	pub := &syncPublisher{repo: repository.NewChatMessageRepository(db)}
	gen.snapshot = pub.roles

	memory := newMemoryService(t, db, pub)
	retrieval := newRetrievalService(db, &stubEmbedder{queryVec: []float32{1, 0}})
	svc := NewChatService(
		memory,
		retrieval,
		gen,
		ai.ChatConfig{BaseURL: "http://llm.local", APIKey: "key", Model: "test-model"},
		5,
		0.6,
		10,
	)
	return svc, pub, memory
}

func TestProcessChatCreatesSessionAndPersistsTurn(t *testing.T) {
	gen := &stubGenerator{reply: "the guide says so"}
	svc, pub, memory := newChatFixture(t, gen)

	result, err := svc.ProcessChat(context.Background(), ChatInput{
		UserID:  "user-1",
		Message: "what does the guide say",
	})
	require.NoError(t, err)
	assert.True(t, result.SessionCreated)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "the guide says so", result.Answer)
	require.Len(t, result.Sources, 2)

	history, err := memory.GetHistory(context.Background(), "user-1", result.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "what does the guide say", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Contains(t, history[1].Metadata, "sources")

	assert.Equal(t, []string{model.RoleUser, model.RoleAssistant}, pub.roles())
}

func TestProcessChatPersistsUserBeforeGeneration(t *testing.T) {
	gen := &stubGenerator{reply: "answer"}
	svc, _, _ := newChatFixture(t, gen)

	_, err := svc.ProcessChat(context.Background(), ChatInput{
		UserID:  "user-1",
		Message: "is the user message stored first",
	})
	require.NoError(t, err)

	// when generation began, only the user message had been enqueued
	assert.Equal(t, []string{model.RoleUser}, gen.rolesAtCall)
}

func TestProcessChatGenerationFailureKeepsQuestion(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model unavailable")}
	svc, pub, _ := newChatFixture(t, gen)

	_, err := svc.ProcessChat(context.Background(), ChatInput{
		UserID:  "user-1",
		Message: "will this fail",
	})
	require.Error(t, err)

	// the question survives, no assistant message is written
	assert.Equal(t, []string{model.RoleUser}, pub.roles())
}

func TestProcessChatPromptAssembly(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, _, memory := newChatFixture(t, gen)
	ctx := context.Background()

	session, err := memory.CreateSession(CreateSessionInput{UserID: "user-1", Title: "t"})
	require.NoError(t, err)
	_, err = memory.AppendMessage(ctx, session.ID, "user-1", model.RoleUser, "earlier question", "")
	require.NoError(t, err)
	_, err = memory.AppendMessage(ctx, session.ID, "user-1", model.RoleAssistant, "earlier answer", "")
	require.NoError(t, err)

	_, err = svc.ProcessChat(ctx, ChatInput{
		UserID:    "user-1",
		SessionID: session.ID,
		Message:   "follow-up question",
	})
	require.NoError(t, err)

	prompt := gen.promptAtCall
	require.GreaterOrEqual(t, len(prompt), 4)
	assert.Equal(t, model.RoleSystem, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "guide chunk 0")
	assert.Equal(t, "earlier question", prompt[1].Content)
	assert.Equal(t, "earlier answer", prompt[2].Content)
	assert.Equal(t, "follow-up question", prompt[len(prompt)-1].Content)
}

func TestProcessChatEmptyCorpusPrompt(t *testing.T) {
	gen := &stubGenerator{reply: "I don't know"}
	db := newTestDB(t)
	pub := &syncPublisher{repo: repository.NewChatMessageRepository(db)}
	gen.snapshot = pub.roles
	memory := newMemoryService(t, db, pub)
	retrieval := newRetrievalService(db, &stubEmbedder{queryVec: []float32{1, 0}})
	svc := NewChatService(memory, retrieval, gen,
		ai.ChatConfig{BaseURL: "http://llm.local", Model: "test-model"}, 5, 0.6, 10)

	result, err := svc.ProcessChat(context.Background(), ChatInput{
		UserID:  "user-1",
		Message: "anything indexed yet",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Sources)
	assert.Contains(t, gen.promptAtCall[0].Content, "No relevant information")
}

func TestProcessChatValidation(t *testing.T) {
	gen := &stubGenerator{reply: "x"}
	svc, _, _ := newChatFixture(t, gen)
	ctx := context.Background()

	_, err := svc.ProcessChat(ctx, ChatInput{UserID: "user-1", Message: "   "})
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = svc.ProcessChat(ctx, ChatInput{UserID: "", Message: "hello there"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ProcessChat(ctx, ChatInput{UserID: "user-1", SessionID: "missing", Message: "hello there"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProcessChatDocumentMismatchOnExistingSession(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	db := newTestDB(t)
	boundDoc := seedDocument(t, db, "user-1", "guide", []float64{0.9})
	otherDoc := seedDocument(t, db, "user-1", "appendix", []float64{0.8})

	pub := &syncPublisher{repo: repository.NewChatMessageRepository(db)}
	gen.snapshot = pub.roles
	memory := newMemoryService(t, db, pub)
	retrieval := newRetrievalService(db, &stubEmbedder{queryVec: []float32{1, 0}})
	svc := NewChatService(memory, retrieval, gen,
		ai.ChatConfig{BaseURL: "http://llm.local", Model: "test-model"}, 5, 0.6, 10)
	ctx := context.Background()

	session, err := memory.CreateSession(CreateSessionInput{UserID: "user-1", DocumentID: boundDoc})
	require.NoError(t, err)

	_, err = svc.ProcessChat(ctx, ChatInput{
		UserID:     "user-1",
		SessionID:  session.ID,
		Message:    "use the other document",
		DocumentID: otherDoc,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	unbound, err := memory.CreateSession(CreateSessionInput{UserID: "user-1"})
	require.NoError(t, err)
	_, err = svc.ProcessChat(ctx, ChatInput{
		UserID:     "user-1",
		SessionID:  unbound.ID,
		Message:    "bind me now",
		DocumentID: boundDoc,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// the matching binding passes
	_, err = svc.ProcessChat(ctx, ChatInput{
		UserID:     "user-1",
		SessionID:  session.ID,
		Message:    "use the bound document",
		DocumentID: boundDoc,
	})
	assert.NoError(t, err)
}

func TestProcessChatRetrievalFailureAbortsTurn(t *testing.T) {
	gen := &stubGenerator{reply: "never reached"}
	db := newTestDB(t)
	seedDocument(t, db, "user-1", "guide", []float64{0.9})

	pub := &syncPublisher{repo: repository.NewChatMessageRepository(db)}
	gen.snapshot = pub.roles
	memory := newMemoryService(t, db, pub)
	retrieval := newRetrievalService(db, &stubEmbedder{err: errors.New("embedding provider down")})
	svc := NewChatService(memory, retrieval, gen,
		ai.ChatConfig{BaseURL: "http://llm.local", Model: "test-model"}, 5, 0.6, 10)

	_, err := svc.ProcessChat(context.Background(), ChatInput{
		UserID:  "user-1",
		Message: "does retrieval run first",
	})
	require.Error(t, err)

	// retrieval runs before the user message is enqueued, so nothing is stored
	assert.Empty(t, pub.roles())
	assert.Nil(t, gen.rolesAtCall)
}

func TestProcessChatStreamOrdering(t *testing.T) {
	gen := &stubGenerator{chunks: []string{"the ", "guide ", "says"}}
	svc, _, _ := newChatFixture(t, gen)

	var events []string
	result, err := svc.ProcessChatStream(context.Background(), ChatInput{
		UserID:  "user-1",
		Message: "stream the answer",
	}, StreamCallbacks{
		OnSession: func(sessionID string, created bool) error {
			require.NotEmpty(t, sessionID)
			assert.True(t, created)
			events = append(events, "session")
			return nil
		},
		OnSources: func(sources []SearchResult) error {
			events = append(events, "sources")
			return nil
		},
		OnDelta: func(chunk string) error {
			events = append(events, "delta:"+chunk)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "the guide says", result.Answer)
	assert.Equal(t, []string{"session", "sources", "delta:the ", "delta:guide ", "delta:says"}, events)
}

func TestProcessChatStreamFailureDiscardsPartialOutput(t *testing.T) {
	gen := &stubGenerator{err: errors.New("stream broke")}
	svc, pub, _ := newChatFixture(t, gen)

	_, err := svc.ProcessChatStream(context.Background(), ChatInput{
		UserID:  "user-1",
		Message: "will the stream break",
	}, StreamCallbacks{})
	require.Error(t, err)
	assert.Equal(t, []string{model.RoleUser}, pub.roles())
}
