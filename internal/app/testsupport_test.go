package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docuchat/internal/ai"
	"docuchat/internal/model"
	"docuchat/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Document{},
		&model.Chunk{},
		&model.ChatSession{},
		&model.ChatMessage{},
	))
	return db
}

// stubEmbedder returns a fixed query vector and a per-text document
// vector, and counts batch calls.
type stubEmbedder struct {
	queryVec   []float32
	err        error
	batchCalls int
}

func (s *stubEmbedder) EmbedForQuery(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.queryVec, nil
}

func (s *stubEmbedder) EmbedForIndexing(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batchCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// syncPublisher persists messages inline, standing in for the durable
// queue plus worker, and records the publish order.
type syncPublisher struct {
	repo *repository.ChatMessageRepository

	mu        sync.Mutex
	published []model.ChatMessage
	fail      bool
}

func (p *syncPublisher) Publish(ctx context.Context, msg model.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, msg)
	if p.repo != nil {
		return p.repo.Create(&msg)
	}
	return nil
}

func (p *syncPublisher) roles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.published))
	for i, m := range p.published {
		out[i] = m.Role
	}
	return out
}

// stubGenerator replays a scripted reply and snapshots what had been
// published when generation started.
type stubGenerator struct {
	reply  string
	chunks []string
	err    error

	snapshot     func() []string
	rolesAtCall  []string
	promptAtCall []ai.ChatMessage
}

func (g *stubGenerator) Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	if g.snapshot != nil {
		g.rolesAtCall = g.snapshot()
	}
	g.promptAtCall = messages
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *stubGenerator) StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	if g.snapshot != nil {
		g.rolesAtCall = g.snapshot()
	}
	g.promptAtCall = messages
	if g.err != nil {
		return "", g.err
	}
	full := ""
	for _, c := range g.chunks {
		if err := onChunk(c); err != nil {
			return "", err
		}
		full += c
	}
	return full, nil
}

// seedDocument inserts a document whose chunks score exactly the given
// cosine similarities against the unit query vector [1, 0].
func seedDocument(t *testing.T, db *gorm.DB, userID, name string, scores []float64) string {
	t.Helper()
	doc := &model.Document{
		ID:               uuid.NewString(),
		UserID:           userID,
		Name:             name,
		OriginalFilename: name + ".txt",
		ChunkCount:       len(scores),
		PageCount:        1,
	}
	chunks := make([]model.Chunk, len(scores))
	for i, score := range scores {
		chunks[i] = model.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Content:    fmt.Sprintf("%s chunk %d", name, i),
			Page:       1,
			Seq:        i,
			DocType:    "text",
		}
		chunks[i].SetEmbedding([]float32{
			float32(score),
			float32(math.Sqrt(1 - score*score)),
		})
	}
	repo := repository.NewDocumentRepository(db)
	require.NoError(t, repo.CreateWithChunks(doc, chunks))
	return doc.ID
}

// mapHistoryCache is an in-memory HistoryCache without TTLs.
type mapHistoryCache struct {
	histories map[string][]model.ChatMessage
	dirty     map[string]bool
}

func newMapHistoryCache() *mapHistoryCache {
	return &mapHistoryCache{
		histories: make(map[string][]model.ChatMessage),
		dirty:     make(map[string]bool),
	}
}

func (c *mapHistoryCache) GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error) {
	msgs, ok := c.histories[sessionID]
	return msgs, ok, nil
}

func (c *mapHistoryCache) SetHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error {
	c.histories[sessionID] = messages
	return nil
}

func (c *mapHistoryCache) DeleteHistory(ctx context.Context, sessionID string) error {
	delete(c.histories, sessionID)
	return nil
}

func (c *mapHistoryCache) MarkDirty(ctx context.Context, sessionID string) error {
	c.dirty[sessionID] = true
	return nil
}

func (c *mapHistoryCache) IsDirty(ctx context.Context, sessionID string) (bool, error) {
	return c.dirty[sessionID], nil
}

func newMemoryService(t *testing.T, db *gorm.DB, pub *syncPublisher) *MemoryService {
	t.Helper()
	return NewMemoryService(
		repository.NewChatSessionRepository(db),
		repository.NewChatMessageRepository(db),
		repository.NewDocumentRepository(db),
		pub,
		nil,
		50,
	)
}

func newRetrievalService(db *gorm.DB, embedder QueryEmbedder) *RetrievalService {
	return NewRetrievalService(
		repository.NewDocumentRepository(db),
		repository.NewChunkRepository(db),
		embedder,
	)
}
