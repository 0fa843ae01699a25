package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"docuchat/internal/model"
	"docuchat/internal/repository"
)

const (
	DefaultTopK      = 5
	MaxTopK          = 20
	DefaultThreshold = 0.7

	minQueryChars = 3
)

var ErrQueryTooShort = errors.New("query must be at least 3 characters")

// QueryEmbedder embeds a search query with query intent.
type QueryEmbedder interface {
	EmbedForQuery(ctx context.Context, text string) ([]float32, error)
}

type RetrievalService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	embedder  QueryEmbedder
}

func NewRetrievalService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	embedder QueryEmbedder,
) *RetrievalService {
	return &RetrievalService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embedder:  embedder,
	}
}

type SearchInput struct {
	UserID     string
	Query      string
	DocumentID string // non-empty scopes the search to one document
	TopK       int
	Threshold  *float64 // nil means the default
}

type SearchResult struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Content      string  `json:"content"`
	Page         int     `json:"page"`
	Score        float64 `json:"score"`
}

// Search embeds the query and ranks the user's chunks by cosine
// similarity, keeping those at or above the threshold, best first.
// An empty corpus yields an empty result, not an error.
func (s *RetrievalService) Search(ctx context.Context, input SearchInput) ([]SearchResult, error) {
	query, topK, threshold, err := s.normalize(input)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, input.UserID, input.DocumentID, query, topK, threshold)
}

// HybridSearch over-fetches with a relaxed threshold and a widened
// candidate set, then refilters locally with the caller's parameters.
// The wider first pass keeps borderline chunks available for reranking
// without another embedding call.
func (s *RetrievalService) HybridSearch(ctx context.Context, input SearchInput) ([]SearchResult, error) {
	query, topK, threshold, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	overK := topK * 2
	if overK > MaxTopK {
		overK = MaxTopK
	}
	candidates, err := s.search(ctx, input.UserID, input.DocumentID, query, overK, threshold/2)
	if err != nil {
		return nil, err
	}

	results := candidates[:0]
	for _, c := range candidates {
		if c.Score >= threshold {
			results = append(results, c)
		}
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// FormatContext renders search results as a numbered context block for
// prompt assembly.
func FormatContext(results []SearchResult) string {
	if len(results) == 0 {
		return "No relevant information was found in the indexed documents."
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s, p.%d, similarity %.2f)\n%s", i+1, r.DocumentName, r.Page, r.Score, r.Content)
	}
	return b.String()
}

func (s *RetrievalService) normalize(input SearchInput) (string, int, float64, error) {
	if input.UserID == "" {
		return "", 0, 0, ErrInvalidInput
	}
	query := strings.TrimSpace(input.Query)
	if len([]rune(query)) < minQueryChars {
		return "", 0, 0, ErrQueryTooShort
	}

	topK := input.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	threshold := DefaultThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	return query, topK, threshold, nil
}

func (s *RetrievalService) search(ctx context.Context, userID, documentID, query string, topK int, threshold float64) ([]SearchResult, error) {
	var docs []model.Document
	if documentID != "" {
		doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, ErrDocumentNotFound
		}
		docs = []model.Document{*doc}
	} else {
		var err error
		docs, err = s.docRepo.ListByUserID(userID)
		if err != nil {
			return nil, err
		}
	}
	if len(docs) == 0 {
		return []SearchResult{}, nil
	}

	docNames := make(map[string]string, len(docs))
	docIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		docNames[d.ID] = d.OriginalFilename
		docIDs = append(docIDs, d.ID)
	}

	chunks, err := s.chunkRepo.ListByDocumentIDs(docIDs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []SearchResult{}, nil
	}

	queryVec, err := s.embedder.EmbedForQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(chunks))
	for i := range chunks {
		score := cosineSimilarity(queryVec, chunks[i].EmbeddingVector())
		if score < threshold {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:      chunks[i].ID,
			DocumentID:   chunks[i].DocumentID,
			DocumentName: docNames[chunks[i].DocumentID],
			Content:      chunks[i].Content,
			Page:         chunks[i].Page,
			Score:        score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// cosineSimilarity returns 0 for empty or mismatched vectors instead of
// failing, so one bad row never sinks a whole search.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
