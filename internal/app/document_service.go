package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/internal/chunker"
	"docuchat/internal/model"
	"docuchat/internal/pkg/pdfextract"
	"docuchat/internal/repository"
)

const (
	DocTypePDF  = "pdf"
	DocTypeText = "text"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentEmpty    = errors.New("document has no extractable text")
)

// DocumentEmbedder embeds chunk texts with document intent, preserving
// input order.
type DocumentEmbedder interface {
	EmbedForIndexing(ctx context.Context, texts []string) ([][]float32, error)
}

type DocumentService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	embedder  DocumentEmbedder
	chunkCfg  chunker.Config
	batchSize int
}

func NewDocumentService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	embedder DocumentEmbedder,
	chunkCfg chunker.Config,
	batchSize int,
) *DocumentService {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &DocumentService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embedder:  embedder,
		chunkCfg:  chunkCfg,
		batchSize: batchSize,
	}
}

type IngestInput struct {
	UserID   string
	Filename string
	Reader   io.Reader
}

type IngestResult struct {
	Document   model.Document `json:"document"`
	ChunkCount int            `json:"chunk_count"`
}

// Ingest extracts text from the upload, chunks it, embeds every chunk
// with document intent, and persists document plus chunks atomically.
// PDF uploads are detected by extension; everything else is treated as
// UTF-8 plain text.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.UserID == "" || input.Reader == nil {
		return nil, ErrInvalidInput
	}
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		filename = "untitled"
	}

	text, pages, docType, err := s.extractText(filename, input.Reader)
	if err != nil {
		return nil, err
	}

	pieces, err := chunker.Split(text, s.chunkCfg)
	if err != nil {
		if errors.Is(err, chunker.ErrNoContent) {
			return nil, ErrDocumentEmpty
		}
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, ErrDocumentEmpty
	}

	embeddings, err := s.embedAll(ctx, pieces)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	doc := &model.Document{
		ID:               uuid.NewString(),
		UserID:           input.UserID,
		Name:             name,
		OriginalFilename: filepath.Base(filename),
		Title:            name,
		PageCount:        pages,
		ChunkCount:       len(pieces),
		ProcessedAt:      &now,
		CreatedAt:        now,
	}
	doc.StorageKey = fmt.Sprintf("documents/%s/%s", input.UserID, doc.ID)

	chunks := make([]model.Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = model.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Content:    pieces[i],
			Page:       chunker.EstimatePage(i, len(pieces), pages),
			Seq:        i,
			DocType:    docType,
			CreatedAt:  now,
		}
		chunks[i].SetEmbedding(embeddings[i])
	}

	if err := s.docRepo.CreateWithChunks(doc, chunks); err != nil {
		return nil, err
	}
	return &IngestResult{Document: *doc, ChunkCount: len(chunks)}, nil
}

func (s *DocumentService) ListDocuments(userID string) ([]model.Document, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(userID)
}

func (s *DocumentService) GetDocument(userID, documentID string) (*model.Document, error) {
	if userID == "" || documentID == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// DeleteDocument removes the document and all of its chunks in one
// transaction, so retrieval never sees orphaned chunks.
func (s *DocumentService) DeleteDocument(userID, documentID string) error {
	if userID == "" || documentID == "" {
		return ErrInvalidInput
	}
	if err := s.docRepo.DeleteWithChunks(documentID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}
	return nil
}

func (s *DocumentService) extractText(filename string, r io.Reader) (string, int, string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		res, err := pdfextract.Extract(r)
		if err != nil {
			return "", 0, "", fmt.Errorf("extract pdf failed: %w", err)
		}
		return res.Text, res.PageCount, DocTypePDF, nil
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", fmt.Errorf("read upload failed: %w", err)
	}
	return string(raw), 1, DocTypeText, nil
}

// embedAll calls the embedding API in batches to respect provider limits
// and checks the final count against the input.
func (s *DocumentService) embedAll(ctx context.Context, pieces []string) ([][]float32, error) {
	var embeddings [][]float32
	for i := 0; i < len(pieces); i += s.batchSize {
		end := i + s.batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := s.embedder.EmbedForIndexing(ctx, pieces[i:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(pieces) {
		return nil, errors.New("embedding count mismatch")
	}
	return embeddings, nil
}
