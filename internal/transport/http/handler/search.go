package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/transport/http/response"
)

type SearchHandler struct {
	retrieval *app.RetrievalService
}

func NewSearchHandler(retrieval *app.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

type SearchRequest struct {
	Query      string   `json:"query" binding:"required"`
	DocumentID string   `json:"document_id"`
	TopK       int      `json:"top_k"`
	Threshold  *float64 `json:"threshold"`
	Hybrid     bool     `json:"hybrid"`
	Format     string   `json:"format"` // "raw" (default) or "context"
}

type searchResultItem struct {
	app.SearchResult
	SimilarityPercent string `json:"similarity_percent"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if req.Format != "" && req.Format != "raw" && req.Format != "context" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "format must be raw or context")
		return
	}

	input := app.SearchInput{
		UserID:     userID,
		Query:      req.Query,
		DocumentID: req.DocumentID,
		TopK:       req.TopK,
		Threshold:  req.Threshold,
	}

	var results []app.SearchResult
	var err error
	if req.Hybrid {
		results, err = h.retrieval.HybridSearch(c.Request.Context(), input)
	} else {
		results, err = h.retrieval.Search(c.Request.Context(), input)
	}
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrQueryTooShort):
			response.Error(c, http.StatusBadRequest, response.CodeQueryTooShort, err.Error())
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search failed")
		}
		return
	}

	if req.Format == "context" {
		response.OK(c, gin.H{"context": app.FormatContext(results), "count": len(results)})
		return
	}

	items := make([]searchResultItem, len(results))
	for i, r := range results {
		items[i] = searchResultItem{
			SearchResult:      r,
			SimilarityPercent: fmt.Sprintf("%.1f%%", r.Score*100),
		}
	}
	response.OK(c, gin.H{"results": items, "count": len(items)})
}
