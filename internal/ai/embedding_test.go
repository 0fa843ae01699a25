package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, handler func(req map[string]interface{}) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(req)))
	}))
}

func TestEmbedBatchSendsTaskType(t *testing.T) {
	var gotTask string
	srv := embeddingServer(t, func(req map[string]interface{}) interface{} {
		gotTask, _ = req["task_type"].(string)
		return map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{1, 0, 0}},
				{"index": 1, "embedding": []float32{0, 1, 0}},
			},
		}
	})
	defer srv.Close()

	client := NewOpenAICompatibleClient()
	cfg := EmbeddingConfig{BaseURL: srv.URL, Model: "embed-test", Dimensions: 3}

	vecs, err := client.EmbedBatch(context.Background(), cfg, []string{"a", "b"}, TaskRetrievalDocument)
	require.NoError(t, err)
	assert.Equal(t, TaskRetrievalDocument, gotTask)
	assert.Len(t, vecs, 2)
}

func TestEmbedBatchRealignsByIndex(t *testing.T) {
	srv := embeddingServer(t, func(req map[string]interface{}) interface{} {
		return map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		}
	})
	defer srv.Close()

	client := NewOpenAICompatibleClient()
	cfg := EmbeddingConfig{BaseURL: srv.URL, Model: "embed-test", Dimensions: 2}

	vecs, err := client.EmbedBatch(context.Background(), cfg, []string{"first", "second"}, TaskRetrievalDocument)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	srv := embeddingServer(t, func(req map[string]interface{}) interface{} {
		return map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{1, 0}},
			},
		}
	})
	defer srv.Close()

	client := NewOpenAICompatibleClient()
	cfg := EmbeddingConfig{BaseURL: srv.URL, Model: "embed-test", Dimensions: 2}

	_, err := client.EmbedBatch(context.Background(), cfg, []string{"a", "b"}, TaskRetrievalDocument)
	assert.ErrorContains(t, err, "count mismatch")
}

func TestEmbedBatchDimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, func(req map[string]interface{}) interface{} {
		return map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{1, 0, 0, 0}},
			},
		}
	})
	defer srv.Close()

	client := NewOpenAICompatibleClient()
	cfg := EmbeddingConfig{BaseURL: srv.URL, Model: "embed-test", Dimensions: 3}

	_, err := client.EmbedBatch(context.Background(), cfg, []string{"a"}, TaskRetrievalDocument)
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	client := NewOpenAICompatibleClient()
	_, err := client.Embed(context.Background(), EmbeddingConfig{BaseURL: "http://unused"}, "   ", TaskRetrievalQuery)
	assert.Error(t, err)
}

func TestEmbedderIntents(t *testing.T) {
	var tasks []string
	srv := embeddingServer(t, func(req map[string]interface{}) interface{} {
		task, _ := req["task_type"].(string)
		tasks = append(tasks, task)
		inputs := req["input"].([]interface{})
		data := make([]map[string]interface{}, len(inputs))
		for i := range inputs {
			data[i] = map[string]interface{}{"index": i, "embedding": []float32{0.5, 0.5}}
		}
		return map[string]interface{}{"data": data}
	})
	defer srv.Close()

	embedder := NewEmbedder(NewOpenAICompatibleClient(), EmbeddingConfig{
		BaseURL: srv.URL, Model: "embed-test", Dimensions: 2,
	})

	_, err := embedder.EmbedForIndexing(context.Background(), []string{"doc one", "doc two"})
	require.NoError(t, err)
	_, err = embedder.EmbedForQuery(context.Background(), "what is this")
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	assert.Equal(t, TaskRetrievalDocument, tasks[0])
	assert.Equal(t, TaskRetrievalQuery, tasks[1])
}
