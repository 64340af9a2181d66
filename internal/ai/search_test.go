package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vector []float64
	err    error
}

func (s stubEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return s.vector, s.err
}

func TestVectorSearcherSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))

		var q vectorQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, []float64{0.1, 0.2}, q.Vector)
		assert.Equal(t, 2, q.TopK)

		w.Write([]byte(`{"matches":[
			{"score":0.93,"metadata":{"text":"otters hold hands while sleeping"}},
			{"score":0.71,"metadata":{"text":"sea otters use rocks as tools"}}
		]}`))
	}))
	defer srv.Close()

	s := NewVectorSearcher(stubEmbedder{vector: []float64{0.1, 0.2}}, srv.URL, "secret", 2, zerolog.Nop())
	matches, err := s.Search(context.Background(), "what do otters do?")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "otters hold hands while sleeping", matches[0].Text)
	assert.InDelta(t, 0.93, matches[0].Score, 1e-9)
}

func TestVectorSearcherNoIndexConfigured(t *testing.T) {
	s := NewVectorSearcher(stubEmbedder{}, "", "", 2, zerolog.Nop())
	matches, err := s.Search(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Nil(t, matches)
}

func TestVectorSearcherIndexError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewVectorSearcher(stubEmbedder{vector: []float64{1}}, srv.URL, "", 0, zerolog.Nop())
	_, err := s.Search(context.Background(), "query")
	assert.ErrorIs(t, err, ErrRequest)
}
