package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHFCaptionerCaption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"generated_text":"a cat sitting on a keyboard"}]`))
	}))
	defer srv.Close()

	c := NewHFCaptioner("test-key", srv.URL, zerolog.Nop())
	caption, err := c.Caption(context.Background(), []byte{0xFF, 0xD8})
	require.NoError(t, err)
	assert.Equal(t, "a cat sitting on a keyboard", caption)
}

func TestHFCaptionerNoKey(t *testing.T) {
	c := NewHFCaptioner("", "http://unused", zerolog.Nop())
	_, err := c.Caption(context.Background(), []byte{0x00})
	assert.ErrorIs(t, err, ErrCaptionUnavailable)
}

func TestHFCaptionerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHFCaptioner("test-key", srv.URL, zerolog.Nop())
	_, err := c.Caption(context.Background(), []byte{0x00})
	assert.ErrorIs(t, err, ErrRequest)
}

func TestHFCaptionerEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewHFCaptioner("test-key", srv.URL, zerolog.Nop())
	_, err := c.Caption(context.Background(), []byte{0x00})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
