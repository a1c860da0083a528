package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, content any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
		})
	}))
}

func TestLocateFaces(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"faces":[{"confidence":0.7,"box":{"x":0.5,"y":0.5,"w":0.1,"h":0.1}}]}`)
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	result, err := c.LocateFaces(context.Background(), "qwen2.5-vl", "find faces", "aGk=")
	require.NoError(t, err)
	require.Len(t, result.Faces, 1)
	assert.Equal(t, 0.5, result.Faces[0].Box.X)
}

func TestLocateFacesArrayContent(t *testing.T) {
	parts := []map[string]any{{"type": "text", "text": `{"faces":[]}`}}
	srv := newServer(t, http.StatusOK, parts)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	result, err := c.LocateFaces(context.Background(), "m", "p", "")
	require.NoError(t, err)
	assert.Empty(t, result.Faces)
}

func TestLocateFacesServerError(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, "boom")
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.LocateFaces(context.Background(), "m", "p", "aGk=")
	assert.Error(t, err)
}

func TestSimpleQuery(t *testing.T) {
	srv := newServer(t, http.StatusOK, "a person on a beach")
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	text, err := c.SimpleQuery(context.Background(), "m", "describe", "aGk=")
	require.NoError(t, err)
	assert.Equal(t, "a person on a beach", text)
}

func TestNewClientDefaultsToLocalhost(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
}
