package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost")
	assert.Error(t, err)

	c, err := NewClient("http://localhost:11434/api/chat")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestModelOptions(t *testing.T) {
	assert.Equal(t, 4096, modelOptions("openbmb/minicpm-v4.5")["num_ctx"])
	_, ok := modelOptions("llava")["num_ctx"]
	assert.False(t, ok)
}

func TestLocateFaces(t *testing.T) {
	answer := `{"faces":[{"confidence":0.8,"box":{"x":0.1,"y":0.1,"w":0.2,"h":0.2}}],"description":"portrait"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llava", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "llava",
			"message": map[string]any{"role": "assistant", "content": answer},
			"done":    true,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	img := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})
	result, err := c.LocateFaces(context.Background(), "llava", "find faces", img)
	require.NoError(t, err)
	require.Len(t, result.Faces, 1)
	assert.Equal(t, 0.8, result.Faces[0].Confidence)
}

func TestLocateFacesRejectsBadBase64(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	require.NoError(t, err)

	_, err = c.LocateFaces(context.Background(), "llava", "find faces", "%%%")
	assert.Error(t, err)
}
