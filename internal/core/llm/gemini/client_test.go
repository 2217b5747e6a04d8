package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		cfg := body["generationConfig"].(map[string]any)
		require.Equal(t, "application/json", cfg["responseMimeType"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"tables\":[]}"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2}}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{APIKey: "g-test", BaseURL: srv.URL, Model: "gemini-test"}, nil)
	require.NoError(t, err)
	require.Equal(t, "gemini", c.Name())

	out, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, `{"tables":[]}`, out)
}
