package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "claude-test", body["model"])
		require.EqualValues(t, 1024, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"{\"entities\":[],"},{"type":"text","text":"\"relationships\":[],\"confidence_score\":0}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":7}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "ak-test", BaseURL: srv.URL, Model: "claude-test", MaxTokens: 1024}, nil)
	require.Equal(t, "anthropic", c.Name())

	out, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	require.JSONEq(t, `{"entities":[],"relationships":[],"confidence_score":0}`, out)
}

func TestClient_Complete_Unauthorized(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "bad", BaseURL: srv.URL}, nil).Complete(context.Background(), "p")
	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusUnauthorized, se.StatusCode)
	require.EqualValues(t, 1, hits.Load())
}
