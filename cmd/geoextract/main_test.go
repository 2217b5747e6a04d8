package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer

	o, err := parseFlags([]string{"-input-dir", "raw", "-workers", "4", "-export-xlsx"}, &stderr)
	require.NoError(t, err)
	require.Equal(t, "raw", o.inputDir)
	require.Equal(t, 4, o.workers)
	require.True(t, o.exportXLSX)

	_, err = parseFlags([]string{"-input-file", "a.pdf", "-input-dir", "raw"}, &stderr)
	require.ErrorContains(t, err, "mutually exclusive")

	_, err = parseFlags([]string{"-input-file", "a.pdf", "-watch"}, &stderr)
	require.Error(t, err)

	_, err = parseFlags([]string{"stray"}, &stderr)
	require.Error(t, err)
}

func TestRun_ConfigErrorsExitTwo(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	var stderr bytes.Buffer
	require.Equal(t, exitConfig, run(context.Background(), []string{"-inmem-cache"}, &stderr))
	require.Contains(t, stderr.String(), "CONFIG_ERROR")

	stderr.Reset()
	require.Equal(t, exitConfig, run(context.Background(), []string{"-input-file", "a.pdf", "-input-dir", "b"}, &stderr))
}

// fakeOllama answers each default prompt with a valid payload for its task.
func fakeOllama(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var answer string
		switch {
		case strings.HasPrefix(req.Prompt, "You are a geological librarian"):
			answer = `{"title":"Carlin Trend gold","authors":["R. Smith"],"publication_year":2001,"keywords":["gold"],"confidence_score":0.9}`
		case strings.HasPrefix(req.Prompt, "You are a geoscientist"):
			answer = `{"entities":[{"name":"Carlin Trend","type":"LOCATION"},{"name":"Gold","type":"MINERAL"}],"relationships":[{"source":"Carlin Trend","target":"Gold","type":"CONTAINS"}],"confidence_score":0.8}`
		default:
			answer = `{"tables":[{"table_name":"Assays","columns":["hole","au_ppm"],"data":[{"hole":"DH-1","au_ppm":1.2}],"confidence_score":0.7,"raw_text":"DH-1 1.2"}]}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "test", "response": answer, "done": true})
	}))
}

func TestRun_EndToEndWithOllama(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, &calls)
	defer srv.Close()

	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LLM_BASE_URL", srv.URL)
	t.Setenv("LLM_MODEL", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("EXTRACT_TOKEN_ENCODING", "none")

	in := t.TempDir()
	out := t.TempDir()
	text := "Gold deposits of the Carlin Trend, northern Nevada, by R. Smith (2001).\n\n" +
		"The Carlin Trend hosts sediment-hosted gold deposits in silty limestone.\n\n" +
		"Drill hole DH-1 returned 1.2 ppm Au over thirty metres of altered limestone."
	require.NoError(t, os.WriteFile(filepath.Join(in, "carlin.txt"), []byte(text), 0o644))

	args := []string{"-input-dir", in, "-output-dir", out, "-include-text", "-inmem-cache", "-export-xlsx", "-workers", "1"}
	var stderr bytes.Buffer
	require.Equal(t, exitOK, run(context.Background(), args, &stderr), stderr.String())
	require.EqualValues(t, 3, calls.Load())

	raw, err := os.ReadFile(filepath.Join(out, "carlin_extraction_result.json"))
	require.NoError(t, err)
	var rec struct {
		SourceFile string `json:"source_file"`
		Status     string `json:"status"`
		Metadata   struct {
			Succeeded    bool `json:"succeeded"`
			AttemptsUsed int  `json:"attempts_used"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &rec))
	require.Equal(t, "carlin.txt", rec.SourceFile)
	require.Equal(t, "SUCCEEDED", rec.Status)
	require.True(t, rec.Metadata.Succeeded)
	require.Equal(t, 1, rec.Metadata.AttemptsUsed)

	_, err = os.Stat(filepath.Join(out, "carlin_tables.xlsx"))
	require.NoError(t, err)
}

func TestRun_UnreadableDocumentExitsOne(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, &calls)
	defer srv.Close()

	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LLM_BASE_URL", srv.URL)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("EXTRACT_TOKEN_ENCODING", "none")

	bad := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf"), 0o644))

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-input-file", bad, "-output-dir", t.TempDir(), "-inmem-cache"}, &stderr)
	require.Equal(t, exitDocFailures, code)
	require.Zero(t, calls.Load())
}

func TestRun_MissingInputDirExitsTwo(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("EXTRACT_TOKEN_ENCODING", "none")

	var stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "nope")
	require.Equal(t, exitConfig, run(context.Background(), []string{"-input-dir", missing, "-output-dir", t.TempDir(), "-inmem-cache"}, &stderr))
}
