package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geodata-extractor/constants"
	"github.com/joseph-ayodele/geodata-extractor/internal/cache"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/document"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/extract"
	"github.com/joseph-ayodele/geodata-extractor/internal/core/llm"
)

const (
	metaJSON  = `{"title":"Gold deposits of the Carlin Trend","authors":["R. Smith"],"publication_year":2001,"keywords":["gold","Nevada"],"confidence_score":0.9}`
	graphJSON = `{"entities":[{"name":"Carlin Trend","type":"LOCATION"},{"name":"Gold","type":"MINERAL"}],"relationships":[{"source":"Carlin Trend","target":"Gold","type":"CONTAINS"}],"confidence_score":0.8}`
	tableJSON = `{"tables":[{"table_name":"Assays","columns":["hole","au_ppm"],"data":[{"hole":"DH-1","au_ppm":1.2}],"confidence_score":0.7,"raw_text":"DH-1 1.2"}]}`
)

func testTemplates() map[constants.Task]llm.Template {
	return map[constants.Task]llm.Template{
		constants.TaskMetadata:       llm.NewTemplate(constants.TaskMetadata, "META\n"),
		constants.TaskKnowledgeGraph: llm.NewTemplate(constants.TaskKnowledgeGraph, "GRAPH\n"),
		constants.TaskTable:          llm.NewTemplate(constants.TaskTable, "TABLE\n"),
	}
}

// answering dispatches on the template prefix and counts calls.
type answering struct {
	calls   atomic.Int32
	answers map[string]string
}

func newAnswering(answers map[string]string) *answering {
	return &answering{answers: answers}
}

func (a *answering) Invoke(_ context.Context, prompt string) (string, error) {
	a.calls.Add(1)
	for prefix, ans := range a.answers {
		if strings.HasPrefix(prompt, prefix) {
			return ans, nil
		}
	}
	return "not json", nil
}

func allValid() map[string]string {
	return map[string]string{"META": metaJSON, "GRAPH": graphJSON, "TABLE": tableJSON}
}

func newRouter(t *testing.T, inv llm.Invoker, store cache.Store, opts ...RouterOption) *Router {
	t.Helper()
	v, err := llm.NewValidator()
	require.NoError(t, err)
	var extOpts []extract.Option
	extOpts = append(extOpts, extract.WithRetryDelay(0), extract.WithMaxAttempts(2))
	if store != nil {
		extOpts = append(extOpts, extract.WithStore(store))
	}
	ex := extract.NewExtractor(inv, v, extOpts...)
	return NewRouter(ex, store, append([]RouterOption{WithTemplates(testTemplates())}, opts...)...)
}

func sampleChunks() []document.Chunk {
	texts := []string{
		"Gold deposits of the Carlin Trend. R. Smith, 2001. Nevada Bureau of Mines.",
		"The Carlin Trend is a belt of sediment-hosted gold deposits in northern Nevada.",
		"Drill hole DH-1 returned 1.2 ppm Au over 30 metres of silty limestone.",
		"Regional structure is dominated by the Roberts Mountains thrust.",
	}
	out := make([]document.Chunk, len(texts))
	for i, s := range texts {
		out[i] = document.Chunk{Index: i, Text: s, SourcePage: 1, TokenCount: len(strings.Fields(s))}
	}
	return out
}

func TestSelectInput(t *testing.T) {
	chunks := sampleChunks()

	assert.Equal(t, chunks[0].Text, SelectInput(constants.TaskMetadata, chunks, SelectOptions{}))

	graph := SelectInput(constants.TaskKnowledgeGraph, chunks, SelectOptions{GraphChunks: 3})
	assert.Equal(t, strings.Join([]string{chunks[0].Text, chunks[1].Text, chunks[2].Text}, " "), graph)

	table := SelectInput(constants.TaskTable, chunks, SelectOptions{})
	assert.Equal(t, 4, len(strings.Split(table, "\n\n")))

	assert.Empty(t, SelectInput(constants.TaskMetadata, nil, SelectOptions{}))
	assert.Equal(t, chunks[0].Text, SelectInput(constants.TaskKnowledgeGraph, chunks[:1], SelectOptions{GraphChunks: 3}))
}

func TestSelectInput_GraphTokenBudget(t *testing.T) {
	chunks := sampleChunks()
	first := chunks[0].TokenCount

	got := SelectInput(constants.TaskKnowledgeGraph, chunks, SelectOptions{GraphChunks: 3, GraphTokenBudget: first + 1})
	assert.Equal(t, chunks[0].Text, got)

	// never fewer than one chunk
	got = SelectInput(constants.TaskKnowledgeGraph, chunks, SelectOptions{GraphChunks: 3, GraphTokenBudget: 1})
	assert.Equal(t, chunks[0].Text, got)
}

func TestRouter_SecondRunServedFromCache(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	inv := newAnswering(allValid())
	r := newRouter(t, inv, store)
	ctx := context.Background()

	for _, task := range constants.AllTasks() {
		res := r.Run(ctx, task, sampleChunks())
		require.True(t, res.Succeeded, "task %s: %s", task, res.Err)
		assert.False(t, res.FromCache)
		assert.Equal(t, 1, res.AttemptsUsed)
	}
	require.EqualValues(t, 3, inv.calls.Load())
	require.Equal(t, 3, store.Len())

	for _, task := range constants.AllTasks() {
		res := r.Run(ctx, task, sampleChunks())
		require.True(t, res.Succeeded)
		assert.True(t, res.FromCache)
		assert.Equal(t, 0, res.AttemptsUsed)
	}
	assert.EqualValues(t, 3, inv.calls.Load())
}

func TestRouter_CachedResultMatchesFresh(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	r := newRouter(t, newAnswering(allValid()), store)
	ctx := context.Background()

	fresh := r.Run(ctx, constants.TaskMetadata, sampleChunks())
	cached := r.Run(ctx, constants.TaskMetadata, sampleChunks())
	require.True(t, cached.FromCache)
	assert.JSONEq(t, string(fresh.Payload), string(cached.Payload))
	assert.InDelta(t, 0.9, cached.Confidence, 1e-9)
}

func TestRouter_InvalidCacheEntryBypassed(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	chunks := sampleChunks()
	tpl := testTemplates()[constants.TaskMetadata]
	key := cache.Fingerprint(constants.TaskMetadata, tpl.ID, SelectInput(constants.TaskMetadata, chunks, SelectOptions{}))
	stale := `{"title":"stale"}`
	require.NoError(t, store.Put(context.Background(), key, []byte(stale)))

	inv := newAnswering(allValid())
	r := newRouter(t, inv, store)
	res := r.Run(context.Background(), constants.TaskMetadata, chunks)

	require.True(t, res.Succeeded)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 1, inv.calls.Load())

	entry, ok, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, stale, string(entry.Payload))
}

func TestRouter_NoInput(t *testing.T) {
	inv := newAnswering(allValid())
	r := newRouter(t, inv, cache.NewMemoryStore(nil))

	for _, task := range constants.AllTasks() {
		res := r.Run(context.Background(), task, nil)
		assert.False(t, res.Succeeded)
		assert.Equal(t, "no input text", res.Err)
		assert.Equal(t, 0, res.AttemptsUsed)
	}
	assert.EqualValues(t, 0, inv.calls.Load())
}

func TestRouter_WithoutStore(t *testing.T) {
	inv := newAnswering(allValid())
	r := newRouter(t, inv, nil)

	for i := 0; i < 2; i++ {
		res := r.Run(context.Background(), constants.TaskTable, sampleChunks())
		require.True(t, res.Succeeded)
		assert.False(t, res.FromCache)
	}
	assert.EqualValues(t, 2, inv.calls.Load())
}

func TestRouter_MissingTemplate(t *testing.T) {
	v, err := llm.NewValidator()
	require.NoError(t, err)
	ex := extract.NewExtractor(newAnswering(allValid()), v)
	r := NewRouter(ex, nil, WithTemplates(map[constants.Task]llm.Template{
		constants.TaskMetadata: llm.NewTemplate(constants.TaskMetadata, "META\n"),
	}))

	res := r.Run(context.Background(), constants.TaskTable, sampleChunks())
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.Err, "no template")
}

func TestOrchestrator_AllSucceed(t *testing.T) {
	r := newRouter(t, newAnswering(allValid()), cache.NewMemoryStore(nil))
	o := NewOrchestrator(r, nil)

	rec := o.Process(context.Background(), Document{SourceFile: "carlin.pdf", PageCount: 2, Chunks: sampleChunks()})

	assert.Equal(t, constants.DocumentStatusSucceeded, rec.Status)
	assert.Equal(t, "carlin.pdf", rec.SourceFile)
	assert.Equal(t, 4, rec.ChunkCount)
	assert.False(t, rec.ProcessedAt.IsZero())
	for _, task := range constants.AllTasks() {
		require.NotNil(t, rec.Result(task))
		assert.Equal(t, task, rec.Result(task).Task)
	}
}

func TestOrchestrator_PartialFailureIsIndependent(t *testing.T) {
	answers := allValid()
	answers["TABLE"] = `{"tables": "nope"}`
	inv := newAnswering(answers)
	r := newRouter(t, inv, cache.NewMemoryStore(nil))

	rec := NewOrchestrator(r, nil).Process(context.Background(), Document{SourceFile: "x.pdf", Chunks: sampleChunks()})

	assert.Equal(t, constants.DocumentStatusPartial, rec.Status)
	assert.True(t, rec.Metadata.Succeeded)
	assert.True(t, rec.KnowledgeGraph.Succeeded)
	assert.False(t, rec.Tables.Succeeded)
	assert.Equal(t, 2, rec.Tables.AttemptsUsed)
	assert.NotEmpty(t, rec.Tables.Errors)
	// two good tasks, one attempt each, plus two table attempts
	assert.EqualValues(t, 4, inv.calls.Load())
}

func TestOrchestrator_AllFail(t *testing.T) {
	failing := llm.InvokerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})
	r := newRouter(t, failing, nil)

	rec := NewOrchestrator(r, nil).Process(context.Background(), Document{SourceFile: "x.pdf", Chunks: sampleChunks()})
	assert.Equal(t, constants.DocumentStatusFailed, rec.Status)
}

// stubRunner lets orchestrator tests avoid the extractor entirely.
type stubRunner map[constants.Task]extract.Result

func (s stubRunner) Run(_ context.Context, task constants.Task, _ []document.Chunk) extract.Result {
	return s[task]
}

func TestOrchestrator_TaskSlotsFilled(t *testing.T) {
	runner := stubRunner{
		constants.TaskMetadata:       {Succeeded: true},
		constants.TaskKnowledgeGraph: {Err: "no valid response after 3 attempt(s)"},
		constants.TaskTable:          {Succeeded: true},
	}
	rec := NewOrchestrator(runner, nil).Process(context.Background(), Document{SourceFile: "x.pdf"})

	assert.Equal(t, constants.DocumentStatusPartial, rec.Status)
	assert.Equal(t, constants.TaskKnowledgeGraph, rec.KnowledgeGraph.Task)
	assert.Equal(t, "no valid response after 3 attempt(s)", rec.KnowledgeGraph.Err)
}
