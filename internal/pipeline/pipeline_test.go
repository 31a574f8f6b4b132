package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureview/internal/diff"
	"github.com/secureview/internal/llm"
	"github.com/secureview/internal/patch"
	"github.com/secureview/internal/retry"
)

const reviewDiff = `diff --git a/app/db.go b/app/db.go
--- a/app/db.go
+++ b/app/db.go
@@ -10,3 +10,4 @@ func lookupUser(db *sql.DB, id string) {
 	ctx := context.Background()
-	row := db.QueryRow("SELECT name FROM users WHERE id = 1")
+	q := "SELECT name FROM users WHERE id = " + id
+	row := db.QueryRow(q)
 	_ = row
`

// scriptedClient feeds the pipeline's stages canned responses in call order.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedClient) Call(ctx context.Context, prompt string) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", errors.New("scripted client exhausted")
}

type fakeRetriever struct {
	passages string
	err      error
	calls    int
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	r.calls++
	return r.passages, r.err
}

func newTestPipeline(client *scriptedClient, opts Options) *Pipeline {
	cfg := retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}
	opts.Client = llm.NewResilientClient(client, cfg, 0, nil)
	if opts.Validator == nil {
		opts.Validator = patch.NewValidator(patch.PlaceLines, diff.NumberingDocument)
	}
	return New(opts)
}

const analysisWithFinding = `{
	"summary": "string concatenation builds a SQL query from user input",
	"findings": [
		{"file": "app/db.go", "start_line": 11, "end_line": 12, "severity": "high", "rationale": "SQL injection via concatenated id"}
	]
}`

const fixWithPatch = `{
	"patches": [
		{"file": "app/db.go", "start_line": 11, "end_line": 12, "suggestion": "\tq := \"SELECT name FROM users WHERE id = ?\"\n\trow := db.QueryRowContext(ctx, q, id)", "justification": "parameterize the query"}
	]
}`

const testsResponse = `{
	"tests": [
		{"file": "app/db_test.go", "source": "package app\n\nimport \"testing\"\n\nfunc TestLookupUserRejectsInjection(t *testing.T) {}\n"}
	]
}`

func TestRunFullPipeline(t *testing.T) {
	client := &scriptedClient{responses: []string{analysisWithFinding, fixWithPatch, testsResponse}}
	p := newTestPipeline(client, Options{})

	result := p.Run(context.Background(), Request{RunID: "run-1", RawDiff: reviewDiff})

	require.Equal(t, StateDone, result.State)
	assert.Empty(t, result.FailureReason)
	assert.Equal(t, 3, client.calls)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, "app/db.go", result.Findings[0].File)
	assert.Equal(t, "analysis", result.Findings[0].Source)

	require.Len(t, result.Patches, 1)
	assert.Equal(t, 11, result.Patches[0].StartLine)
	assert.Equal(t, 12, result.Patches[0].EndLine)

	require.Len(t, result.Tests, 1)
	assert.Equal(t, "app/db_test.go", result.Tests[0].File)
	assert.NotEmpty(t, result.Summary)
}

func TestRunEmptyDiff(t *testing.T) {
	client := &scriptedClient{}
	p := newTestPipeline(client, Options{})

	result := p.Run(context.Background(), Request{RunID: "run-2", RawDiff: "   \n"})

	assert.Equal(t, StateDone, result.State)
	assert.Zero(t, client.calls)
	// Empty, not nil: a clean run is distinguishable from a missing result.
	assert.NotNil(t, result.Findings)
	assert.NotNil(t, result.Patches)
	assert.NotNil(t, result.Tests)
}

func TestRunMalformedDiff(t *testing.T) {
	client := &scriptedClient{}
	p := newTestPipeline(client, Options{})

	result := p.Run(context.Background(), Request{RunID: "run-3", RawDiff: "@@ -1 +1 @@\n x\n"})

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StateIdle, result.FailedStage)
	assert.NotEmpty(t, result.FailureReason)
	assert.Zero(t, client.calls)
}

func TestRunNoFindingsSkipsLaterStages(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"summary": "nothing suspicious", "findings": []}`}}
	p := newTestPipeline(client, Options{})

	result := p.Run(context.Background(), Request{RunID: "run-4", RawDiff: reviewDiff})

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, result.Findings)
	assert.Empty(t, result.Patches)
	assert.Empty(t, result.Tests)
	assert.Equal(t, "nothing suspicious", result.Summary)
}

func TestRunOutOfRangeFindingDropped(t *testing.T) {
	// One finding targets a line outside the diff; the other stands.
	analysis := `{
		"summary": "two candidates",
		"findings": [
			{"file": "app/db.go", "start_line": 500, "severity": "high", "rationale": "imagined"},
			{"file": "app/db.go", "start_line": 11, "end_line": 12, "severity": "high", "rationale": "real"}
		]
	}`
	client := &scriptedClient{responses: []string{analysis, fixWithPatch, testsResponse}}
	p := newTestPipeline(client, Options{})

	result := p.Run(context.Background(), Request{RunID: "run-5", RawDiff: reviewDiff})

	require.Equal(t, StateDone, result.State)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "real", result.Findings[0].Rationale)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, string(StateAnalyzing), result.Warnings[0].Stage)
}

func TestRunAllPatchesRejectedStillSucceeds(t *testing.T) {
	badFix := `{
		"patches": [
			{"file": "app/other.go", "start_line": 1, "suggestion": "x", "justification": "wrong file"},
			{"file": "app/db.go", "start_line": 90, "end_line": 95, "suggestion": "x", "justification": "outside the diff"}
		]
	}`
	client := &scriptedClient{responses: []string{analysisWithFinding, badFix}}
	p := newTestPipeline(client, Options{})

	result := p.Run(context.Background(), Request{RunID: "run-6", RawDiff: reviewDiff})

	// Rejections are per-item: the run ends Done with an empty patch set and
	// the testing stage never runs.
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 2, client.calls)
	assert.Empty(t, result.Patches)
	assert.Empty(t, result.Tests)
	assert.Len(t, result.Warnings, 2)
}

func TestRunStageFailureCarriesPartialState(t *testing.T) {
	client := &scriptedClient{
		responses: []string{analysisWithFinding},
		errs:      []error{nil, errors.New("invalid api key")},
	}
	p := newTestPipeline(client, Options{})

	result := p.Run(context.Background(), Request{RunID: "run-7", RawDiff: reviewDiff})

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StateFixing, result.FailedStage)
	assert.Contains(t, result.FailureReason, "invalid api key")
	// The analysis stage succeeded, so its findings survive the failure.
	assert.Len(t, result.Findings, 1)
	assert.Empty(t, result.Patches)
}

func TestRunRetrievalFeedsAnalysis(t *testing.T) {
	retriever := &fakeRetriever{passages: "CWE-89: never build SQL from unvalidated input."}
	client := &scriptedClient{responses: []string{`{"summary": "ok", "findings": []}`}}
	p := newTestPipeline(client, Options{Retriever: retriever, EnableRetrieval: true})

	result := p.Run(context.Background(), Request{RunID: "run-8", RawDiff: reviewDiff})

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 1, retriever.calls)
	assert.True(t, result.KnowledgeUsed)
}

func TestRunRetrievalFailureIsBestEffort(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("vector store unreachable")}
	client := &scriptedClient{responses: []string{`{"summary": "ok", "findings": []}`}}
	p := newTestPipeline(client, Options{Retriever: retriever, EnableRetrieval: true})

	result := p.Run(context.Background(), Request{RunID: "run-9", RawDiff: reviewDiff})

	// Retrieval is context, not a dependency: the run completes without it
	// and the loss is recorded as a warning.
	assert.Equal(t, StateDone, result.State)
	assert.False(t, result.KnowledgeUsed)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, string(StateSearching), result.Warnings[0].Stage)
}

func TestRunRetrievalDisabledWithoutRetriever(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"summary": "ok", "findings": []}`}}
	p := newTestPipeline(client, Options{EnableRetrieval: true}) // no retriever wired

	result := p.Run(context.Background(), Request{RunID: "run-10", RawDiff: reviewDiff})

	assert.Equal(t, StateDone, result.State)
	assert.False(t, result.KnowledgeUsed)
}

func TestRunCancelledBeforeStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{responses: []string{analysisWithFinding}}
	p := newTestPipeline(client, Options{})

	result := p.Run(ctx, Request{RunID: "run-11", RawDiff: reviewDiff})

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, StateAnalyzing, result.FailedStage)
	assert.Contains(t, result.FailureReason, "cancelled")
	assert.Zero(t, client.calls)
}
