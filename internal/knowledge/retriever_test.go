package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/secureview/internal/diff"
)

const queryDiff = `diff --git a/auth/token.go b/auth/token.go
--- a/auth/token.go
+++ b/auth/token.go
@@ -5,2 +5,4 @@ func verify(token string) bool {
 	parts := strings.Split(token, ".")
+	payload, _ := base64.StdEncoding.DecodeString(parts[1])
+
+	return len(payload) > 0
 	// signature intentionally unchecked
`

func TestDeriveQuery(t *testing.T) {
	d, _, err := diff.Index(queryDiff)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	query := DeriveQuery(d)
	if !strings.Contains(query, "auth/token.go") {
		t.Errorf("query should mention the changed path: %q", query)
	}
	if !strings.Contains(query, "base64.StdEncoding.DecodeString") {
		t.Errorf("query should include added code: %q", query)
	}
	// Blank added lines carry no signal and are dropped.
	if strings.Contains(query, "\n\n") {
		t.Errorf("query should not contain empty added lines: %q", query)
	}
}

func TestDeriveQueryCapsAddedLines(t *testing.T) {
	var b strings.Builder
	b.WriteString("diff --git a/big.go b/big.go\n--- a/big.go\n+++ b/big.go\n@@ -1,0 +1,50 @@\n")
	for i := 0; i < 50; i++ {
		b.WriteString("+line of code\n")
	}

	d, _, err := diff.Index(b.String())
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	query := DeriveQuery(d)
	if got := strings.Count(query, "line of code"); got != maxQueryLines {
		t.Errorf("query carries %d added lines, want %d", got, maxQueryLines)
	}
}

type stubClient struct {
	response string
	err      error
	prompt   string
}

func (c *stubClient) Call(ctx context.Context, prompt string) (string, error) {
	c.prompt = prompt
	return c.response, c.err
}

func TestLLMRetriever(t *testing.T) {
	client := &stubClient{response: "  Parameterize SQL queries. [CWE-89]\n"}
	r := NewLLMRetriever(client)

	got, err := r.Retrieve(context.Background(), "sql injection in go")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got != "Parameterize SQL queries. [CWE-89]" {
		t.Errorf("passages = %q", got)
	}
	if !strings.Contains(client.prompt, "sql injection in go") {
		t.Errorf("prompt should embed the query: %q", client.prompt)
	}
}

func TestLLMRetrieverError(t *testing.T) {
	client := &stubClient{err: errors.New("upstream down")}
	r := NewLLMRetriever(client)

	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected an error")
	}
}
