package prompts

import (
	"strings"
	"testing"

	"github.com/secureview/internal/diff"
	"github.com/secureview/pkg/models"
)

const promptDiff = `diff --git a/app/db.go b/app/db.go
--- a/app/db.go
+++ b/app/db.go
@@ -10,3 +10,4 @@ func lookupUser(db *sql.DB, id string) {
 	ctx := context.Background()
-	row := db.QueryRow("SELECT name FROM users WHERE id = 1")
+	q := "SELECT name FROM users WHERE id = " + id
+	row := db.QueryRow(q)
 	_ = row
`

func parsePromptDiff(t *testing.T) *diff.Diff {
	t.Helper()
	d, _, err := diff.Index(promptDiff)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	return d
}

func TestAnnotateDiff(t *testing.T) {
	out := AnnotateDiff(parsePromptDiff(t))

	if !strings.Contains(out, "### app/db.go") {
		t.Errorf("missing file heading:\n%s", out)
	}
	// Added lines show only a NEW number, removed lines only an OLD number,
	// context lines both.
	checks := []string{
		"    10     10 | \tctx := context.Background()",
		"    11      - | -\trow := db.QueryRow(\"SELECT name FROM users WHERE id = 1\")",
		"     -     11 | +\tq := \"SELECT name FROM users WHERE id = \" + id",
		"     -     12 | +\trow := db.QueryRow(q)",
	}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("annotated diff missing %q:\n%s", want, out)
		}
	}
}

func TestBuildAnalysisPrompt(t *testing.T) {
	b := NewBuilder()
	d := parsePromptDiff(t)

	bare := b.BuildAnalysisPrompt(d, "", "")
	if !strings.Contains(bare, SecurityAnalystRole) {
		t.Error("analysis prompt missing role")
	}
	if !strings.Contains(bare, AnalysisStructure) {
		t.Error("analysis prompt missing response structure")
	}
	if strings.Contains(bare, KnowledgeSectionHeader) {
		t.Error("empty knowledge should not emit its section")
	}
	if strings.Contains(bare, ManifestSectionHeader) {
		t.Error("empty manifest should not emit its section")
	}

	full := b.BuildAnalysisPrompt(d, "CWE-89 guidance.", "+requests==2.31.0")
	if !strings.Contains(full, KnowledgeSectionHeader) || !strings.Contains(full, "CWE-89 guidance.") {
		t.Error("knowledge section missing")
	}
	if !strings.Contains(full, ManifestSectionHeader) || !strings.Contains(full, "+requests==2.31.0") {
		t.Error("manifest section missing")
	}
}

func TestBuildFixPrompt(t *testing.T) {
	b := NewBuilder()
	findings := []models.Finding{
		{File: "app/db.go", StartLine: 11, EndLine: 12, Severity: models.SeverityHigh, Rationale: "SQL injection"},
	}

	out := b.BuildFixPrompt(parsePromptDiff(t), findings)
	if !strings.Contains(out, VulnerabilityFixerRole) {
		t.Error("fix prompt missing role")
	}
	if !strings.Contains(out, "app/db.go lines 11-12") {
		t.Errorf("fix prompt missing finding coordinates:\n%s", out)
	}
	if !strings.Contains(out, "SQL injection") {
		t.Error("fix prompt missing finding rationale")
	}
}

func TestBuildTestPrompt(t *testing.T) {
	b := NewBuilder()
	patches := []models.ProposedPatch{
		{File: "app/db.go", StartLine: 11, EndLine: 12, Suggestion: "row := db.QueryRowContext(ctx, q, id)\n", Justification: "parameterize"},
	}

	out := b.BuildTestPrompt(parsePromptDiff(t), patches)
	if !strings.Contains(out, PentesterRole) {
		t.Error("test prompt missing role")
	}
	if !strings.Contains(out, "row := db.QueryRowContext(ctx, q, id)") {
		t.Error("test prompt missing patch body")
	}
}

func TestBuildSearchQueryPrompt(t *testing.T) {
	b := NewBuilder()
	out := b.BuildSearchQueryPrompt(parsePromptDiff(t))
	if !strings.Contains(out, SearchQueryRole) {
		t.Error("search prompt missing role")
	}
	if !strings.Contains(out, "### app/db.go") {
		t.Error("search prompt missing diff")
	}
}
