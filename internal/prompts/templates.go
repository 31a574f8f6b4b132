package prompts

// Role definitions per stage.
const (
	SecurityAnalystRole = "You are an expert application security engineer reviewing a pull request diff for security defects."

	VulnerabilityFixerRole = "You are an expert application security engineer. Propose minimal, correct code fixes for the security findings below."

	PentesterRole = "You are an expert penetration tester. Write tests that prove the proposed security fixes actually close the vulnerabilities."

	SearchQueryRole = "You are preparing a search query for a security knowledge base."
)

// Analysis instructions and output shape.
const (
	AnalysisInstructions = `Review ONLY the changed lines of the diff below for security defects:
injection flaws, broken authentication or authorization, secrets in code,
insecure deserialization, path traversal, SSRF, unsafe cryptography, and
similar weaknesses. The diff is annotated with OLD and NEW line numbers; all
line numbers in your report MUST be NEW-file line numbers of added or context
lines shown in the diff. Do not report lines the diff does not show.`

	AnalysisStructure = `Format your response as JSON with the following structure:
` + "```json" + `
{
  "findings": [
    {
      "file": "path/to/file.ext",
      "start_line": 42,
      "end_line": 43,
      "severity": "critical|high|medium|low|info",
      "rationale": "What is vulnerable and why"
    }
  ],
  "summary": "One-paragraph overview of the security posture of this change"
}
` + "```" + `
Return {"findings": []} if the change is clean.`
)

// Fixing instructions and output shape.
const (
	FixInstructions = `For each finding, propose a replacement for the affected lines. The
replacement must be complete code that can substitute the covered lines
verbatim. Cover ONLY new-file lines that appear in the diff as added or
context lines. Do not include markdown fences in the suggestion text.`

	FixStructure = `Format your response as JSON with the following structure:
` + "```json" + `
{
  "patches": [
    {
      "file": "path/to/file.ext",
      "start_line": 42,
      "end_line": 43,
      "suggestion": "replacement code for lines 42-43",
      "justification": "Why this fixes the finding"
    }
  ],
  "summary": "Short summary of the proposed fixes"
}
` + "```"
)

// Testing instructions and output shape.
const (
	TestInstructions = `For each accepted patch below, write one test that exercises the
vulnerability the patch closes (for example an injection payload) and asserts
the fixed code path handles it safely. Tests are new files; use the
conventions of the language of the patched file.`

	TestStructure = `Format your response as JSON with the following structure:
` + "```json" + `
{
  "tests": [
    {
      "file": "path/to/file_security_test.ext",
      "source": "complete test source"
    }
  ]
}
` + "```"
)

// SearchQueryInstructions asks for a retrieval query, plain text.
const SearchQueryInstructions = `Derive a concise free-text query (one or two sentences) describing the
security concerns most relevant to the change below, suitable for searching a
vulnerability knowledge base (OWASP, CWE). Respond with the query text only.`

// Section markers used when assembling prompts.
const (
	DiffSectionHeader      = "## Changed code (unified diff, annotated with OLD/NEW line numbers)"
	KnowledgeSectionHeader = "## Retrieved security knowledge (best-effort context)"
	ManifestSectionHeader  = "## Dependency manifest changes"
	FindingsSectionHeader  = "## Security findings"
	PatchesSectionHeader   = "## Accepted patches"
)
