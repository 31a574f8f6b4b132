// Package knowledge is the best-effort retrieval collaborator: given a query
// derived from the diff, it returns free-text security guidance with source
// citations. Retrieval failures are recorded by the pipeline, never fatal.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/secureview/internal/diff"
	"github.com/secureview/internal/llm"
)

// Retriever fetches knowledge-base passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// maxQueryLines bounds how many added lines feed the derived query.
const maxQueryLines = 20

// DeriveQuery builds the retrieval query from the changed paths and a digest
// of the added lines.
func DeriveQuery(d *diff.Diff) string {
	var paths []string
	var added []string

	for _, f := range d.Files {
		paths = append(paths, f.Path)
		for _, h := range f.Hunks {
			for _, l := range h.Lines {
				if l.Kind != diff.LineAdded {
					continue
				}
				trimmed := strings.TrimSpace(l.Content)
				if trimmed == "" {
					continue
				}
				if len(added) < maxQueryLines {
					added = append(added, trimmed)
				}
			}
		}
	}

	var q strings.Builder
	q.WriteString("Security vulnerabilities and remediation best practices relevant to changes in: ")
	q.WriteString(strings.Join(paths, ", "))
	if len(added) > 0 {
		q.WriteString(". Changed code includes:\n")
		q.WriteString(strings.Join(added, "\n"))
	}
	return q.String()
}

// LLMRetriever answers retrieval queries through a reasoning collaborator,
// standing in for a dedicated knowledge-base service behind the same
// interface.
type LLMRetriever struct {
	client llm.Client
}

// NewLLMRetriever creates a retriever backed by the given collaborator client.
func NewLLMRetriever(client llm.Client) *LLMRetriever {
	return &LLMRetriever{client: client}
}

// Retrieve asks for relevant passages with citations.
func (r *LLMRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf(`You are a security knowledge base. Return the most relevant known
guidance (OWASP Top 10, CWE entries, language-specific advisories) for the
query below, as short passages each followed by its source citation. Plain
text only.

Query: %s`, query)

	passages, err := r.client.Call(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("knowledge retrieval failed: %w", err)
	}
	return strings.TrimSpace(passages), nil
}
