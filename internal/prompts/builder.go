package prompts

import (
	"fmt"
	"strings"

	"github.com/secureview/internal/diff"
	"github.com/secureview/pkg/models"
)

// Builder assembles the per-stage collaborator prompts. Each prompt carries
// the annotated diff so the model reasons in the same coordinates the
// validator later enforces.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildAnalysisPrompt builds the analyzing-stage prompt from the diff plus
// optional retrieved knowledge and dependency-manifest context.
func (b *Builder) BuildAnalysisPrompt(d *diff.Diff, knowledge, manifestDiff string) string {
	var p strings.Builder
	p.WriteString(SecurityAnalystRole)
	p.WriteString("\n\n")
	p.WriteString(AnalysisInstructions)
	p.WriteString("\n\n")

	if knowledge != "" {
		p.WriteString(KnowledgeSectionHeader)
		p.WriteString("\n")
		p.WriteString(knowledge)
		p.WriteString("\n\n")
	}
	if manifestDiff != "" {
		p.WriteString(ManifestSectionHeader)
		p.WriteString("\n```diff\n")
		p.WriteString(manifestDiff)
		p.WriteString("\n```\n\n")
	}

	b.writeDiffSection(&p, d)
	p.WriteString("\n")
	p.WriteString(AnalysisStructure)
	return p.String()
}

// BuildFixPrompt builds the fixing-stage prompt from the diff and the
// accepted findings.
func (b *Builder) BuildFixPrompt(d *diff.Diff, findings []models.Finding) string {
	var p strings.Builder
	p.WriteString(VulnerabilityFixerRole)
	p.WriteString("\n\n")
	p.WriteString(FixInstructions)
	p.WriteString("\n\n")

	p.WriteString(FindingsSectionHeader)
	p.WriteString("\n")
	for i, f := range findings {
		fmt.Fprintf(&p, "%d. %s lines %d-%d [%s]: %s\n", i+1, f.File, f.StartLine, f.EndLine, f.Severity, f.Rationale)
	}
	p.WriteString("\n")

	b.writeDiffSection(&p, d)
	p.WriteString("\n")
	p.WriteString(FixStructure)
	return p.String()
}

// BuildTestPrompt builds the testing-stage prompt from the diff and the
// validated patches.
func (b *Builder) BuildTestPrompt(d *diff.Diff, patches []models.ProposedPatch) string {
	var p strings.Builder
	p.WriteString(PentesterRole)
	p.WriteString("\n\n")
	p.WriteString(TestInstructions)
	p.WriteString("\n\n")

	p.WriteString(PatchesSectionHeader)
	p.WriteString("\n")
	for i, pt := range patches {
		fmt.Fprintf(&p, "%d. %s lines %d-%d: %s\n", i+1, pt.File, pt.StartLine, pt.EndLine, pt.Justification)
		p.WriteString("```\n")
		p.WriteString(strings.TrimSuffix(pt.Suggestion, "\n"))
		p.WriteString("\n```\n")
	}
	p.WriteString("\n")

	b.writeDiffSection(&p, d)
	p.WriteString("\n")
	p.WriteString(TestStructure)
	return p.String()
}

// BuildSearchQueryPrompt builds the retrieval-stage query-derivation prompt.
func (b *Builder) BuildSearchQueryPrompt(d *diff.Diff) string {
	var p strings.Builder
	p.WriteString(SearchQueryRole)
	p.WriteString("\n\n")
	p.WriteString(SearchQueryInstructions)
	p.WriteString("\n\n")
	b.writeDiffSection(&p, d)
	return p.String()
}

func (b *Builder) writeDiffSection(p *strings.Builder, d *diff.Diff) {
	p.WriteString(DiffSectionHeader)
	p.WriteString("\n")
	p.WriteString(AnnotateDiff(d))
}

// AnnotateDiff renders a parsed diff with an OLD | NEW line-number table per
// hunk so every visible line carries the coordinates the report must use.
func AnnotateDiff(d *diff.Diff) string {
	var out strings.Builder
	for _, f := range d.Files {
		fmt.Fprintf(&out, "### %s\n", f.Path)
		if f.IsNew {
			out.WriteString("(new file)\n")
		}
		for _, h := range f.Hunks {
			out.WriteString("```diff\n")
			fmt.Fprintf(&out, "@@ -%d,%d +%d,%d @@ %s\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines, h.Header)
			for _, l := range h.Lines {
				switch l.Kind {
				case diff.LineAdded:
					fmt.Fprintf(&out, "%6s %6d | +%s\n", "-", l.NewLine, l.Content)
				case diff.LineRemoved:
					fmt.Fprintf(&out, "%6d %6s | -%s\n", l.OldLine, "-", l.Content)
				default:
					fmt.Fprintf(&out, "%6d %6d |  %s\n", l.OldLine, l.NewLine, l.Content)
				}
			}
			out.WriteString("```\n")
		}
		out.WriteString("\n")
	}
	return out.String()
}
