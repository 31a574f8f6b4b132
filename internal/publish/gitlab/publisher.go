// Package gitlab posts validated review output back to a GitLab merge
// request: the run summary as a note and each accepted patch as an inline
// discussion carrying a suggestion block.
package gitlab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/secureview/internal/patch"
	"github.com/secureview/internal/pipeline"
)

// Publisher posts review results to a GitLab instance. API calls are
// rate-limited so a patch-heavy review does not trip abuse detection.
type Publisher struct {
	client  *gitlab.Client
	limiter *rate.Limiter
}

// Target identifies the merge request and diff version to anchor against.
// The three SHAs come from the MR's latest diff version.
type Target struct {
	ProjectID string
	MRIID     int
	BaseSHA   string
	StartSHA  string
	HeadSHA   string
}

// NewPublisher connects to a GitLab instance.
func NewPublisher(baseURL, token string) (*Publisher, error) {
	opts := []gitlab.ClientOptionFunc{}
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/api/v4"))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &Publisher{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(1*time.Second), 5),
	}, nil
}

// PublishResult posts the summary and one discussion per accepted patch.
// GitLab anchors inline comments by file and line, so patches must carry the
// line-pair placement; position-based placements target other platforms.
func (p *Publisher) PublishResult(ctx context.Context, target Target, result *pipeline.Result) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	summary := renderSummary(result)
	_, _, err := p.client.Notes.CreateMergeRequestNote(target.ProjectID, target.MRIID, &gitlab.CreateMergeRequestNoteOptions{
		Body: gitlab.Ptr(summary),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to post summary note: %w", err)
	}

	for _, vp := range result.Patches {
		if vp.Mode != patch.PlaceLines {
			return fmt.Errorf("gitlab publishing requires line-pair placement, got %q", vp.Mode)
		}
		if err := p.postPatchDiscussion(ctx, target, vp); err != nil {
			// Keep posting the rest; a single failed anchor should not
			// swallow the whole review.
			log.Warn().Err(err).Str("file", vp.File).Int("line", vp.EndLine).Msg("Failed to post patch discussion")
		}
	}

	return nil
}

func (p *Publisher) postPatchDiscussion(ctx context.Context, target Target, vp patch.ValidatedPatch) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	var body strings.Builder
	if vp.Justification != "" {
		body.WriteString(vp.Justification)
		body.WriteString("\n\n")
	}
	body.WriteString(vp.Suggestion())

	position := &gitlab.PositionOptions{
		BaseSHA:      gitlab.Ptr(target.BaseSHA),
		StartSHA:     gitlab.Ptr(target.StartSHA),
		HeadSHA:      gitlab.Ptr(target.HeadSHA),
		NewPath:      gitlab.Ptr(vp.File),
		NewLine:      gitlab.Ptr(vp.EndLine),
		PositionType: gitlab.Ptr("text"),
	}

	_, _, err := p.client.Discussions.CreateMergeRequestDiscussion(target.ProjectID, target.MRIID, &gitlab.CreateMergeRequestDiscussionOptions{
		Body:     gitlab.Ptr(body.String()),
		Position: position,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create discussion for %s:%d: %w", vp.File, vp.EndLine, err)
	}
	return nil
}

func renderSummary(result *pipeline.Result) string {
	var b strings.Builder
	b.WriteString("## Security review\n\n")
	if result.Summary != "" {
		b.WriteString(result.Summary)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Findings: %d • Patches: %d • Tests: %d\n", len(result.Findings), len(result.Patches), len(result.Tests))
	if len(result.Warnings) > 0 {
		b.WriteString("\n<details><summary>Skipped items</summary>\n\n")
		for _, w := range result.Warnings {
			if w.File != "" {
				fmt.Fprintf(&b, "- %s:%d (%s): %s\n", w.File, w.Line, w.Stage, w.Reason)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", w.Stage, w.Reason)
			}
		}
		b.WriteString("\n</details>\n")
	}
	return b.String()
}
