// Package secrets runs a deterministic secret scan over the added lines of a
// diff. Unlike the reasoning stages this needs no model: a committed
// credential is a finding regardless of what the collaborator thinks.
package secrets

import (
	"fmt"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/secureview/internal/diff"
	"github.com/secureview/pkg/models"
)

// Scanner wraps a gitleaks detector configured with the default ruleset.
type Scanner struct {
	detector *detect.Detector
}

// NewScanner creates a scanner with the default gitleaks rules.
func NewScanner() (*Scanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret detector: %w", err)
	}
	return &Scanner{detector: detector}, nil
}

// Scan checks every added line of the diff and returns one finding per line
// that matches a secret rule, anchored to the line's new-file coordinates.
// Lines are scanned individually so each hit maps to exactly one diff line.
func (s *Scanner) Scan(d *diff.Diff) []models.Finding {
	var findings []models.Finding

	for _, f := range d.Files {
		for _, h := range f.Hunks {
			for _, l := range h.Lines {
				if l.Kind != diff.LineAdded || l.Content == "" {
					continue
				}
				hits := s.detector.DetectString(l.Content)
				for _, hit := range hits {
					findings = append(findings, models.Finding{
						File:      f.Path,
						StartLine: l.NewLine,
						EndLine:   l.NewLine,
						Severity:  models.SeverityCritical,
						Rationale: fmt.Sprintf("Secret committed to source: %s (rule %s). Revoke the credential and load it from the environment or a secret manager instead.", hit.Description, hit.RuleID),
						Source:    "secret-scan",
					})
					// One finding per line is enough even if several rules
					// match the same token.
					break
				}
			}
		}
	}

	return findings
}
