package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/secureview/internal/config"
	"github.com/secureview/internal/pipeline"
	"github.com/secureview/internal/publish/gitlab"
	"github.com/secureview/internal/review"
)

// ReviewCommand returns the review command
func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Run a security review over a unified diff",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "Dependency manifest diff `FILE` to include as context",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Session key for this run (generated when empty)",
			},
			&cli.BoolFlag{
				Name:  "no-retrieval",
				Usage: "Skip the knowledge retrieval stage for this run",
			},
			&cli.StringFlag{
				Name:  "placement",
				Usage: "Override the patch placement mode (\"position\" or \"lines\")",
			},
			&cli.StringFlag{
				Name:  "coordinates",
				Usage: "Override the position numbering (\"document\" or \"file\")",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the full result as JSON",
			},
			&cli.StringFlag{
				Name:  "gitlab-project",
				Usage: "GitLab project ID or path to publish the result to",
			},
			&cli.IntFlag{
				Name:  "gitlab-mr",
				Usage: "GitLab merge request IID to publish the result to",
			},
			&cli.StringFlag{
				Name:  "base-sha",
				Usage: "Base SHA of the MR diff version (required when publishing)",
			},
			&cli.StringFlag{
				Name:  "start-sha",
				Usage: "Start SHA of the MR diff version (required when publishing)",
			},
			&cli.StringFlag{
				Name:  "head-sha",
				Usage: "Head SHA of the MR diff version (required when publishing)",
			},
		},
		ArgsUsage: "DIFF_FILE",
		Action:    runReview,
	}
}

func runReview(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: diff file (use - for stdin)")
	}

	rawDiff, err := readInput(c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("failed to read diff: %w", err)
	}

	manifestDiff := ""
	if path := c.String("manifest"); path != "" {
		manifestDiff, err = readInput(path)
		if err != nil {
			return fmt.Errorf("failed to read manifest diff: %w", err)
		}
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if override := c.String("placement"); override != "" {
		cfg.General.Placement = override
	}
	if override := c.String("coordinates"); override != "" {
		cfg.General.Coordinates = override
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	req := review.Request{
		RunID:        c.String("run-id"),
		RawDiff:      rawDiff,
		ManifestDiff: manifestDiff,
	}
	if c.Bool("no-retrieval") {
		disabled := false
		req.EnableRetrieval = &disabled
	}

	service := review.NewService(cfg)
	result := service.ProcessReview(context.Background(), req)

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		printResult(result)
	}

	if result.FailureReason != "" {
		return fmt.Errorf("review %s failed at %s: %s", result.RunID, result.FailedStage, result.FailureReason)
	}

	if project := c.String("gitlab-project"); project != "" {
		target := gitlab.Target{
			ProjectID: project,
			MRIID:     c.Int("gitlab-mr"),
			BaseSHA:   c.String("base-sha"),
			StartSHA:  c.String("start-sha"),
			HeadSHA:   c.String("head-sha"),
		}
		if target.MRIID == 0 {
			return fmt.Errorf("missing required flag: gitlab-mr")
		}

		publisher, err := gitlab.NewPublisher(cfg.Publish.GitLab.URL, cfg.Publish.GitLab.Token)
		if err != nil {
			return fmt.Errorf("failed to create publisher: %w", err)
		}
		if err := publisher.PublishResult(context.Background(), target, result); err != nil {
			return fmt.Errorf("failed to publish result: %w", err)
		}
		fmt.Printf("Published review %s to !%d\n", result.RunID, target.MRIID)
	}

	return nil
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printResult(result *pipeline.Result) {
	fmt.Printf("Review %s finished in %s\n", result.RunID, result.Duration.Round(time.Millisecond))

	fmt.Println("\n=== Findings ===")
	if len(result.Findings) == 0 {
		fmt.Println("No security issues found.")
	}
	for i, f := range result.Findings {
		fmt.Printf("\n--- Finding %d ---\n", i+1)
		fmt.Printf("File: %s, Lines: %d-%d\n", f.File, f.StartLine, f.EndLine)
		fmt.Printf("Severity: %s (%s)\n", f.Severity, f.Source)
		fmt.Printf("Rationale: %s\n", f.Rationale)
	}

	if len(result.Patches) > 0 {
		fmt.Println("\n=== Suggested Fixes ===")
		for i, p := range result.Patches {
			fmt.Printf("\n--- Fix %d ---\n", i+1)
			fmt.Printf("File: %s, Lines: %d-%d\n", p.File, p.StartLine, p.EndLine)
			fmt.Printf("Justification: %s\n", p.Justification)
			fmt.Println(p.Suggestion())
		}
	}

	if len(result.Tests) > 0 {
		fmt.Println("\n=== Generated Tests ===")
		for _, t := range result.Tests {
			fmt.Printf("\n// %s\n%s\n", t.File, t.Source)
		}
	}

	if result.Summary != "" {
		fmt.Println("\n=== Summary ===")
		fmt.Println(result.Summary)
	}

	for _, w := range result.Warnings {
		fmt.Printf("Warning [%s]: %s:%d %s\n", w.Stage, w.File, w.Line, w.Reason)
	}
}
