package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/secureview/internal/logging"
	"github.com/secureview/internal/retry"
)

// ResilientClient wraps a collaborator client with the two failure policies a
// stage needs: bounded backoff on transient transport errors, and exactly one
// corrective re-prompt when a response fails to parse under the expected
// shape. Parse failures are never retried blindly; a non-deterministic
// service asked the same thing rarely converges, so the second attempt
// carries explicit reformatting instructions instead.
type ResilientClient struct {
	client      Client
	retryConfig retry.Config
	timeout     time.Duration
	logger      *logging.RunLogger
}

// NewResilientClient wraps client with the collaborator retry policy.
func NewResilientClient(client Client, cfg retry.Config, timeout time.Duration, logger *logging.RunLogger) *ResilientClient {
	return &ResilientClient{
		client:      client,
		retryConfig: cfg,
		timeout:     timeout,
		logger:      logger,
	}
}

// CallText sends a prompt and returns the raw text, retrying transient
// transport failures only.
func (rc *ResilientClient) CallText(ctx context.Context, stage, prompt string) (string, error) {
	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	rc.logger.LogPrompt(stage, prompt)

	var response string
	result := retry.DoWithReason(ctx, rc.retryConfig, func() (error, string) {
		resp, err := rc.client.Call(ctx, prompt)
		if err != nil {
			return err, err.Error()
		}
		response = resp
		return nil, ""
	})

	if !result.Success {
		rc.logger.Log("Collaborator call failed after %d attempts: %v", result.Attempts, result.LastError)
		return "", fmt.Errorf("%s collaborator call failed after %d attempts: %w", stage, result.Attempts, result.LastError)
	}

	rc.logger.LogResponse(stage, response)
	return response, nil
}

// CallStructured sends a prompt and parses the structured response into
// target. On a parse failure it re-prompts once with corrective formatting
// instructions, then fails the stage.
func (rc *ResilientClient) CallStructured(ctx context.Context, stage, prompt string, target interface{}) error {
	response, err := rc.CallText(ctx, stage, prompt)
	if err != nil {
		return err
	}

	stats, parseErr := DecodeStructured(response, target)
	if parseErr == nil {
		rc.logRepair(stage, stats)
		return nil
	}

	rc.logger.Log("Structured response unparsable (%v), re-prompting with corrective instructions", parseErr)

	corrective := prompt + "\n\n" + correctiveInstructions(parseErr)
	response, err = rc.CallText(ctx, stage+"_reprompt", corrective)
	if err != nil {
		return err
	}

	stats, parseErr = DecodeStructured(response, target)
	if parseErr != nil {
		return fmt.Errorf("%s response unparsable after corrective re-prompt: %w", stage, parseErr)
	}
	rc.logRepair(stage, stats)
	return nil
}

func (rc *ResilientClient) logRepair(stage string, stats RepairStats) {
	if !stats.WasRepaired {
		return
	}
	rc.logger.Log("%s response needed repair: %d fixes (%v), %d -> %d bytes",
		stage, stats.ErrorsFixed, stats.RepairStrategies, stats.OriginalBytes, stats.RepairedBytes)
}

func correctiveInstructions(parseErr error) string {
	return fmt.Sprintf(`IMPORTANT: your previous reply could not be parsed (%v).
Respond again with ONLY a single valid JSON document in exactly the shape
requested above. No prose, no markdown fences, no comments, double quotes
around every key and string.`, parseErr)
}
