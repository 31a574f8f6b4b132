// Package review wires configuration, collaborators, and the pipeline into
// the service callers use: one ProcessReview call per pull request.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/secureview/internal/config"
	"github.com/secureview/internal/diff"
	"github.com/secureview/internal/knowledge"
	"github.com/secureview/internal/llm"
	"github.com/secureview/internal/logging"
	"github.com/secureview/internal/patch"
	"github.com/secureview/internal/pipeline"
	"github.com/secureview/internal/retry"
	"github.com/secureview/internal/secrets"
)

// callTimeout bounds any single collaborator request; the run-level timeout
// bounds the whole review.
const callTimeout = 2 * time.Minute

// Service runs security reviews. It is safe for concurrent use: every run
// builds its own logger and pipeline state.
type Service struct {
	config *config.Config
}

// Request is one review to perform. RunID is the host-supplied session key;
// a fresh one is generated when empty. EnableRetrieval overrides the
// configured retrieval flag for this run when set.
type Request struct {
	RunID           string
	RawDiff         string
	ManifestDiff    string
	EnableRetrieval *bool
}

// NewService creates a review service over the given configuration.
func NewService(cfg *config.Config) *Service {
	return &Service{config: cfg}
}

// ProcessReview executes one full review run and returns its result. Errors
// constructing collaborators surface as a Failed result rather than a bare
// error so callers always get the same result shape.
func (s *Service) ProcessReview(ctx context.Context, req Request) *pipeline.Result {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger, err := logging.StartRunLogging(runID, s.config.Review.LogDir)
	if err != nil {
		// Reviews proceed without the run log rather than refusing the run.
		log.Warn().Err(err).Str("run_id", runID).Msg("Could not open run log")
	}
	defer logger.Close()

	logger.LogSection("REVIEW RUN SETUP")
	logger.Log("Run ID: %s", runID)
	logger.Log("Provider: %s (model: %s)", s.config.AI.Provider, s.config.AI.Model)

	runCtx, cancel := context.WithTimeout(ctx, s.config.ReviewTimeout())
	defer cancel()

	connector, err := llm.NewConnector(runCtx, llm.Options{
		Provider:    llm.Provider(s.config.AI.Provider),
		APIKey:      s.config.AI.APIKey,
		BaseURL:     s.config.AI.BaseURL,
		Model:       s.config.AI.Model,
		Temperature: s.config.AI.Temperature,
		MaxTokens:   s.config.AI.MaxTokens,
	})
	if err != nil {
		return s.setupFailure(runID, logger, fmt.Errorf("failed to create reasoning collaborator: %w", err))
	}

	retryCfg := retry.CollaboratorConfig()
	if s.config.Retry.MaxRetries > 0 {
		retryCfg.MaxRetries = s.config.Retry.MaxRetries
	}
	if s.config.Retry.BaseDelaySeconds > 0 {
		retryCfg.BaseDelay = time.Duration(s.config.Retry.BaseDelaySeconds) * time.Second
	}
	if s.config.Retry.MaxDelaySeconds > 0 {
		retryCfg.MaxDelay = time.Duration(s.config.Retry.MaxDelaySeconds) * time.Second
	}

	client := llm.NewResilientClient(connector, retryCfg, callTimeout, logger)

	enableRetrieval := s.config.Review.EnableRetrieval
	if req.EnableRetrieval != nil {
		enableRetrieval = *req.EnableRetrieval
	}
	var retriever knowledge.Retriever
	if enableRetrieval {
		retriever = knowledge.NewLLMRetriever(connector)
	}

	var scanner *secrets.Scanner
	if s.config.Review.EnableSecretScan {
		scanner, err = secrets.NewScanner()
		if err != nil {
			logger.LogError("secret scanner setup", err)
			scanner = nil
		}
	}

	validator := patch.NewValidator(
		patch.PlacementMode(s.config.General.Placement),
		diff.Numbering(s.config.General.Coordinates),
	)

	p := pipeline.New(pipeline.Options{
		Client:          client,
		Retriever:       retriever,
		Scanner:         scanner,
		Validator:       validator,
		EnableRetrieval: enableRetrieval,
		Logger:          logger,
	})

	result := p.Run(runCtx, pipeline.Request{
		RunID:        runID,
		RawDiff:      req.RawDiff,
		ManifestDiff: req.ManifestDiff,
	})

	log.Info().
		Str("run_id", runID).
		Str("state", string(result.State)).
		Int("findings", len(result.Findings)).
		Int("patches", len(result.Patches)).
		Dur("duration", result.Duration).
		Msg("Review run finished")

	return result
}

func (s *Service) setupFailure(runID string, logger *logging.RunLogger, err error) *pipeline.Result {
	logger.LogError("setup", err)
	return &pipeline.Result{
		RunID:         runID,
		State:         pipeline.StateFailed,
		FailedStage:   pipeline.StateIdle,
		FailureReason: err.Error(),
	}
}
