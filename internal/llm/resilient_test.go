package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureview/internal/retry"
)

// scriptedClient returns canned responses (or errors) in order and records
// every prompt it was sent.
type scriptedClient struct {
	responses []string
	errs      []error
	prompts   []string
	calls     int
}

func (c *scriptedClient) Call(ctx context.Context, prompt string) (string, error) {
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", errors.New("scripted client exhausted")
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestCallTextRetriesTransient(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{errors.New("503 service unavailable"), nil},
		responses: []string{"", "all good"},
	}
	rc := NewResilientClient(client, fastRetry(), 0, nil)

	got, err := rc.CallText(context.Background(), "analysis", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "all good", got)
	assert.Equal(t, 2, client.calls)
}

func TestCallTextStopsOnNonRetryable(t *testing.T) {
	client := &scriptedClient{
		errs: []error{errors.New("invalid api key")},
	}
	rc := NewResilientClient(client, fastRetry(), 0, nil)

	_, err := rc.CallText(context.Background(), "analysis", "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestCallTextExhaustsRetries(t *testing.T) {
	client := &scriptedClient{
		errs: []error{
			errors.New("connection refused"),
			errors.New("connection refused"),
			errors.New("connection refused"),
		},
	}
	rc := NewResilientClient(client, fastRetry(), 0, nil)

	_, err := rc.CallText(context.Background(), "analysis", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, client.calls)
}

func TestCallStructuredParsesFirstTry(t *testing.T) {
	client := &scriptedClient{
		responses: []string{`{"summary": "fine"}`},
	}
	rc := NewResilientClient(client, fastRetry(), 0, nil)

	var out struct {
		Summary string `json:"summary"`
	}
	err := rc.CallStructured(context.Background(), "analysis", "prompt", &out)
	require.NoError(t, err)
	assert.Equal(t, "fine", out.Summary)
	assert.Equal(t, 1, client.calls)
}

func TestCallStructuredCorrectiveReprompt(t *testing.T) {
	// The first response has no JSON at all. The client must NOT blindly
	// retry: the second call carries corrective instructions appended to the
	// original prompt, and its valid response is accepted.
	client := &scriptedClient{
		responses: []string{
			"I think the diff looks risky but I cannot say more.",
			`{"summary": "second attempt"}`,
		},
	}
	rc := NewResilientClient(client, fastRetry(), 0, nil)

	var out struct {
		Summary string `json:"summary"`
	}
	err := rc.CallStructured(context.Background(), "analysis", "prompt", &out)
	require.NoError(t, err)
	assert.Equal(t, "second attempt", out.Summary)
	require.Equal(t, 2, client.calls)

	assert.Equal(t, "prompt", client.prompts[0])
	assert.True(t, strings.HasPrefix(client.prompts[1], "prompt"))
	assert.Contains(t, client.prompts[1], "could not be parsed")
}

func TestCallStructuredFailsAfterOneReprompt(t *testing.T) {
	client := &scriptedClient{
		responses: []string{
			"still no structure",
			"and none the second time either",
		},
	}
	rc := NewResilientClient(client, fastRetry(), 0, nil)

	var out map[string]interface{}
	err := rc.CallStructured(context.Background(), "analysis", "prompt", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after corrective re-prompt")
	// Exactly one corrective attempt, never a third call.
	assert.Equal(t, 2, client.calls)
}
