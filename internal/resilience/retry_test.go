package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDoVal_RecoverableErrorRetries(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetryConfig(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewRecoverable(eris.New("server busy"), 503)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDoVal_NonRecoverableErrorStops(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetryConfig(), func(context.Context) (string, error) {
		calls++
		return "", eris.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetryConfig(), func(context.Context) (int, error) {
		calls++
		return 0, NewRecoverable(eris.New("still busy"), 429)
	})

	require.Error(t, err)
	assert.True(t, IsRecoverable(err))
	assert.Equal(t, 3, calls)
}

func TestDoVal_ContextCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetryConfig(), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewRecoverable(eris.New("busy"), 503)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
