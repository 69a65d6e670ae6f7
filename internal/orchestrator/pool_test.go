package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/healthrates/mrf-engine/internal/pipeline"
)

func TestAllFailed_EmptyManifestsIsFalse(t *testing.T) {
	assert.False(t, AllFailed(nil))
}

func TestAllFailed_TrueWhenEveryPayerFailedOrEmptyAndTruncated(t *testing.T) {
	manifests := []pipeline.PayerManifest{
		{Failed: true},
		{RatesEmitted: 0, Truncated: true},
	}
	assert.True(t, AllFailed(manifests))
}

func TestAllFailed_FalseWhenAnyPayerEmittedRates(t *testing.T) {
	manifests := []pipeline.PayerManifest{
		{Failed: true},
		{RatesEmitted: 10},
	}
	assert.False(t, AllFailed(manifests))
}

func TestExitCode_CancelledContextTakesPriority(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := ExitCode(ctx, []pipeline.PayerManifest{{RatesEmitted: 100}})
	assert.Equal(t, pipeline.ExitCancelled, code)
}

func TestExitCode_AllFailedReturnsExitAllFailed(t *testing.T) {
	code := ExitCode(context.Background(), []pipeline.PayerManifest{{Failed: true}})
	assert.Equal(t, pipeline.ExitAllFailed, code)
}

func TestExitCode_SuccessWhenAtLeastOnePayerEmittedRates(t *testing.T) {
	code := ExitCode(context.Background(), []pipeline.PayerManifest{{Failed: true}, {RatesEmitted: 5}})
	assert.Equal(t, pipeline.ExitSuccess, code)
}
