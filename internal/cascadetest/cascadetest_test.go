package cascadetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSuite_HasAllSixScenarios(t *testing.T) {
	suite := DefaultSuite()
	require.Len(t, suite, 6)

	ids := make(map[string]bool, len(suite))
	for _, sc := range suite {
		require.NotEmpty(t, sc.ID)
		require.NotEmpty(t, sc.Name)
		require.NotNil(t, sc.Run)
		require.NotNil(t, sc.Check)
		ids[sc.ID] = true
	}
	for _, want := range []string{
		"simple_accept", "complex_escalation", "force_direct",
		"tool_loop_two_steps", "rate_limited", "provider_timeout_retry",
	} {
		assert.True(t, ids[want], "missing scenario %q", want)
	}
}

func TestRun_AllScenariosPass(t *testing.T) {
	summary := Run(context.Background(), DefaultSuite())

	require.Equal(t, 6, summary.Total)
	for _, o := range summary.Outcomes {
		assert.True(t, o.Passed, "%s: %s", o.Name, o.Detail)
	}
	assert.Equal(t, summary.Total, summary.Passed)
	assert.Equal(t, 0, summary.Failed)
}

func TestRun_SimpleAcceptScenarioInIsolation(t *testing.T) {
	var target Scenario
	for _, sc := range DefaultSuite() {
		if sc.ID == "simple_accept" {
			target = sc
		}
	}
	require.NotEmpty(t, target.ID)

	result, err, drafter, verifier := target.Run(context.Background())
	require.NoError(t, err)
	passed, detail := target.Check(result, err, drafter.attempts(), verifier.attempts())
	assert.True(t, passed, detail)
}
