package confirmation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-migrate/internal/display"
	"mysql-migrate/internal/migration"
)

func promptFixture(t *testing.T, input string) (*Service, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	disp := display.NewService(display.Options{Output: &buf})
	return NewService(disp, strings.NewReader(input)), &buf
}

func planOfRisk(risk migration.RiskLevel) *migration.ExecutionPlan {
	return &migration.ExecutionPlan{
		Target: "2.0.0",
		Migrations: []*migration.MigrationSet{
			{Version: "2.0.0", Description: "drop legacy tables", Risk: risk},
		},
		Risk: risk,
	}
}

func TestRequiresConfirmation(t *testing.T) {
	assert.False(t, RequiresConfirmation(migration.RiskLow))
	assert.False(t, RequiresConfirmation(migration.RiskMedium))
	assert.True(t, RequiresConfirmation(migration.RiskHigh))
	assert.True(t, RequiresConfirmation(migration.RiskCritical))
}

func TestService_ConfirmPlan_LowRiskSkipsPrompt(t *testing.T) {
	service, buf := promptFixture(t, "")

	approved, err := service.ConfirmPlan(planOfRisk(migration.RiskLow), false)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Empty(t, buf.String(), "low risk plans produce no prompt")
}

func TestService_ConfirmPlan_Approve(t *testing.T) {
	service, buf := promptFixture(t, "y\n")

	approved, err := service.ConfirmPlan(planOfRisk(migration.RiskHigh), false)
	require.NoError(t, err)
	assert.True(t, approved)

	output := buf.String()
	assert.Contains(t, output, "2.0.0")
	assert.Contains(t, output, "drop legacy tables")
	assert.Contains(t, output, "[y/N]")
}

func TestService_ConfirmPlan_Decline(t *testing.T) {
	for _, input := range []string{"n\n", "no\n", "\n"} {
		service, _ := promptFixture(t, input)

		approved, err := service.ConfirmPlan(planOfRisk(migration.RiskCritical), false)
		require.NoError(t, err)
		assert.False(t, approved, "input %q must decline", input)
	}
}

func TestService_ConfirmPlan_RepromptsOnGarbage(t *testing.T) {
	service, buf := promptFixture(t, "maybe\nyes\n")

	approved, err := service.ConfirmPlan(planOfRisk(migration.RiskHigh), false)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Contains(t, buf.String(), "unrecognized answer")
}

func TestService_ConfirmPlan_EndOfInputDeclines(t *testing.T) {
	service, _ := promptFixture(t, "")

	approved, err := service.ConfirmPlan(planOfRisk(migration.RiskHigh), false)
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestService_ConfirmPlan_AutoApprove(t *testing.T) {
	// The empty reader would decline if the prompt ran, so approval proves
	// auto-approve never reads input
	service, buf := promptFixture(t, "")

	approved, err := service.ConfirmPlan(planOfRisk(migration.RiskCritical), true)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Contains(t, buf.String(), "auto-approved")
}

func TestService_ConfirmRollback(t *testing.T) {
	set := &migration.MigrationSet{Version: "1.5.0", Description: "add audit columns"}

	service, buf := promptFixture(t, "y\n")
	approved, err := service.ConfirmRollback(set, "bad deploy", false)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Contains(t, buf.String(), "1.5.0")
	assert.Contains(t, buf.String(), "bad deploy")

	service, _ = promptFixture(t, "n\n")
	approved, err = service.ConfirmRollback(set, "", false)
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestService_ConfirmRollback_AutoApprove(t *testing.T) {
	set := &migration.MigrationSet{Version: "1.5.0", Description: "add audit columns"}

	service, _ := promptFixture(t, "")
	approved, err := service.ConfirmRollback(set, "", true)
	require.NoError(t, err)
	assert.True(t, approved)
}
