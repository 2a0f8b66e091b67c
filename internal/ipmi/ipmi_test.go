package ipmi_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/fanctl/internal/command"
	"codeberg.org/mutker/fanctl/internal/errors"
	"codeberg.org/mutker/fanctl/internal/ipmi"
	"codeberg.org/mutker/fanctl/internal/logger"
	"codeberg.org/mutker/fanctl/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	manualMode = "ipmitool raw 0x30 0x30 0x01 0x00"
	autoMode   = "ipmitool raw 0x30 0x30 0x01 0x01"
)

func newActuator(runner command.Runner) *ipmi.Actuator {
	return ipmi.New(runner, policy.DefaultDuties(), ipmi.Config{}, logger.Nop())
}

func TestEncodeDuty(t *testing.T) {
	assert.Equal(t, "0x20", ipmi.EncodeDuty(32))
	assert.Equal(t, "0x05", ipmi.EncodeDuty(5))
	assert.Equal(t, "0x64", ipmi.EncodeDuty(100))
}

func TestApplyIssuesManualThenDuty(t *testing.T) {
	tests := []struct {
		level policy.Level
		duty  string
	}{
		{policy.Default, "0x20"},
		{policy.Medium, "0x32"},
		{policy.High, "0x48"},
		{policy.Max, "0x64"},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			setDuty := "ipmitool raw 0x30 0x30 0x02 0xff " + tt.duty
			runner := command.NewFake().On(manualMode, "", nil).On(setDuty, "", nil).On(autoMode, "", nil)
			a := newActuator(runner)

			require.NoError(t, a.Apply(context.Background(), tt.level))
			require.NoError(t, a.RestoreAutomatic(context.Background()))

			// restoring always ends in the automatic mode command
			assert.Equal(t, []string{manualMode, setDuty, autoMode}, runner.Calls())
		})
	}
}

func TestApplyStopsWhenManualModeFails(t *testing.T) {
	runner := command.NewFake().On(manualMode, "", &command.ExitError{Command: manualMode, ExitCode: 1})
	a := newActuator(runner)

	err := a.Apply(context.Background(), policy.Max)
	require.Error(t, err)
	assert.Equal(t, ipmi.ErrManualMode, errors.CodeOf(err))
	assert.Equal(t, []string{manualMode}, runner.Calls())
}

func TestApplySetDutyFailure(t *testing.T) {
	runner := command.NewFake().On(manualMode, "", nil)
	a := newActuator(runner)

	err := a.Apply(context.Background(), policy.High)
	require.Error(t, err)
	assert.Equal(t, ipmi.ErrSetDuty, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "high=72%")
}

func TestRestoreAutomaticFailure(t *testing.T) {
	a := newActuator(command.NewFake())

	err := a.RestoreAutomatic(context.Background())
	require.Error(t, err)
	assert.Equal(t, ipmi.ErrRestoreAuto, errors.CodeOf(err))
}

func TestRemoteBMCArguments(t *testing.T) {
	remote := "ipmitool -I lanplus -H 10.0.0.5 -U admin -P secret raw 0x30 0x30 0x01 0x01"
	runner := command.NewFake().On(remote, "", nil)
	a := ipmi.New(runner, policy.DefaultDuties(), ipmi.Config{
		Interface: "lanplus",
		Host:      "10.0.0.5",
		User:      "admin",
		Password:  "secret",
	}, logger.Nop())

	require.NoError(t, a.RestoreAutomatic(context.Background()))
	assert.Equal(t, []string{remote}, runner.Calls())
}

func TestProbe(t *testing.T) {
	err := newActuator(command.NewFake()).Probe(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrToolMissing, errors.CodeOf(err))

	require.NoError(t, newActuator(command.NewFake().Install("ipmitool")).Probe(context.Background()))
}
