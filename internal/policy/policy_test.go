package policy_test

import (
	"testing"

	"codeberg.org/mutker/fanctl/internal/errors"
	"codeberg.org/mutker/fanctl/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLevelScenarios(t *testing.T) {
	p := policy.New(policy.DefaultThresholds())

	tests := []struct {
		name       string
		cpu        int
		gpu        int
		util       int
		current    policy.Level
		wantLevel  policy.Level
		wantReason policy.Reason
	}{
		{"cool and idle", 30, 40, 10, policy.Default, policy.Default, policy.ReasonLow},
		{"gpu critical", 30, 82, 10, policy.Default, policy.Max, policy.ReasonCritical},
		{"cpu critical", 75, 20, 0, policy.Default, policy.Max, policy.ReasonCritical},
		{"de-escalation stops at medium", 50, 55, 20, policy.Max, policy.Medium, policy.ReasonMedium},
		{"utilization alone", 20, 20, 75, policy.Default, policy.Medium, policy.ReasonMedium},
		{"gpu high", 30, 70, 0, policy.Medium, policy.High, policy.ReasonHigh},
		{"cpu high", 60, 30, 0, policy.Default, policy.High, policy.ReasonHigh},
		{"no signal", 0, 0, 0, policy.High, policy.Default, policy.ReasonLow},
		{"hold in band", 40, 55, 40, policy.High, policy.High, policy.ReasonHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, reason := p.NextLevel(tt.cpu, tt.gpu, tt.util, tt.current)
			assert.Equal(t, tt.wantLevel, level)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestNextLevelIsDeterministic(t *testing.T) {
	p := policy.New(policy.DefaultThresholds())

	for _, current := range policy.Levels {
		for cpu := 0; cpu <= 90; cpu += 7 {
			for gpu := 0; gpu <= 90; gpu += 9 {
				l1, r1 := p.NextLevel(cpu, gpu, 50, current)
				l2, r2 := p.NextLevel(cpu, gpu, 50, current)
				require.Equal(t, l1, l2)
				require.Equal(t, r1, r2)
			}
		}
	}
}

func TestNextLevelMonotonicPerDomain(t *testing.T) {
	p := policy.New(policy.DefaultThresholds())

	// Each domain sweeps upward from a cold baseline; everything else stays cold.
	sweeps := map[string]func(v int) (int, int, int){
		"cpu":  func(v int) (int, int, int) { return v, 0, 0 },
		"gpu":  func(v int) (int, int, int) { return 0, v, 0 },
		"util": func(v int) (int, int, int) { return 0, 0, v },
	}

	for name, sweep := range sweeps {
		for _, current := range policy.Levels {
			prev := policy.Default
			for v := 0; v <= 100; v++ {
				cpu, gpu, util := sweep(v)
				next, reason := p.NextLevel(cpu, gpu, util, current)
				if reason == policy.ReasonHold {
					// hold echoes current, which is not a function of v
					continue
				}
				assert.GreaterOrEqual(t, next, prev, "%s=%d current=%s", name, v, current)
				prev = next
			}
		}

		// From the lowest level the whole sweep, hold included, never drops.
		prev := policy.Default
		for v := 0; v <= 100; v++ {
			cpu, gpu, util := sweep(v)
			next, _ := p.NextLevel(cpu, gpu, util, policy.Default)
			assert.GreaterOrEqual(t, next, prev, "%s=%d", name, v)
			prev = next
		}
	}
}

func TestNextLevelHysteresisBand(t *testing.T) {
	p := policy.New(policy.DefaultThresholds())

	// Strictly between the reset band and the first escalation threshold.
	inputs := [][3]int{
		{40, 30, 10}, // cpu above low
		{20, 55, 10}, // gpu above low
		{20, 30, 50}, // util above low
		{44, 59, 69}, // everything just under medium
	}

	for _, in := range inputs {
		for _, current := range policy.Levels {
			level, reason := p.NextLevel(in[0], in[1], in[2], current)
			assert.Equal(t, current, level, "inputs=%v", in)
			assert.Equal(t, policy.ReasonHold, reason)
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, policy.DefaultThresholds().Validate())

	bad := policy.DefaultThresholds()
	bad.GPU.Medium = bad.GPU.High
	err := bad.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidThreshold, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "gpu")

	bad = policy.DefaultThresholds()
	bad.CPU.Low = 50
	require.Error(t, bad.Validate())

	bad = policy.DefaultThresholds()
	bad.Util = policy.UtilThresholds{Low: 70, High: 30}
	require.Error(t, bad.Validate())
}

func TestDuties(t *testing.T) {
	d := policy.DefaultDuties()
	require.NoError(t, d.Validate())

	assert.Equal(t, 0x20, d.Duty(policy.Default))
	assert.Equal(t, 0x32, d.Duty(policy.Medium))
	assert.Equal(t, 0x48, d.Duty(policy.High))
	assert.Equal(t, 0x64, d.Duty(policy.Max))

	d[policy.High] = 40
	assert.Error(t, d.Validate())

	d = policy.DefaultDuties()
	d[policy.Max] = 101
	assert.Error(t, d.Validate())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "default", policy.Default.String())
	assert.Equal(t, "max", policy.Max.String())
	assert.Equal(t, "level(9)", policy.Level(9).String())
}

func TestDutyOfUnknownLevelIsMax(t *testing.T) {
	d := policy.DefaultDuties()

	assert.Equal(t, 100, d.Duty(policy.Level(9)))
	assert.Equal(t, 100, d.Duty(policy.Level(-1)))
}
