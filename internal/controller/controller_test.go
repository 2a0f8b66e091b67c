package controller

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "codeberg.org/mutker/fanctl/internal/errors"
	"codeberg.org/mutker/fanctl/internal/logger"
	"codeberg.org/mutker/fanctl/internal/metrics"
	"codeberg.org/mutker/fanctl/internal/policy"
)

type gpuReading struct {
	temp, util int
	err        error
}

type fakeGPU struct {
	mu       sync.Mutex
	readings []gpuReading
	reads    int
	probeErr error
	// onRead runs inside every query, before the reading is returned
	onRead func()
}

func (g *fakeGPU) Probe(context.Context) error { return g.probeErr }

func (g *fakeGPU) ReadGPUSnapshot(context.Context) (int, int, error) {
	if g.onRead != nil {
		g.onRead()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.readings[min(g.reads, len(g.readings)-1)]
	g.reads++
	if r.err != nil {
		return 0, 0, r.err
	}
	return r.temp, r.util, nil
}

func (g *fakeGPU) Reads() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reads
}

type fakeCPU struct {
	temp   int
	source string
}

func (c fakeCPU) ReadCPUTemperature(context.Context) (int, string) {
	return c.temp, c.source
}

type fakeActuator struct {
	mu         sync.Mutex
	calls      []string
	applyErrs  []error
	restoreErr error
	probeErr   error
	restoreCtx error
}

func (a *fakeActuator) Probe(context.Context) error { return a.probeErr }

func (a *fakeActuator) Apply(_ context.Context, level policy.Level) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "apply "+level.String())
	if len(a.applyErrs) > 0 {
		err := a.applyErrs[0]
		a.applyErrs = a.applyErrs[1:]
		return err
	}
	return nil
}

func (a *fakeActuator) RestoreAutomatic(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "restore")
	a.restoreCtx = ctx.Err()
	return a.restoreErr
}

func (*fakeActuator) Duty(level policy.Level) int {
	return policy.DefaultDuties().Duty(level)
}

func (a *fakeActuator) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeActuator) count(call string) int {
	n := 0
	for _, c := range a.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	snapshots []metrics.Snapshot
	ctxErrs   []error
}

func (r *fakeRecorder) Record(ctx context.Context, s *metrics.Snapshot) error {
	r.snapshots = append(r.snapshots, *s)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return nil
}

func newTestController(cfg Config, gpu *fakeGPU, cpu fakeCPU, act *fakeActuator, log logger.Logger) *Controller {
	return New(cfg, Dependencies{
		GPU:      gpu,
		CPU:      cpu,
		Actuator: act,
		Logger:   log,
	})
}

func runAsync(t *testing.T, c *Controller) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return cancel, done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
		return nil
	}
}

func TestRunGPUProbeFailure(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{{temp: 40}}, probeErr: errors.New("nvidia-smi: not found")}
	act := &fakeActuator{}
	c := newTestController(Config{}, gpu, fakeCPU{temp: 30}, act, nil)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrStartup))
	assert.Empty(t, act.Calls())
	assert.Zero(t, gpu.Reads())
	assert.Equal(t, Terminated, c.Phase())
}

func TestRunActuatorProbeFailure(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{{temp: 40}}}
	act := &fakeActuator{probeErr: errors.New("ipmitool: not found")}
	c := newTestController(Config{}, gpu, fakeCPU{temp: 30}, act, nil)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, ErrStartup))
	assert.Empty(t, act.Calls())
}

func TestRunAppliesAndRestoresOnCancel(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{{temp: 85, util: 90}}}
	act := &fakeActuator{}
	c := newTestController(Config{Interval: 10 * time.Millisecond}, gpu, fakeCPU{temp: 40}, act, nil)

	cancel, done := runAsync(t, c)
	require.Eventually(t, func() bool {
		return act.count("apply max") == 1 && gpu.Reads() >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	calls := act.Calls()
	assert.Equal(t, []string{"apply default", "apply max", "restore"}, calls)
	assert.NoError(t, act.restoreCtx, "restore must not run on the cancelled loop context")
	assert.Equal(t, policy.Max, c.Level())
	assert.Equal(t, Terminated, c.Phase())
}

func TestRunRestoreFailureIsNotFatal(t *testing.T) {
	var buf bytes.Buffer
	gpu := &fakeGPU{readings: []gpuReading{{temp: 40}}}
	act := &fakeActuator{restoreErr: errors.New("exit status 1")}
	c := newTestController(Config{Interval: 10 * time.Millisecond}, gpu, fakeCPU{temp: 30},
		act, logger.New(&buf, logger.DebugLevel))

	cancel, done := runAsync(t, c)
	require.Eventually(t, func() bool { return gpu.Reads() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	assert.Equal(t, 1, act.count("restore"))
	assert.Contains(t, buf.String(), "Failed to restore automatic fan control")
	assert.Contains(t, buf.String(), string(ErrShutdownActuation))
}

func TestRunMonitorModeNeverActuates(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{{temp: 85}, {temp: 30}}}
	act := &fakeActuator{probeErr: errors.New("ipmitool: not found")}
	c := newTestController(Config{Interval: 10 * time.Millisecond, Monitor: true}, gpu, fakeCPU{temp: 30}, act, nil)

	cancel, done := runAsync(t, c)
	require.Eventually(t, func() bool { return gpu.Reads() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	assert.Empty(t, act.Calls())
	assert.Equal(t, policy.Default, c.Level())
}

func TestRunBaselineFailureRetriedOnFirstTick(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{{temp: 40, util: 10}}}
	act := &fakeActuator{applyErrs: []error{errors.New("exit status 1")}}
	c := newTestController(Config{Interval: time.Hour}, gpu, fakeCPU{temp: 30}, act, nil)

	cancel, done := runAsync(t, c)
	require.Eventually(t, func() bool { return act.count("apply default") == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	assert.Equal(t, []string{"apply default", "apply default", "restore"}, act.Calls())
}

func TestTickSkipsActuationWhenGPUFails(t *testing.T) {
	var buf bytes.Buffer
	gpu := &fakeGPU{readings: []gpuReading{{err: errors.New("nvidia-smi: exit status 9")}}}
	act := &fakeActuator{}
	rec := &fakeRecorder{}
	c := New(Config{}, Dependencies{
		GPU:      gpu,
		CPU:      fakeCPU{temp: 0, source: "none"},
		Actuator: act,
		Recorder: rec,
		Logger:   logger.New(&buf, logger.DebugLevel),
	})
	c.state.set(policy.High)

	c.tick(context.Background())

	assert.Empty(t, act.Calls())
	assert.Equal(t, policy.High, c.state.level)
	assert.Contains(t, buf.String(), "Failed to get GPU data")
	require.Len(t, rec.snapshots, 1)
	snap := rec.snapshots[0]
	assert.True(t, snap.Decision.GPUFailed)
	assert.False(t, snap.Decision.Applied)
	assert.Equal(t, "default", snap.Level.Target)
	assert.Equal(t, "none", snap.Temperature.CPUSource)
}

func TestTickKeepsFailedGPUReadsOutOfAverage(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{
		{temp: 70, util: 20},
		{temp: 70, util: 20},
		{err: errors.New("nvidia-smi: exit status 9")},
	}}
	rec := &fakeRecorder{}
	c := New(Config{}, Dependencies{GPU: gpu, CPU: fakeCPU{temp: 40}, Actuator: &fakeActuator{}, Recorder: rec})

	for i := 0; i < 3; i++ {
		c.tick(context.Background())
	}

	require.Len(t, rec.snapshots, 3)
	assert.Equal(t, 70, rec.snapshots[2].Temperature.GPUAverage)
	assert.Equal(t, 0, rec.snapshots[2].Temperature.GPU)
	assert.True(t, rec.snapshots[2].Decision.GPUFailed)
}

func TestTickRecordsWhenCancelledMidTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gpu := &fakeGPU{readings: []gpuReading{{temp: 85, util: 90}}, onRead: cancel}
	rec := &fakeRecorder{}
	c := New(Config{}, Dependencies{GPU: gpu, CPU: fakeCPU{temp: 40}, Actuator: &fakeActuator{}, Recorder: rec})

	c.tick(ctx)

	require.Len(t, rec.snapshots, 1)
	assert.NoError(t, rec.ctxErrs[0])
	assert.Equal(t, "max", rec.snapshots[0].Level.Target)
}

func TestTickIsIdempotent(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{{temp: 40, util: 10}}}
	act := &fakeActuator{}
	c := newTestController(Config{}, gpu, fakeCPU{temp: 30}, act, nil)
	c.state.set(policy.Default)

	for i := 0; i < 5; i++ {
		c.tick(context.Background())
	}

	assert.Empty(t, act.Calls())
}

func TestTickHoldsInsideBand(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{{temp: 55, util: 50}}}
	act := &fakeActuator{}
	c := newTestController(Config{}, gpu, fakeCPU{temp: 40}, act, nil)
	c.state.set(policy.High)

	c.tick(context.Background())

	assert.Empty(t, act.Calls())
	assert.Equal(t, policy.High, c.state.level)
}

func TestTickRetriesAfterFailedApply(t *testing.T) {
	gpu := &fakeGPU{readings: []gpuReading{{temp: 65, util: 20}}}
	act := &fakeActuator{applyErrs: []error{errors.New("exit status 1")}}
	rec := &fakeRecorder{}
	c := New(Config{}, Dependencies{GPU: gpu, CPU: fakeCPU{temp: 30}, Actuator: act, Recorder: rec})
	c.state.set(policy.Default)

	c.tick(context.Background())
	assert.Equal(t, policy.Default, c.state.level)

	c.tick(context.Background())
	assert.Equal(t, policy.Medium, c.state.level)

	assert.Equal(t, []string{"apply medium", "apply medium"}, act.Calls())
	require.Len(t, rec.snapshots, 2)
	assert.False(t, rec.snapshots[0].Decision.Applied)
	assert.True(t, rec.snapshots[1].Decision.Applied)
	assert.Equal(t, 50, rec.snapshots[1].Level.Duty)
}

func TestTickScenarios(t *testing.T) {
	tests := []struct {
		name    string
		current policy.Level
		gpu     gpuReading
		cpu     int
		want    policy.Level
		calls   []string
	}{
		{"critical gpu", policy.Default, gpuReading{temp: 85, util: 90}, 40, policy.Max, []string{"apply max"}},
		{"cool down", policy.High, gpuReading{temp: 45, util: 10}, 30, policy.Default, []string{"apply default"}},
		{"busy but cool", policy.Default, gpuReading{temp: 55, util: 75}, 40, policy.Medium, []string{"apply medium"}},
		{"hot cpu", policy.Medium, gpuReading{temp: 40, util: 5}, 62, policy.High, []string{"apply high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := &fakeActuator{}
			c := newTestController(Config{}, &fakeGPU{readings: []gpuReading{tt.gpu}}, fakeCPU{temp: tt.cpu}, act, nil)
			c.state.set(tt.current)

			c.tick(context.Background())

			assert.Equal(t, tt.want, c.state.level)
			assert.Equal(t, tt.calls, act.Calls())
		})
	}
}

func TestTickLogsFanSpeed(t *testing.T) {
	var buf bytes.Buffer
	act := &fakeActuator{}
	c := newTestController(Config{}, &fakeGPU{readings: []gpuReading{{temp: 72, util: 50}}},
		fakeCPU{temp: 40, source: "thermal_zone"}, act, logger.New(&buf, logger.InfoLevel))
	c.state.set(policy.Default)

	c.tick(context.Background())

	out := buf.String()
	assert.Contains(t, out, "System temperatures: GPU=72°C, CPU=40°C, GPU util=50%")
	assert.Contains(t, out, "Fan speed set to 72% (high temperature)")
}

func TestManualControlReleasesOnce(t *testing.T) {
	calls := 0
	lease := &manualControl{
		restore: func(ctx context.Context) {
			calls++
			assert.NoError(t, ctx.Err())
		},
		timeout: time.Second,
	}

	lease.Release()
	lease.Release()
	lease.Release()

	assert.Equal(t, 1, calls)
}

func TestManualControlReleasesOnPanic(t *testing.T) {
	calls := 0
	lease := &manualControl{restore: func(context.Context) { calls++ }, timeout: time.Second}

	assert.Panics(t, func() {
		defer lease.Release()
		panic("boom")
	})
	assert.Equal(t, 1, calls)
}

func TestTrend(t *testing.T) {
	tr := newTrend(2)

	assert.Equal(t, 40, tr.add(40))
	assert.Equal(t, 50, tr.add(60))
	assert.Equal(t, 70, tr.add(80))
	assert.Equal(t, 80, tr.add(80))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "initializing", Initializing.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "shutting_down", ShuttingDown.String())
	assert.Equal(t, "terminated", Terminated.String())
}
