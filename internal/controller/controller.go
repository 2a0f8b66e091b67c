package controller

import (
	"context"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/fanctl/internal/logger"
	"codeberg.org/mutker/fanctl/internal/metrics"
	"codeberg.org/mutker/fanctl/internal/policy"
	"codeberg.org/mutker/fanctl/internal/sensor"
)

const (
	DefaultInterval        = 5 * time.Second
	DefaultHistoryWindow   = 12
	DefaultShutdownTimeout = 10 * time.Second
)

// Config controls loop cadence and behaviour
type Config struct {
	Interval time.Duration
	// Monitor logs every decision but never touches the fans.
	Monitor         bool
	HistoryWindow   int
	ShutdownTimeout time.Duration
}

// Dependencies are the capabilities the loop drives. Recorder is optional.
type Dependencies struct {
	GPU      GPUReader
	CPU      CPUReader
	Actuator ActuatorBackend
	Policy   *policy.Policy
	Recorder Recorder
	Logger   logger.Logger
}

// Controller samples sensors on a fixed cadence and keeps the chassis fans
// at the level the policy asks for.
type Controller struct {
	cfg      Config
	gpu      GPUReader
	cpu      CPUReader
	actuator ActuatorBackend
	policy   *policy.Policy
	recorder Recorder
	log      logger.Logger

	state    state
	phase    atomic.Int32
	gpuTrend *trend
	cpuTrend *trend
}

func New(cfg Config, deps Dependencies) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if deps.Policy == nil {
		deps.Policy = policy.New(policy.DefaultThresholds())
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	return &Controller{
		cfg:      cfg,
		gpu:      deps.GPU,
		cpu:      deps.CPU,
		actuator: deps.Actuator,
		policy:   deps.Policy,
		recorder: deps.Recorder,
		log:      deps.Logger,
		state:    state{level: policy.Default},
		gpuTrend: newTrend(cfg.HistoryWindow),
		cpuTrend: newTrend(cfg.HistoryWindow),
	}
}

// Phase reports the lifecycle phase. Safe to call from any goroutine.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// Level reports the last level confirmed by the hardware, or the simulated
// level in monitor mode. Only meaningful once Run has returned.
func (c *Controller) Level() policy.Level {
	return c.state.level
}

func (c *Controller) setPhase(p Phase) {
	c.phase.Store(int32(p))
	c.log.Debug().Str("phase", p.String()).Msg("Controller phase changed")
}

// Run probes the required tools, takes manual control of the fans and
// runs the control loop until ctx is cancelled. Automatic control is
// restored before Run returns, whatever the exit path. The only error
// returned is a startup failure, in which case the fans were never
// touched.
func (c *Controller) Run(ctx context.Context) error {
	c.setPhase(Initializing)
	defer c.setPhase(Terminated)

	if err := c.probe(ctx); err != nil {
		return err
	}

	if c.cfg.Monitor {
		c.log.Info().Msg("Monitor mode activated. Logging decisions without touching the fans...")
	} else {
		lease := c.acquire(ctx)
		defer lease.Release()
	}

	c.setPhase(Running)
	c.loop(ctx)

	if !c.cfg.Monitor {
		c.log.Info().Msg("Caught signal, restoring automatic fan control...")
	}
	c.setPhase(ShuttingDown)

	return nil
}

func (c *Controller) probe(ctx context.Context) error {
	if c.gpu == nil || c.cpu == nil {
		return errFactory.WithMessage(ErrStartup, "sensor readers not configured")
	}
	if err := c.gpu.Probe(ctx); err != nil {
		return errFactory.Wrap(ErrStartup, err)
	}
	if c.cfg.Monitor {
		return nil
	}
	if c.actuator == nil {
		return errFactory.WithMessage(ErrStartup, "fan actuator not configured")
	}
	if err := c.actuator.Probe(ctx); err != nil {
		return errFactory.Wrap(ErrStartup, err)
	}

	return nil
}

// acquire applies the baseline level and returns the lease that restores
// automatic control. The lease is returned even when the baseline fails
// since the BMC may already be in manual mode.
func (c *Controller) acquire(ctx context.Context) *manualControl {
	lease := &manualControl{
		restore: c.restore,
		timeout: c.cfg.ShutdownTimeout,
	}

	if err := c.actuator.Apply(ctx, policy.Default); err != nil {
		c.log.Error().Err(err).Msg("Failed to apply baseline fan speed")
		return lease
	}

	c.state.set(policy.Default)
	c.log.Info().
		Str("level", policy.Default.String()).
		Msgf("Fan speed set to %d%% (baseline)", c.actuator.Duty(policy.Default))

	return lease
}

func (c *Controller) restore(ctx context.Context) {
	if err := c.actuator.RestoreAutomatic(ctx); err != nil {
		c.log.ErrorWithCode(errFactory.Wrap(ErrShutdownActuation, err)).Msg("Could not hand fans back to firmware")
		return
	}
	c.log.Info().Msg("Automatic fan control restored")
}

func (c *Controller) loop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// sample reads both sensor domains. GPU errors are logged and carried in
// the snapshot, never returned.
func (c *Controller) sample(ctx context.Context) sensor.Snapshot {
	var snap sensor.Snapshot

	snap.GPUTemp, snap.GPUUtil, snap.GPUErr = c.gpu.ReadGPUSnapshot(ctx)
	if snap.GPUErr != nil {
		c.log.Error().Err(snap.GPUErr).Msg("Failed to get GPU data")
		snap.GPUTemp, snap.GPUUtil = 0, 0
	}
	snap.CPUTemp, snap.CPUSource = c.cpu.ReadCPUTemperature(ctx)

	return snap
}

// tick runs one sample, decide, act cycle
func (c *Controller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	snap := c.sample(ctx)
	gpuFailed := snap.GPUErr != nil

	// placeholder zeros from a failed query stay out of the average
	gpuAvg := c.gpuTrend.mean()
	if !gpuFailed {
		gpuAvg = c.gpuTrend.add(snap.GPUTemp)
	}
	cpuAvg := c.cpuTrend.add(snap.CPUTemp)

	current := c.state.level
	target, reason := c.policy.NextLevel(snap.CPUTemp, snap.GPUTemp, snap.GPUUtil, current)

	c.log.Info().
		Int("gpu_temperature", snap.GPUTemp).
		Int("cpu_temperature", snap.CPUTemp).
		Int("gpu_utilization", snap.GPUUtil).
		Int("avg_gpu_temperature", gpuAvg).
		Int("avg_cpu_temperature", cpuAvg).
		Str("cpu_source", snap.CPUSource).
		Msgf("System temperatures: GPU=%d°C, CPU=%d°C, GPU util=%d%%", snap.GPUTemp, snap.CPUTemp, snap.GPUUtil)
	c.log.Debug().
		Str("current", current.String()).
		Str("target", target.String()).
		Str("reason", string(reason)).
		Msg("Policy decision")

	applied := c.actuate(ctx, target, reason, gpuFailed)

	// a signal mid-tick must not drop the last decision
	c.record(context.WithoutCancel(ctx), &metrics.Snapshot{
		Timestamp: time.Now(),
		Temperature: metrics.TempMetrics{
			CPU:        snap.CPUTemp,
			GPU:        snap.GPUTemp,
			CPUAverage: cpuAvg,
			GPUAverage: gpuAvg,
			CPUSource:  snap.CPUSource,
		},
		GPUUtil: snap.GPUUtil,
		Level: metrics.LevelMetrics{
			Current: current.String(),
			Target:  target.String(),
			Duty:    c.duty(target),
		},
		Decision: metrics.DecisionMetrics{
			Reason:    string(reason),
			Applied:   applied,
			GPUFailed: gpuFailed,
		},
	})
}

// actuate applies target when it differs from the confirmed level. It
// reports whether the hardware was written.
func (c *Controller) actuate(ctx context.Context, target policy.Level, reason policy.Reason, gpuFailed bool) bool {
	switch {
	case gpuFailed:
		c.log.Warn().Str("target", target.String()).Msg("Skipping fan adjustment, GPU data unavailable")
		return false
	case c.cfg.Monitor:
		if target != c.state.level {
			c.log.Info().Msgf("Would set fan speed to %d%% (%s)", c.duty(target), reason)
		}
		c.state.level = target
		return false
	case !c.state.needsApply(target):
		return false
	}

	if err := c.actuator.Apply(ctx, target); err != nil {
		c.log.Error().Err(err).Str("target", target.String()).Msg("Failed to set fan speed")
		return false
	}

	c.state.set(target)
	c.log.Info().
		Str("level", target.String()).
		Msgf("Fan speed set to %d%% (%s)", c.actuator.Duty(target), reason)

	return true
}

func (c *Controller) duty(level policy.Level) int {
	if c.actuator == nil {
		return policy.DefaultDuties().Duty(level)
	}
	return c.actuator.Duty(level)
}

func (c *Controller) record(ctx context.Context, snapshot *metrics.Snapshot) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, snapshot); err != nil {
		c.log.Warn().Err(err).Msg("Failed to record decision")
	}
}
