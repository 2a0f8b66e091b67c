package controller

import (
	"context"

	"codeberg.org/mutker/fanctl/internal/metrics"
	"codeberg.org/mutker/fanctl/internal/policy"
)

// GPUReader reports the hottest GPU temperature and the busiest GPU
// utilization across all devices.
type GPUReader interface {
	Probe(ctx context.Context) error
	ReadGPUSnapshot(ctx context.Context) (maxTemp, maxUtil int, err error)
}

// CPUReader reports the hottest CPU temperature and the source it came from
type CPUReader interface {
	ReadCPUTemperature(ctx context.Context) (int, string)
}

// ActuatorBackend drives the chassis fan controller
type ActuatorBackend interface {
	Probe(ctx context.Context) error
	Apply(ctx context.Context, level policy.Level) error
	RestoreAutomatic(ctx context.Context) error
	Duty(level policy.Level) int
}

// Recorder persists one snapshot per tick
type Recorder interface {
	Record(ctx context.Context, snapshot *metrics.Snapshot) error
}

// Phase is a lifecycle state of the controller
type Phase int32

const (
	Initializing Phase = iota
	Running
	ShuttingDown
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}
