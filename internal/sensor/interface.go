// Package sensor acquires CPU and GPU telemetry. Every backend reduces its
// raw readings to whole degrees Celsius or whole percent.
package sensor

import "context"

// TemperatureSource is one way of reading CPU temperatures. An empty
// result or an error means the source is unavailable.
type TemperatureSource interface {
	Name() string
	Temperatures(ctx context.Context) ([]int, error)
}

// GPUSource queries every installed GPU in one call
type GPUSource interface {
	Name() string
	// Probe checks that the backend is reachable. Called once at startup.
	Probe(ctx context.Context) error
	Query(ctx context.Context) ([]GPURecord, error)
	Close() error
}

// GPURecord is the telemetry of one physical GPU. Negative values mean the
// device did not report that field.
type GPURecord struct {
	Index       int
	Temperature int
	Utilization int
}

// Snapshot is everything the policy sees for one tick
type Snapshot struct {
	CPUTemp   int
	GPUTemp   int
	GPUUtil   int
	CPUSource string
	// GPUErr is set when the GPU query failed; GPUTemp and GPUUtil are 0.
	GPUErr error
}
