package metrics

import (
	"context"
	"time"
)

// Collector records controller decisions
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Session() string
	Close() error
}

// Repository defines the interface for history storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// Snapshot is one controller tick
type Snapshot struct {
	Timestamp   time.Time
	Session     string
	Temperature TempMetrics
	GPUUtil     int
	Level       LevelMetrics
	Decision    DecisionMetrics
}

type TempMetrics struct {
	CPU        int
	GPU        int
	CPUAverage int
	GPUAverage int
	CPUSource  string
}

type LevelMetrics struct {
	Current string
	Target  string
	Duty    int
}

type DecisionMetrics struct {
	Reason  string
	Applied bool
	// GPUFailed marks a tick whose GPU query failed and skipped actuation
	GPUFailed bool
}
