// Package policy maps a sensor snapshot and the applied cooling level to
// the next cooling level.
package policy

// Reason explains which rule of the cascade produced a decision
type Reason string

const (
	ReasonCritical Reason = "critical temperature"
	ReasonHigh     Reason = "high temperature"
	ReasonMedium   Reason = "medium temperature or high utilization"
	ReasonLow      Reason = "low temperature and utilization"
	ReasonHold     Reason = "holding current level"
)

// Policy is a stateless threshold classifier.
type Policy struct {
	t Thresholds
}

func New(t Thresholds) *Policy {
	return &Policy{t: t}
}

// NextLevel evaluates the rules in order and returns the first match.
// Crossing any single escalation threshold is enough to raise the level;
// dropping back to Default needs every input below its low boundary.
// Anything in between keeps current.
func (p *Policy) NextLevel(cpuTemp, gpuTemp, gpuUtil int, current Level) (Level, Reason) {
	t := p.t

	switch {
	case gpuTemp >= t.GPU.Critical || cpuTemp >= t.CPU.Critical:
		return Max, ReasonCritical
	case gpuTemp >= t.GPU.High || cpuTemp >= t.CPU.High:
		return High, ReasonHigh
	case gpuTemp >= t.GPU.Medium || cpuTemp >= t.CPU.Medium || gpuUtil >= t.Util.High:
		return Medium, ReasonMedium
	case gpuTemp < t.GPU.Low && cpuTemp < t.CPU.Low && gpuUtil < t.Util.Low:
		return Default, ReasonLow
	}

	return current, ReasonHold
}
