package sensor

import (
	"context"

	"codeberg.org/mutker/fanctl/internal/logger"
)

// SourceNone is reported when no CPU source produced a reading
const SourceNone = "none"

// CPUReader tries each TemperatureSource in order. The first one that
// reports a non-zero maximum wins.
type CPUReader struct {
	sources []TemperatureSource
	log     logger.Logger
}

func NewCPUReader(log logger.Logger, sources ...TemperatureSource) *CPUReader {
	return &CPUReader{sources: sources, log: log}
}

// ReadCPUTemperature returns the hottest CPU reading in °C and the name of
// the source that produced it. 0 means no source had data, which the
// policy cannot tell apart from a cold CPU.
func (r *CPUReader) ReadCPUTemperature(ctx context.Context) (int, string) {
	for i, src := range r.sources {
		temps, err := src.Temperatures(ctx)
		if err != nil {
			ev := r.log.Debug()
			if i > 0 {
				ev = r.log.Warn()
			}
			ev.Err(err).Str("source", src.Name()).Msg("Failed to get CPU temperature")
			continue
		}

		if m := maxOf(temps); m > 0 {
			return m, src.Name()
		}
		r.log.Debug().Str("source", src.Name()).Int("readings", len(temps)).Msg("CPU source reported no heat")
	}

	return 0, SourceNone
}
