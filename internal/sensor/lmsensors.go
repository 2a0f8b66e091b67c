package sensor

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/mutker/fanctl/internal/command"
)

const sensorsCommand = "sensors"

// packageTempRe matches lm-sensors lines like "Package id 0:  +48.0°C  (high = ...)"
var packageTempRe = regexp.MustCompile(`Package id \d+:\s*([+-]?\d+(?:\.\d+)?)\s*°C`)

// LMSensorsSource parses the text dump of the lm-sensors "sensors" command,
// keeping only per-package CPU temperatures.
type LMSensorsSource struct {
	runner command.Runner
}

func NewLMSensorsSource(runner command.Runner) *LMSensorsSource {
	return &LMSensorsSource{runner: runner}
}

func (*LMSensorsSource) Name() string {
	return sensorsCommand
}

func (s *LMSensorsSource) Temperatures(ctx context.Context) ([]int, error) {
	out, err := s.runner.Run(ctx, sensorsCommand)
	if err != nil {
		return nil, errFactory.Wrap(ErrSensorsCommand, err)
	}

	temps := ParsePackageTemps(string(out))
	if len(temps) == 0 {
		return nil, errFactory.WithData(ErrSensorUnavailable, "no package temperatures in sensors output")
	}
	return temps, nil
}

// ParsePackageTemps extracts every "Package id N" temperature, truncated
// to whole degrees.
func ParsePackageTemps(output string) []int {
	var temps []int
	for _, line := range strings.Split(output, "\n") {
		m := packageTempRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		temps = append(temps, nonNegative(int(math.Trunc(v))))
	}
	return temps
}
