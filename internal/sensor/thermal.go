package sensor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultThermalZoneGlob matches every kernel thermal zone
const DefaultThermalZoneGlob = "/sys/class/thermal/thermal_zone*/temp"

const milliDegreesPerDegree = 1000

// ThermalZoneSource reads kernel thermal zones. Each zone file holds one
// integer in milli-degrees Celsius.
type ThermalZoneSource struct {
	glob string
}

func NewThermalZoneSource(glob string) *ThermalZoneSource {
	if glob == "" {
		glob = DefaultThermalZoneGlob
	}
	return &ThermalZoneSource{glob: glob}
}

func (*ThermalZoneSource) Name() string {
	return "thermal_zone"
}

// Temperatures returns one value per readable zone. Zones that cannot be
// read or parsed are skipped.
func (s *ThermalZoneSource) Temperatures(_ context.Context) ([]int, error) {
	paths, err := filepath.Glob(s.glob)
	if err != nil {
		return nil, errFactory.Wrap(ErrThermalZoneRead, err)
	}
	if len(paths) == 0 {
		return nil, errFactory.WithData(ErrSensorUnavailable, "no thermal zones match "+s.glob)
	}

	temps := make([]int, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			continue
		}
		temps = append(temps, nonNegative(milli/milliDegreesPerDegree))
	}

	return temps, nil
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func maxOf(values []int) int {
	m := 0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
