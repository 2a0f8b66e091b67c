package sensor

import (
	"codeberg.org/mutker/fanctl/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	ErrSensorUnavailable = errors.ErrSensorUnavailable
	ErrToolMissing       = errors.ErrToolMissing

	ErrThermalZoneRead = errors.ErrorCode("sensor_thermal_zone_read_failed")
	ErrSensorsCommand  = errors.ErrorCode("sensor_lm_sensors_failed")
	ErrGPUQuery        = errors.ErrorCode("sensor_gpu_query_failed")
	ErrGPUProbe        = errors.ErrorCode("sensor_gpu_probe_failed")
	ErrNVMLInit        = errors.ErrorCode("sensor_nvml_init_failed")
	ErrDeviceCount     = errors.ErrorCode("sensor_nvml_device_count_failed")
)

var errFactory = errors.New()

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}
