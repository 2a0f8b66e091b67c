package sensor

import (
	"context"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlDevice is the subset of nvml.Device used for telemetry
type nvmlDevice interface {
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
}

// nvmlLibrary abstracts the NVML entry points so tests can run without a driver
type nvmlLibrary interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceCount() (int, nvml.Return)
	Device(index int) (nvmlDevice, nvml.Return)
}

type nvmlBinding struct{}

func (nvmlBinding) Init() nvml.Return {
	return nvml.Init()
}

func (nvmlBinding) Shutdown() nvml.Return {
	return nvml.Shutdown()
}

func (nvmlBinding) DeviceCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

func (nvmlBinding) Device(index int) (nvmlDevice, nvml.Return) {
	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, ret
	}
	return device, ret
}

// NVMLSource reads GPU telemetry through the NVIDIA management library
// instead of spawning nvidia-smi every tick.
type NVMLSource struct {
	lib         nvmlLibrary
	mu          sync.Mutex
	initialized bool
}

func NewNVMLSource() *NVMLSource {
	return &NVMLSource{lib: nvmlBinding{}}
}

func (*NVMLSource) Name() string {
	return "nvml"
}

func (s *NVMLSource) Probe(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	if ret := s.lib.Init(); ret != nvml.SUCCESS {
		return errFactory.Wrap(ErrNVMLInit, newNVMLError(ret))
	}
	s.initialized = true

	return nil
}

// Query reads every device. Devices that fail a read are reported with -1
// in the failing field; the call fails only when no device reports anything.
func (s *NVMLSource) Query(ctx context.Context) ([]GPURecord, error) {
	if err := s.Probe(ctx); err != nil {
		return nil, err
	}

	count, ret := s.lib.DeviceCount()
	if ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrDeviceCount, newNVMLError(ret))
	}

	records := make([]GPURecord, 0, count)
	var lastErr error
	for i := 0; i < count; i++ {
		device, ret := s.lib.Device(i)
		if ret != nvml.SUCCESS {
			lastErr = newNVMLError(ret)
			continue
		}

		rec := GPURecord{Index: i, Temperature: -1, Utilization: -1}
		if temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
			rec.Temperature = int(temp)
		} else {
			lastErr = newNVMLError(ret)
		}
		if util, ret := device.GetUtilizationRates(); ret == nvml.SUCCESS {
			rec.Utilization = int(util.Gpu)
		} else {
			lastErr = newNVMLError(ret)
		}

		if rec.Temperature >= 0 || rec.Utilization >= 0 {
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		if lastErr != nil {
			return nil, errFactory.Wrap(ErrGPUQuery, lastErr)
		}
		return nil, errFactory.WithData(ErrSensorUnavailable, "no NVIDIA devices found")
	}

	return records, nil
}

func (s *NVMLSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	s.initialized = false
	if ret := s.lib.Shutdown(); ret != nvml.SUCCESS {
		return newNVMLError(ret)
	}
	return nil
}
