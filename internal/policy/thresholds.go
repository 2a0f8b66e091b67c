package policy

import "fmt"

// TempThresholds are the temperature boundaries of one sensor domain, in °C
type TempThresholds struct {
	Low      int
	Medium   int
	High     int
	Critical int
}

// UtilThresholds are the GPU utilization boundaries, in percent
type UtilThresholds struct {
	Low  int
	High int
}

// Thresholds is the complete, read-only boundary set consumed by Policy
type Thresholds struct {
	GPU  TempThresholds
	CPU  TempThresholds
	Util UtilThresholds
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		GPU:  TempThresholds{Low: 50, Medium: 60, High: 70, Critical: 80},
		CPU:  TempThresholds{Low: 35, Medium: 45, High: 60, Critical: 75},
		Util: UtilThresholds{Low: 30, High: 70},
	}
}

// Validate enforces Low < Medium < High < Critical per domain and
// Low < High for utilization. It is meant to run once, at load.
func (t Thresholds) Validate() error {
	if err := t.GPU.validate("gpu"); err != nil {
		return err
	}
	if err := t.CPU.validate("cpu"); err != nil {
		return err
	}

	u := t.Util
	if u.Low < 0 || u.High > 100 || u.Low >= u.High {
		return errFactory.WithData(ErrInvalidThreshold, fmt.Sprintf("util: low=%d high=%d", u.Low, u.High))
	}

	return nil
}

func (t TempThresholds) validate(domain string) error {
	if t.Low < 0 || t.Low >= t.Medium || t.Medium >= t.High || t.High >= t.Critical {
		return errFactory.WithData(ErrInvalidThreshold, fmt.Sprintf(
			"%s: low=%d medium=%d high=%d critical=%d", domain, t.Low, t.Medium, t.High, t.Critical))
	}
	return nil
}
