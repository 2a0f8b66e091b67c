package policy

import "fmt"

// Level is a named chassis cooling level. Levels are ordered: a greater
// Level always means more airflow.
type Level int

const (
	Default Level = iota
	Medium
	High
	Max
)

// Levels lists every Level in ascending order
var Levels = [...]Level{Default, Medium, High, Max}

func (l Level) String() string {
	switch l {
	case Default:
		return "default"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Max:
		return "max"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the defined levels
func (l Level) Valid() bool {
	return l >= Default && l <= Max
}

// Duties maps every Level to a duty cycle percentage. Indexing by Level
// keeps the mapping total.
type Duties [len(Levels)]int

// DefaultDuties mirrors the reference IPMI values 0x20, 0x32, 0x48, 0x64.
func DefaultDuties() Duties {
	return Duties{
		Default: 32,
		Medium:  50,
		High:    72,
		Max:     100,
	}
}

// Duty returns the duty cycle percentage for l. Unknown levels get the
// Max duty.
func (d Duties) Duty(l Level) int {
	if !l.Valid() {
		return d[Max]
	}
	return d[l]
}

// Validate checks that every duty is in [0, 100] and that duties never
// decrease with the level.
func (d Duties) Validate() error {
	for _, l := range Levels {
		if d[l] < 0 || d[l] > 100 {
			return errFactory.WithData(ErrInvalidDuty, fmt.Sprintf("%s=%d", l, d[l]))
		}
		if l > Default && d[l] < d[l-1] {
			return errFactory.WithData(ErrInvalidDuty, fmt.Sprintf("%s=%d below %s=%d", l, d[l], l-1, d[l-1]))
		}
	}
	return nil
}
