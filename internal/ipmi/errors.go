package ipmi

import "codeberg.org/mutker/fanctl/internal/errors"

const (
	ErrToolMissing    = errors.ErrToolMissing
	ErrManualMode     = errors.ErrorCode("ipmi_manual_mode_failed")
	ErrSetDuty        = errors.ErrorCode("ipmi_set_duty_failed")
	ErrRestoreAuto    = errors.ErrorCode("ipmi_restore_auto_failed")
	ErrDutyOutOfRange = errors.ErrorCode("ipmi_duty_out_of_range")
)

var errFactory = errors.New()
