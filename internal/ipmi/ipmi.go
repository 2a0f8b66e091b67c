// Package ipmi drives the chassis fan controller through ipmitool raw
// commands (OEM netfn 0x30, command 0x30).
package ipmi

import (
	"context"
	"fmt"

	"codeberg.org/mutker/fanctl/internal/command"
	"codeberg.org/mutker/fanctl/internal/logger"
	"codeberg.org/mutker/fanctl/internal/policy"
)

const ipmitool = "ipmitool"

var (
	manualModeArgs  = []string{"raw", "0x30", "0x30", "0x01", "0x00"}
	autoModeArgs    = []string{"raw", "0x30", "0x30", "0x01", "0x01"}
	setDutyArgsBase = []string{"raw", "0x30", "0x30", "0x02", "0xff"}
)

// Config selects the BMC. An empty Host talks to the local BMC over the
// in-band interface.
type Config struct {
	Interface string
	Host      string
	User      string
	Password  string
}

// Actuator applies cooling levels to the chassis fans
type Actuator struct {
	runner command.Runner
	duties policy.Duties
	prefix []string
	log    logger.Logger
}

func New(runner command.Runner, duties policy.Duties, cfg Config, log logger.Logger) *Actuator {
	return &Actuator{
		runner: runner,
		duties: duties,
		prefix: connectionArgs(cfg),
		log:    log,
	}
}

func connectionArgs(cfg Config) []string {
	var args []string
	if cfg.Interface != "" {
		args = append(args, "-I", cfg.Interface)
	}
	if cfg.Host != "" {
		args = append(args, "-H", cfg.Host)
	}
	if cfg.User != "" {
		args = append(args, "-U", cfg.User)
	}
	if cfg.Password != "" {
		args = append(args, "-P", cfg.Password)
	}
	return args
}

// Probe checks that ipmitool is installed
func (a *Actuator) Probe(_ context.Context) error {
	if _, err := a.runner.LookPath(ipmitool); err != nil {
		return errFactory.Wrap(ErrToolMissing, err).WithData(ipmitool)
	}
	return nil
}

// Duty returns the duty cycle percentage configured for level
func (a *Actuator) Duty(level policy.Level) int {
	return a.duties.Duty(level)
}

// Apply switches the fans to manual mode and sets the duty cycle for level.
// The duty command is not sent if manual mode could not be entered.
func (a *Actuator) Apply(ctx context.Context, level policy.Level) error {
	duty := a.duties.Duty(level)
	if duty < 0 || duty > 100 {
		return errFactory.WithData(ErrDutyOutOfRange, duty)
	}

	if err := a.run(ctx, manualModeArgs...); err != nil {
		return errFactory.Wrap(ErrManualMode, err)
	}

	args := append(append([]string{}, setDutyArgsBase...), EncodeDuty(duty))
	if err := a.run(ctx, args...); err != nil {
		return errFactory.Wrap(ErrSetDuty, err).WithData(fmt.Sprintf("%s=%d%%", level, duty))
	}

	return nil
}

// RestoreAutomatic hands the fans back to the BMC's own algorithm
func (a *Actuator) RestoreAutomatic(ctx context.Context) error {
	if err := a.run(ctx, autoModeArgs...); err != nil {
		return errFactory.Wrap(ErrRestoreAuto, err)
	}
	return nil
}

func (a *Actuator) run(ctx context.Context, args ...string) error {
	full := append(append([]string{}, a.prefix...), args...)
	a.log.Debug().Str("command", command.Format(ipmitool, redact(full)...)).Msg("Running IPMI command")

	_, err := a.runner.Run(ctx, ipmitool, full...)
	return err
}

// EncodeDuty renders a percentage in the two hex digit form the BMC expects
func EncodeDuty(percent int) string {
	return fmt.Sprintf("0x%02x", percent)
}

func redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "-P" {
			out[i+1] = "****"
		}
	}
	return out
}
