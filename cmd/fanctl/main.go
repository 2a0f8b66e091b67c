package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"codeberg.org/mutker/fanctl/internal/command"
	"codeberg.org/mutker/fanctl/internal/config"
	"codeberg.org/mutker/fanctl/internal/controller"
	"codeberg.org/mutker/fanctl/internal/errors"
	"codeberg.org/mutker/fanctl/internal/ipmi"
	"codeberg.org/mutker/fanctl/internal/logger"
	"codeberg.org/mutker/fanctl/internal/metrics"
	"codeberg.org/mutker/fanctl/internal/pid"
	"codeberg.org/mutker/fanctl/internal/policy"
	"codeberg.org/mutker/fanctl/internal/sensor"
)

var terminationSignals = []os.Signal{unix.SIGINT, unix.SIGTERM}

var installHints = map[string]string{
	"ipmitool":   "Install it with: apt-get install ipmitool",
	"nvidia-smi": "Install the NVIDIA driver package that ships nvidia-smi",
}

func main() {
	os.Exit(start(os.Args[1:]))
}

func start(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// monitoring and listing history must work without root
	closer, err := logger.Init(logger.Options{
		Level:        cfg.Level(),
		File:         cfg.LogFile,
		IsService:    logger.IsService(),
		FileOptional: cfg.Monitor || cfg.ShowHistory > 0,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer closer.Close()
	logger.Debug().Msg("Config loaded")

	if cfg.ShowHistory > 0 {
		return showHistory(cfg, os.Stdout)
	}

	if !cfg.Monitor && unix.Geteuid() != 0 {
		logger.ErrorWithCode(errors.New().New(errors.ErrNotRoot)).Msg("Startup failed")
		return 1
	}

	pidPath := cfg.PIDFile
	if pidPath == "" {
		pidPath = pid.DefaultPath()
	}
	if err := pid.Write(pidPath); err != nil {
		logger.Error().Err(err).Str("pid_file", pidPath).Msg("Startup failed")
		return 1
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	runner := command.NewExec(time.Duration(cfg.CommandTimeout) * time.Second)
	log := logger.Default()

	gpu := sensor.NewGPUReader(newGPUSource(cfg, runner))
	defer gpu.Close()

	cpu := sensor.NewCPUReader(log,
		sensor.NewThermalZoneSource(cfg.ThermalZoneGlob),
		sensor.NewLMSensorsSource(runner),
	)

	actuator := ipmi.New(runner, cfg.Duties(), ipmi.Config{
		Interface: cfg.IPMI.Interface,
		Host:      cfg.IPMI.Host,
		User:      cfg.IPMI.User,
		Password:  cfg.IPMI.Password,
	}, log)

	collector, err := metrics.NewService(metricsConfig(cfg), log)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open decision history")
		return 1
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close decision history")
		}
	}()

	ctrl := controller.New(controller.Config{
		Interval:        time.Duration(cfg.Interval) * time.Second,
		Monitor:         cfg.Monitor,
		HistoryWindow:   cfg.HistoryWindow,
		ShutdownTimeout: time.Duration(cfg.CommandTimeout) * time.Second,
	}, controller.Dependencies{
		GPU:      gpu,
		CPU:      cpu,
		Actuator: actuator,
		Policy:   policy.New(cfg.PolicyThresholds()),
		Recorder: collector,
		Logger:   log,
	})

	logger.Info().
		Str("gpu_backend", gpu.Name()).
		Int("interval", cfg.Interval).
		Bool("monitor", cfg.Monitor).
		Str("session", collector.Session()).
		Msg("Starting fan control")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, terminationSignals...)
	defer signal.Stop(sigs)

	return serve(ctrl, sigs, func() { signal.Reset(terminationSignals...) }, log)
}

type service interface {
	Run(ctx context.Context) error
}

// serve runs svc next to a signal actor until either returns. The first
// signal cancels svc and calls reset, so a second signal falls through to
// the default handler. Returns the process exit code.
func serve(svc service, sigs <-chan os.Signal, reset func(), log logger.Logger) int {
	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return svc.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		stop := make(chan struct{})
		g.Add(func() error {
			select {
			case sig := <-sigs:
				reset()
				log.Info().Str("signal", sig.String()).Msg("Received termination signal")
			case <-stop:
			}
			return nil
		}, func(error) {
			close(stop)
		})
	}

	if err := g.Run(); err != nil {
		log.Error().Err(err).Msg("Startup failed")
		if hint := installHint(err); hint != "" {
			log.Error().Msg(hint)
		}
		return 1
	}

	log.Info().Msg("Exiting...")
	return 0
}

func newGPUSource(cfg *config.Config, runner command.Runner) sensor.GPUSource {
	if cfg.GPUBackend == config.BackendNVML {
		return sensor.NewNVMLSource()
	}
	return sensor.NewSMISource(runner)
}

func metricsConfig(cfg *config.Config) metrics.Config {
	return metrics.Config{
		DBPath:       cfg.Metrics.DBPath,
		Enabled:      cfg.Metrics.Enabled,
		BatchSize:    cfg.Metrics.BatchSize,
		BatchTimeout: cfg.Metrics.BatchTimeout,
	}
}

// installHint names the package that provides a missing tool
func installHint(err error) string {
	for ; err != nil; err = stderrors.Unwrap(err) {
		e, ok := err.(errors.Error)
		if !ok {
			continue
		}
		switch e.Code() {
		case errors.ErrToolMissing:
			if tool, ok := e.GetData().(string); ok {
				return installHints[tool]
			}
		case sensor.ErrNVMLInit:
			return "NVML could not be loaded, check that the NVIDIA driver is installed"
		}
	}
	return ""
}

func showHistory(cfg *config.Config, w io.Writer) int {
	mcfg := metricsConfig(cfg)
	mcfg.Enabled = true
	mcfg.BatchSize = 0

	collector, err := metrics.NewService(mcfg, logger.Default())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open decision history")
		return 1
	}
	defer collector.Close()

	snapshots, err := collector.Recent(context.Background(), cfg.ShowHistory)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read decision history")
		return 1
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tGPU\tCPU\tUTIL\tLEVEL\tDUTY\tAPPLIED\tREASON")
	for _, s := range snapshots {
		fmt.Fprintf(tw, "%s\t%d°C\t%d°C\t%d%%\t%s\t%d%%\t%t\t%s\n",
			s.Timestamp.Local().Format(time.DateTime),
			s.Temperature.GPU, s.Temperature.CPU, s.GPUUtil,
			s.Level.Target, s.Level.Duty, s.Decision.Applied, s.Decision.Reason)
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}
