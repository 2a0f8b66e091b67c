package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig    ErrorCode = "invalid_configuration"
	ErrBindFlags        ErrorCode = "bind_flags_failed"
	ErrReadConfig       ErrorCode = "read_config_failed"
	ErrInvalidInterval  ErrorCode = "invalid_interval"
	ErrInvalidThreshold ErrorCode = "invalid_threshold"
	ErrInvalidDuty      ErrorCode = "invalid_duty_cycle"
	ErrInvalidBackend   ErrorCode = "invalid_gpu_backend"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrOpenLogFile     ErrorCode = "open_log_file_failed"

	// Startup errors
	ErrStartup        ErrorCode = "startup_failed"
	ErrToolMissing    ErrorCode = "startup_tool_missing"
	ErrNotRoot        ErrorCode = "startup_not_root"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Sensor errors
	ErrSensorUnavailable ErrorCode = "sensor_unavailable"

	// Actuation errors
	ErrShutdownActuation ErrorCode = "shutdown_actuation_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"

	// History errors
	ErrInitMetrics    ErrorCode = "init_metrics_failed"
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"
	ErrCloseMetrics   ErrorCode = "close_metrics_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrInvalidConfig:     "Invalid configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrReadConfig:        "Failed to read config file",
	ErrInvalidInterval:   "Invalid interval value",
	ErrInvalidThreshold:  "Invalid threshold ordering",
	ErrInvalidDuty:       "Invalid fan duty cycle",
	ErrInvalidBackend:    "Unknown GPU backend",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrOpenLogFile:       "Failed to open log file",
	ErrStartup:           "Startup checks failed",
	ErrToolMissing:       "Required tool is not installed",
	ErrNotRoot:           "Must be run as root for IPMI access",
	ErrAlreadyRunning:    "Another instance is already running",
	ErrSensorUnavailable: "Sensor unavailable",
	ErrShutdownActuation: "Failed to restore automatic fan control",
	ErrOperationFailed:   "Operation failed",
	ErrTimeout:           "Operation timed out",
	ErrInitMetrics:       "Failed to initialize metrics",
	ErrCollectMetrics:    "Failed to collect metrics data",
	ErrCloseMetrics:      "Failed to close metrics connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
