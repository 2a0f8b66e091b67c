package metrics

import "codeberg.org/mutker/fanctl/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/fanctl/history.db"
)

type Config struct {
	DBPath  string
	Enabled bool
	// BatchSize buffers this many snapshots before writing. 0 or 1 writes
	// every snapshot immediately.
	BatchSize int
	// BatchTimeout flushes a partial batch after this many seconds
	BatchTimeout int
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		Enabled:      false, // Disabled by default
		BatchSize:    12,
		BatchTimeout: 60,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if metrics is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "negative batch settings")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
