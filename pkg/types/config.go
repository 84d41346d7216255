package types

import "time"

// Config holds engine selection and pool parameters for Storage.
type Config struct {
	Dialect        string `json:"dialect" yaml:"dialect"`
	DSN            string `json:"dsn" yaml:"dsn"`
	PoolSize       int    `json:"pool_size" yaml:"pool_size"`
	AcquireTimeout int    `json:"acquire_timeout_ms" yaml:"acquire_timeout_ms"`
	WriterPriority bool   `json:"writer_priority" yaml:"writer_priority"`
	WorkerID       int    `json:"worker_id" yaml:"worker_id"`
	DatacenterID   int    `json:"datacenter_id" yaml:"datacenter_id"`
}

// Defaults applied when fields are zero. Validate leaves AcquireTimeout
// as it is; AcquireTimeoutDuration substitutes this default.
const (
	// DefaultAcquireTimeout bounds Pool.Acquire waits.
	DefaultAcquireTimeout = 1500 * time.Millisecond
)

// Validate checks that the Config is well-formed and fills defaults.
// The default pool size is 1 for SQLite and 8 for Postgres.
func (c *Config) Validate() error {
	d, err := ParseDialect(c.Dialect)
	if err != nil {
		return err
	}
	if c.DSN == "" {
		return ErrDSNEmpty
	}
	if c.PoolSize == 0 {
		if d == SQLite {
			c.PoolSize = 1
		} else {
			c.PoolSize = 8
		}
	}
	if c.PoolSize < 0 {
		return ErrPoolSizeInvalid
	}
	if c.WorkerID < 0 || c.WorkerID > 31 {
		return ErrWorkerIDOutOfRange
	}
	if c.DatacenterID < 0 || c.DatacenterID > 31 {
		return ErrDatacenterOutOfRange
	}
	return nil
}

// AcquireTimeoutDuration returns the configured acquire timeout, or the
// default when unset.
func (c Config) AcquireTimeoutDuration() time.Duration {
	if c.AcquireTimeout <= 0 {
		return DefaultAcquireTimeout
	}
	return time.Duration(c.AcquireTimeout) * time.Millisecond
}
