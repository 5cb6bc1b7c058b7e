// Package config defines the configuration surface consumed by the pipeline.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/wayfare-dev/wayfare/internal/common"
)

// Options is the immutable configuration passed into every pipeline
// invocation. Passing an explicit value rather than reading ambient state
// keeps reprocessing deterministic and safe to run in parallel with
// different parameters.
type Options struct {
	HomeRegion          string
	DatabasePath        string
	GapDays             int
	ConfidenceThreshold float64
	BatchSize           int
	PoolPersistentSize  int
	PoolOverflowSize    int
	PoolAcquireTimeout  time.Duration
	MaxConcurrentTasks  int
	WatchdogInterval    time.Duration
	WatchdogStale       time.Duration
}

// Default returns the default option set.
func Default() Options {
	return Options{
		HomeRegion:          "OR",
		DatabasePath:        "data/wayfare.db",
		GapDays:             2,
		ConfidenceThreshold: 0.7,
		BatchSize:           100,
		PoolPersistentSize:  5,
		PoolOverflowSize:    10,
		PoolAcquireTimeout:  30 * time.Second,
		MaxConcurrentTasks:  4,
		WatchdogInterval:    15 * time.Second,
		WatchdogStale:       5 * time.Minute,
	}
}

// FromViper builds Options from the loaded viper configuration, falling
// back to defaults for unset keys.
func FromViper() Options {
	opts := Default()

	if viper.IsSet("home_region") {
		opts.HomeRegion = viper.GetString("home_region")
	}
	if viper.IsSet("database.path") {
		opts.DatabasePath = viper.GetString("database.path")
	}
	if viper.IsSet("gap_days") {
		opts.GapDays = viper.GetInt("gap_days")
	}
	if viper.IsSet("confidence_threshold") {
		opts.ConfidenceThreshold = viper.GetFloat64("confidence_threshold")
	}
	if viper.IsSet("batch_size") {
		opts.BatchSize = viper.GetInt("batch_size")
	}
	if viper.IsSet("database.pool_size") {
		opts.PoolPersistentSize = viper.GetInt("database.pool_size")
	}
	if viper.IsSet("database.max_overflow") {
		opts.PoolOverflowSize = viper.GetInt("database.max_overflow")
	}
	if viper.IsSet("database.acquire_timeout") {
		opts.PoolAcquireTimeout = viper.GetDuration("database.acquire_timeout")
	}
	if viper.IsSet("tasks.max_concurrent") {
		opts.MaxConcurrentTasks = viper.GetInt("tasks.max_concurrent")
	}
	if viper.IsSet("tasks.watchdog_interval") {
		opts.WatchdogInterval = viper.GetDuration("tasks.watchdog_interval")
	}
	if viper.IsSet("tasks.watchdog_stale") {
		opts.WatchdogStale = viper.GetDuration("tasks.watchdog_stale")
	}

	return opts
}

// Validate checks the option set. Grouping parameters are validated here so
// bad values are rejected at job submission and never reach the grouping
// algorithm.
func (o Options) Validate() error {
	if o.HomeRegion == "" {
		return fmt.Errorf("%w: home_region must be set", common.ErrInvalidConfig)
	}
	if o.GapDays < 0 {
		return fmt.Errorf("%w: gap_days must be >= 0, got %d", common.ErrInvalidGroupingParameters, o.GapDays)
	}
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be in [0,1], got %v", common.ErrInvalidConfig, o.ConfidenceThreshold)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0, got %d", common.ErrInvalidConfig, o.BatchSize)
	}
	if o.PoolPersistentSize < 1 {
		return fmt.Errorf("%w: pool_size must be >= 1, got %d", common.ErrInvalidConfig, o.PoolPersistentSize)
	}
	if o.PoolOverflowSize < 0 {
		return fmt.Errorf("%w: max_overflow must be >= 0, got %d", common.ErrInvalidConfig, o.PoolOverflowSize)
	}
	if o.MaxConcurrentTasks < 1 {
		return fmt.Errorf("%w: max_concurrent must be >= 1, got %d", common.ErrInvalidConfig, o.MaxConcurrentTasks)
	}
	return nil
}
