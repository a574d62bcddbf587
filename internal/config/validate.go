package config

import (
	"fmt"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DateLayout is the layout of every configured date.
const DateLayout = "2006-01-02"

// knownSources mirrors todo.AllSources; config cannot import todo without a cycle
// through the collectors that read config.
var knownSources = map[string]bool{
	"linear": true, "github": true, "slack": true, "gmail": true,
	"google-docs": true, "google-slides": true, "notion": true, "granola": true,
	"humaans": true, "dev-analytics": true, "calendar": true, "incident-io": true,
}

// Validate checks the structural correctness of the configuration and returns
// criterio field errors for every invalid value.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("log_level", c.LogLevel, validLogLevel),
		criterio.Run("backfill.default_start_date", c.Backfill.DefaultStartDate, validDate),
		criterio.Run("backfill.chunk_size", c.Backfill.ChunkSize, validChunkSize),
		criterio.Run("backfill.max_retries", c.Backfill.MaxRetries, atLeast(1)),
		criterio.Run("backfill.max_parallel", c.Backfill.MaxParallel, atLeast(1)),
		criterio.Run("backfill.retry_delay", c.Backfill.RetryDelay, nonNegative),
		criterio.Run("backfill.chunk_delay", c.Backfill.ChunkDelay, nonNegative),
		criterio.Run("backfill.collector_delay", c.Backfill.CollectorDelay, nonNegative),
		criterio.Run("dedup.threshold", c.Dedup.Threshold, validThreshold),
		criterio.Run("dedup.description_max_chars", c.Dedup.DescriptionMaxChars, atLeast(1)),
		criterio.Run("schedule.collect", c.Schedule.Collect, validCron),
		criterio.Run("schedule.lookback_days", c.Schedule.LookbackDays, atLeast(0)),
		criterio.Run("web.port", c.Web.Port, validPort),
		c.validateSources(),
	)
}

func (c *Config) validateSources() error {
	var errs criterio.FieldErrorsBuilder
	for name, sc := range c.Sources {
		field := fmt.Sprintf("sources[%q]", name)
		if !knownSources[name] {
			errs = errs.Append(field, fmt.Errorf("unknown source"))
			continue
		}
		if sc.FromDate != "" {
			if err := validDate(sc.FromDate); err != nil {
				errs = errs.Append(field+".from_date", err)
			}
		}
		if sc.BatchSize < 0 {
			errs = errs.Append(field+".batch_size", fmt.Errorf("must be >= 0"))
		}
		if sc.RatePerSecond < 0 {
			errs = errs.Append(field+".rate_per_second", fmt.Errorf("must be >= 0"))
		}
		if sc.Burst < 0 {
			errs = errs.Append(field+".burst", fmt.Errorf("must be >= 0"))
		}
	}
	return errs.ToError()
}

func validLogLevel(level string) error {
	if _, err := zerolog.ParseLevel(level); err != nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

func validDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("must be a YYYY-MM-DD date, got %q", s)
	}
	return nil
}

func validChunkSize(s string) error {
	switch s {
	case ChunkDay, ChunkWeek, ChunkMonth:
		return nil
	}
	return fmt.Errorf("must be one of day, week, month, got %q", s)
}

func validThreshold(v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("must be in (0, 1], got %v", v)
	}
	return nil
}

func validCron(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

func validPort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("must be between 1 and 65535, got %d", p)
	}
	return nil
}

func nonNegative(d Duration) error {
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func atLeast(min int) func(int) error {
	return func(v int) error {
		if v < min {
			return fmt.Errorf("must be >= %d, got %d", min, v)
		}
		return nil
	}
}
