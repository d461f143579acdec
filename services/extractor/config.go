package extractor

import (
	"time"

	"socialkpi-backend/lib/retrypolicy"
)

type Config struct {
	// MaxConcurrent bounds simultaneous extraction tasks process-wide.
	MaxConcurrent int `json:"max_concurrent"`
	// PlatformConcurrent bounds simultaneous tasks against one platform.
	PlatformConcurrent int `json:"platform_concurrent"`
	// PlatformRPS throttles task starts per platform.
	PlatformRPS float64 `json:"platform_rps"`

	// TaskTimeout is the wall-clock budget for one platform's full
	// escalation; AttemptTimeout bounds a single tier attempt.
	TaskTimeout    time.Duration `json:"task_timeout"`
	AttemptTimeout time.Duration `json:"attempt_timeout"`

	Retry retrypolicy.Config `json:"retry"`
}

func (c *Config) defaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.PlatformConcurrent <= 0 {
		c.PlatformConcurrent = 2
	}
	if c.PlatformRPS <= 0 {
		c.PlatformRPS = 1
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 45 * time.Second
	}
}
