package ratelimit

import (
	"fmt"
	"time"
)

// Names of the independent limiters wired into routes.
const (
	API                = "api"
	Auth               = "auth"
	SensitiveOperation = "sensitiveOperation"
	ContentCreation    = "contentCreation"
	FileUpload         = "fileUpload"
	Login              = "login"
)

type Policy struct {
	Window      time.Duration `yaml:"window"`
	MaxAttempts int           `yaml:"max_attempts"`
	// MaxMultiplier enables the progressive penalty when > 1.
	MaxMultiplier float64 `yaml:"max_multiplier"`
}

func (p Policy) Progressive() bool { return p.MaxMultiplier > 1 }

func (p Policy) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive (got %s)", p.Window)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", p.MaxAttempts)
	}
	if p.MaxMultiplier != 0 && p.MaxMultiplier < 1 {
		return fmt.Errorf("max_multiplier must be 0 or >= 1 (got %g)", p.MaxMultiplier)
	}
	return nil
}

// DefaultPolicies returns the built-in thresholds. Callers own the map.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		API:                {Window: 15 * time.Minute, MaxAttempts: 300},
		Auth:               {Window: 15 * time.Minute, MaxAttempts: 5},
		SensitiveOperation: {Window: time.Hour, MaxAttempts: 10},
		ContentCreation:    {Window: 15 * time.Minute, MaxAttempts: 20},
		FileUpload:         {Window: time.Hour, MaxAttempts: 50},
		Login:              {Window: 15 * time.Minute, MaxAttempts: 5, MaxMultiplier: 4},
	}
}
