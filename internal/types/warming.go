package types

import (
	"fmt"
	"regexp"
	"time"
)

// WarmingPriority orders warming work when tasks compete for the
// concurrency budget.
type WarmingPriority string

const (
	WarmCritical   WarmingPriority = "critical"
	WarmHigh       WarmingPriority = "high"
	WarmMedium     WarmingPriority = "medium"
	WarmLow        WarmingPriority = "low"
	WarmBackground WarmingPriority = "background"
)

// WarmingTask binds a key pattern to a named warming function. The pattern
// is used both for triggering (matched against event keys) and for
// identifying target keys.
type WarmingTask struct {
	KeyPattern   string          `json:"key_pattern"`
	Function     string          `json:"function"`
	Priority     WarmingPriority `json:"priority"`
	TTL          time.Duration   `json:"ttl,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	RetryCount   int             `json:"retry_count"`
	RetryDelay   time.Duration   `json:"retry_delay"`
	Enabled      bool            `json:"enabled"`

	// Mutated on each execution, guarded by the scheduler.
	Attempts    int64     `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`

	re *regexp.Regexp
}

// Validate checks task invariants and compiles the key pattern.
func (t *WarmingTask) Validate() error {
	if t.KeyPattern == "" {
		return fmt.Errorf("%w: warming task requires a key pattern", ErrInvalidWarmingTask)
	}
	if t.Function == "" {
		return fmt.Errorf("%w: warming task %q requires a function name", ErrInvalidWarmingTask, t.KeyPattern)
	}
	if t.RetryCount < 0 || t.RetryDelay < 0 {
		return fmt.Errorf("%w: warming task %q has negative retry settings", ErrInvalidWarmingTask, t.KeyPattern)
	}

	re, err := regexp.Compile(`\A(?:` + t.KeyPattern + `)`)
	if err != nil {
		return fmt.Errorf("%w: warming task %q pattern: %v", ErrInvalidWarmingTask, t.KeyPattern, err)
	}
	t.re = re

	return nil
}

// Matches reports whether the task's pattern matches a prefix of the key.
func (t *WarmingTask) Matches(key string) bool {
	return key != "" && t.re != nil && t.re.MatchString(key)
}
