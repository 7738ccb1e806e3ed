// Package config loads uthread settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/uthread/internal/preempt"
	"github.com/me/uthread/internal/ucontext"
	"github.com/me/uthread/pkg/model"
)

// Config holds configuration for the uthread tools.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
	Trace     TraceConfig     `yaml:"trace"`
	Debug     DebugConfig     `yaml:"debug"`
}

// SchedulerConfig configures preemption and the stack budget.
type SchedulerConfig struct {
	TickHz     int              `yaml:"tick_hz"`     // preemption frequency (default 100)
	TickSource model.TickSource `yaml:"tick_source"` // ticker, itimer or none
	MaxStacks  int              `yaml:"max_stacks"`  // 0 means unlimited
	StackSize  int              `yaml:"stack_size"`  // nominal bytes per stack
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// TraceConfig configures event persistence.
type TraceConfig struct {
	DB string `yaml:"db"` // SQLite path; empty disables persistence
}

// DebugConfig configures the debug HTTP API.
type DebugConfig struct {
	Addr string `yaml:"addr"` // listen address; empty disables the server
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			TickHz:     preempt.DefaultHz,
			TickSource: model.TickSourceTicker,
			StackSize:  ucontext.DefaultStackSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// path is empty.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if c.Scheduler.TickHz <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.tick_hz must be positive, got %d", c.Scheduler.TickHz))
	}
	if !c.Scheduler.TickSource.Valid() {
		errs = append(errs, fmt.Errorf("scheduler.tick_source %q is not one of ticker, itimer, none", c.Scheduler.TickSource))
	}
	if c.Scheduler.MaxStacks < 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_stacks must not be negative, got %d", c.Scheduler.MaxStacks))
	}
	if c.Scheduler.StackSize <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.stack_size must be positive, got %d", c.Scheduler.StackSize))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Switcher returns the context-switch configuration.
func (c SchedulerConfig) Switcher() ucontext.Config {
	return ucontext.Config{MaxStacks: c.MaxStacks, StackSize: c.StackSize}
}
