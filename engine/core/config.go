package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DisposalFailurePolicy decides what happens when a destructor fails on the
// disposal worker.
type DisposalFailurePolicy string

const (
	// The failure is logged, the resource is leaked and the worker moves on.
	DisposalFailureLog DisposalFailurePolicy = "log"
	// The failure is logged at fatal level, which terminates the process.
	DisposalFailureFatal DisposalFailurePolicy = "fatal"
)

const (
	MaxFramesInFlightLimit uint32 = 16
	DefaultDeferredHighWater      = 4096
)

// Duration is a time.Duration that decodes from TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type LogConfig struct {
	Level string `toml:"level"`
}

// ContextConfig holds the tunables consumed by the GPU context.
type ContextConfig struct {
	// Number of frames the GPU may still be working on after submission.
	// Deferred destructors wait MaxFramesInFlight+1 ticks.
	MaxFramesInFlight uint32 `toml:"max_frames_in_flight"`
	// What to do when a destructor fails on the disposal worker.
	DisposalFailurePolicy DisposalFailurePolicy `toml:"disposal_failure_policy"`
	// How long Close waits for the disposal worker. Zero waits forever.
	WorkerJoinTimeout Duration `toml:"worker_join_timeout"`
	// Destructors running longer than this are reported. Zero disables it.
	SlowDestructor Duration `toml:"slow_destructor"`
	// Deferred queue length past which a backpressure warning is logged.
	DeferredHighWater int `toml:"deferred_high_water"`
	// Route tokens whose owner became unreachable to deferred disposal.
	ReclaimUnreachable bool `toml:"reclaim_unreachable"`
}

// AppConfig drives the bundled host application.
type AppConfig struct {
	Name string `toml:"name"`
	// Enable validation layers and the debug report callback.
	Validation bool `toml:"validation"`
	// A hidden window of this size provides a present queue. Zero runs headless.
	WindowWidth  uint32 `toml:"window_width"`
	WindowHeight uint32 `toml:"window_height"`
	// Frames to run before exiting. Zero runs until interrupted.
	Frames          uint64 `toml:"frames"`
	TargetFrameRate uint32 `toml:"target_frame_rate"`
	// Goroutines creating and releasing resources every frame.
	Workers int `toml:"workers"`
	// Reload log level and high water mark when the file changes.
	WatchConfig bool `toml:"watch_config"`
}

type Config struct {
	Log     LogConfig     `toml:"log"`
	App     AppConfig     `toml:"app"`
	Context ContextConfig `toml:"context"`
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		App: AppConfig{
			Name:            "vkctx",
			Frames:          600,
			TargetFrameRate: 60,
			Workers:         4,
		},
		Context: DefaultContextConfig(),
	}
}

func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		MaxFramesInFlight:     2,
		DisposalFailurePolicy: DisposalFailureLog,
		SlowDestructor:        Duration{50 * time.Millisecond},
		DeferredHighWater:     DefaultDeferredHighWater,
		ReclaimUnreachable:    true,
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := ParseConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML data into cfg and normalizes the result.
func ParseConfig(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.Normalize()
}

// Normalize validates the configuration and clamps values into range.
func (c *Config) Normalize() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.App.Name == "" {
		c.App.Name = "vkctx"
	}
	c.App.TargetFrameRate = Clamp(c.App.TargetFrameRate, 1, 1000)
	c.App.Workers = Clamp(c.App.Workers, 0, 64)
	return c.Context.Normalize()
}

func (c *ContextConfig) Normalize() error {
	c.MaxFramesInFlight = Clamp(c.MaxFramesInFlight, 1, MaxFramesInFlightLimit)
	switch DisposalFailurePolicy(strings.ToLower(string(c.DisposalFailurePolicy))) {
	case "", DisposalFailureLog:
		c.DisposalFailurePolicy = DisposalFailureLog
	case DisposalFailureFatal:
		c.DisposalFailurePolicy = DisposalFailureFatal
	default:
		return fmt.Errorf("unknown disposal failure policy %q", c.DisposalFailurePolicy)
	}
	if c.WorkerJoinTimeout.Duration < 0 {
		c.WorkerJoinTimeout.Duration = 0
	}
	if c.SlowDestructor.Duration < 0 {
		c.SlowDestructor.Duration = 0
	}
	if c.DeferredHighWater <= 0 {
		c.DeferredHighWater = DefaultDeferredHighWater
	}
	return nil
}
