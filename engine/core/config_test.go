package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "vkctx", cfg.App.Name)
	assert.Equal(t, uint32(2), cfg.Context.MaxFramesInFlight)
	assert.Equal(t, DisposalFailureLog, cfg.Context.DisposalFailurePolicy)
	assert.Zero(t, cfg.Context.WorkerJoinTimeout.Duration)
	assert.Equal(t, 50*time.Millisecond, cfg.Context.SlowDestructor.Duration)
	assert.Equal(t, DefaultDeferredHighWater, cfg.Context.DeferredHighWater)
	assert.True(t, cfg.Context.ReclaimUnreachable)
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
[log]
level = "debug"

[app]
name = "churn"
frames = 10
workers = 2
watch_config = true

[context]
max_frames_in_flight = 3
disposal_failure_policy = "FATAL"
worker_join_timeout = "2s"
slow_destructor = "10ms"
deferred_high_water = 128
reclaim_unreachable = false
`)
	cfg := DefaultConfig()
	require.NoError(t, ParseConfig(data, &cfg))

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "churn", cfg.App.Name)
	assert.Equal(t, uint64(10), cfg.App.Frames)
	assert.Equal(t, 2, cfg.App.Workers)
	assert.True(t, cfg.App.WatchConfig)
	// Untouched keys keep their defaults.
	assert.Equal(t, uint32(60), cfg.App.TargetFrameRate)

	assert.Equal(t, uint32(3), cfg.Context.MaxFramesInFlight)
	assert.Equal(t, DisposalFailureFatal, cfg.Context.DisposalFailurePolicy)
	assert.Equal(t, 2*time.Second, cfg.Context.WorkerJoinTimeout.Duration)
	assert.Equal(t, 10*time.Millisecond, cfg.Context.SlowDestructor.Duration)
	assert.Equal(t, 128, cfg.Context.DeferredHighWater)
	assert.False(t, cfg.Context.ReclaimUnreachable)
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed toml", "[context\nmax_frames_in_flight = 2"},
		{"bad duration", "[context]\nslow_destructor = \"soon\""},
		{"unknown policy", "[context]\ndisposal_failure_policy = \"retry\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			assert.Error(t, ParseConfig([]byte(tt.data), &cfg))
		})
	}
}

func TestContextConfig_Normalize(t *testing.T) {
	tests := []struct {
		name  string
		in    ContextConfig
		check func(t *testing.T, c ContextConfig)
	}{
		{
			name: "frames in flight clamped up",
			in:   ContextConfig{MaxFramesInFlight: 0},
			check: func(t *testing.T, c ContextConfig) {
				assert.Equal(t, uint32(1), c.MaxFramesInFlight)
			},
		},
		{
			name: "frames in flight clamped down",
			in:   ContextConfig{MaxFramesInFlight: 99},
			check: func(t *testing.T, c ContextConfig) {
				assert.Equal(t, MaxFramesInFlightLimit, c.MaxFramesInFlight)
			},
		},
		{
			name: "empty policy means log",
			in:   ContextConfig{MaxFramesInFlight: 2},
			check: func(t *testing.T, c ContextConfig) {
				assert.Equal(t, DisposalFailureLog, c.DisposalFailurePolicy)
			},
		},
		{
			name: "negative durations become zero",
			in: ContextConfig{
				WorkerJoinTimeout: Duration{-time.Second},
				SlowDestructor:    Duration{-time.Second},
			},
			check: func(t *testing.T, c ContextConfig) {
				assert.Zero(t, c.WorkerJoinTimeout.Duration)
				assert.Zero(t, c.SlowDestructor.Duration)
			},
		},
		{
			name: "high water defaults",
			in:   ContextConfig{DeferredHighWater: -5},
			check: func(t *testing.T, c ContextConfig) {
				assert.Equal(t, DefaultDeferredHighWater, c.DeferredHighWater)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.in
			require.NoError(t, c.Normalize())
			tt.check(t, c)
		})
	}
}

func TestConfig_NormalizeApp(t *testing.T) {
	cfg := Config{App: AppConfig{TargetFrameRate: 5000, Workers: 1000}}
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "vkctx", cfg.App.Name)
	assert.Equal(t, uint32(1000), cfg.App.TargetFrameRate)
	assert.Equal(t, 64, cfg.App.Workers)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vkctx.toml")
	require.NoError(t, os.WriteFile(path, []byte("[context]\nmax_frames_in_flight = 4\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), cfg.Context.MaxFramesInFlight)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("later")))
}
