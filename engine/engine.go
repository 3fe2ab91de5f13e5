package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/vkctx/engine/core"
	"github.com/spaghettifunk/vkctx/engine/platform"
	"github.com/spaghettifunk/vkctx/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released the GPU context and the platform
	EngineStageShutdown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       core.Config
	configPath   string
	platform     *platform.Platform
	context      *vulkan.Context
	watcher      *core.ConfigWatcher
	clock        *core.Clock
	frame        uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an engine for g. configPath is only used to watch for changes
// and may be empty.
func New(g *Game, cfg core.Config, configPath string) (*Engine, error) {
	if g == nil || g.FnUpdate == nil {
		return nil, fmt.Errorf("a game with an update function is required")
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = &cfg.App
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		configPath:   configPath,
		platform:     platform.New(),
		clock:        core.NewClock(),
		stop:         make(chan struct{}),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	app := e.config.App

	if err := e.platform.Startup(app.Name, app.WindowWidth, app.WindowHeight); err != nil {
		return err
	}

	bootstrap := vulkan.BootstrapConfig{
		ApplicationName:    app.Name,
		Validation:         app.Validation,
		InstanceExtensions: e.platform.RequiredExtensionNames(),
	}
	if e.platform.Window != nil {
		bootstrap.CreateSurface = e.platform.CreateSurface
	}
	handles, err := vulkan.Bootstrap(bootstrap)
	if err != nil {
		e.platform.Shutdown()
		return err
	}

	ctx, err := vulkan.NewContext(handles, e.config.Context)
	if err != nil {
		e.platform.Shutdown()
		return err
	}
	e.context = ctx

	if app.WatchConfig && e.configPath != "" {
		w, err := core.WatchConfig(e.configPath, e.onConfigChange)
		if err != nil {
			core.LogWarn("Config %s will not be reloaded: %s", e.configPath, err)
		} else {
			e.watcher = w
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(ctx); err != nil {
			e.teardown()
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) onConfigChange(cfg core.Config) {
	core.LogInfo("Config %s changed, applying log level and disposal settings", e.configPath)
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("Ignoring log level %q: %s", cfg.Log.Level, err)
	}
	e.context.ApplyConfig(cfg.Context)
}

// Run drives frames until Shutdown is called, the configured frame count is
// reached or the game fails. The GPU context is torn down before returning.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine is not initialized")
	}
	e.currentStage = EngineStageRunning
	defer e.teardown()

	app := e.config.App
	ticker := time.NewTicker(time.Second / time.Duration(app.TargetFrameRate))
	defer ticker.Stop()

	e.clock.Start()
	var lastTime time.Duration
	for app.Frames == 0 || e.frame < app.Frames {
		select {
		case <-e.stop:
			return nil
		case <-ticker.C:
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - lastTime
		lastTime = currentTime

		if err := e.gameInstance.FnUpdate(e.frame, delta); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			return err
		}
		e.context.Tick()
		e.frame++
	}
	return nil
}

// Shutdown asks Run to stop after the current frame. It is safe to call from
// any goroutine.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
}

func (e *Engine) Context() *vulkan.Context {
	return e.context
}

func (e *Engine) Frame() uint64 {
	return e.frame
}

func (e *Engine) teardown() {
	e.currentStage = EngineStageShuttingDown
	e.clock.Stop()

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("Game shutdown failed: %s", err)
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("Config watcher: %s", err)
		}
	}
	if e.context != nil {
		e.context.Close()
	}
	e.platform.Shutdown()
	e.currentStage = EngineStageShutdown
}
