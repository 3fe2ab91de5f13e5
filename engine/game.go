package engine

import (
	"time"

	"github.com/spaghettifunk/vkctx/engine/core"
	"github.com/spaghettifunk/vkctx/engine/renderer/vulkan"
)

// Game is the workload the engine drives once per frame.
type Game struct {
	ApplicationConfig *core.AppConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnShutdown        Shutdown
}

type Initialize func(ctx *vulkan.Context) error
type Update func(frame uint64, deltaTime time.Duration) error
type Shutdown func() error
