package testbed

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkctx/engine"
	"github.com/spaghettifunk/vkctx/engine/core"
	"github.com/spaghettifunk/vkctx/engine/renderer/vulkan"
	"golang.org/x/sync/errgroup"
)

const (
	stagingBufferSize = 64 * 1024
	statsEveryFrames  = 120
)

// TestGame churns GPU resources every frame: worker goroutines create and
// release every wrapped resource kind while the frame loop runs a single use
// transfer.
type TestGame struct {
	*engine.Game
}

type gameState struct {
	ctx     *vulkan.Context
	pool    *vulkan.CommandPool
	workers int
}

func NewTestGame(app *core.AppConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State: &gameState{
				workers: app.Workers,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize(ctx *vulkan.Context) error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.State.(*gameState)
	state.ctx = ctx

	role := vulkan.QueueTransfer
	if !ctx.Gate().Has(role) {
		role = vulkan.QueueGraphics
	}
	pool, err := vulkan.NewCommandPool(ctx, role, true)
	if err != nil {
		return err
	}
	state.pool = pool
	return nil
}

func (g *TestGame) Update(frame uint64, deltaTime time.Duration) error {
	state := g.State.(*gameState)

	var eg errgroup.Group
	for i := 0; i < state.workers; i++ {
		eg.Go(func() error {
			return churn(state.ctx)
		})
	}

	cb, err := vulkan.AllocateAndBeginSingleUse(state.pool)
	if err != nil {
		_ = eg.Wait()
		return err
	}
	if err := cb.EndSingleUse(); err != nil {
		_ = eg.Wait()
		return err
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	if frame%statsEveryFrames == 0 {
		s := state.ctx.Stats()
		core.LogInfo("frame %d (%s): live=%d pending=%d destroyed=%d leaked=%d",
			frame, deltaTime, s.Live, s.PendingDeferred, s.Destroyed, s.Leaked)
	}
	return nil
}

// churn creates one of each wrapped resource and releases them again.
func churn(ctx *vulkan.Context) error {
	fence, err := vulkan.NewFence(ctx, true)
	if err != nil {
		return err
	}
	defer fence.Destroy()

	semaphore, err := vulkan.NewSemaphore(ctx)
	if err != nil {
		return err
	}
	defer semaphore.Destroy()

	buffer, err := vulkan.NewBuffer(ctx,
		stagingBufferSize,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return fmt.Errorf("staging buffer: %w", err)
	}
	buffer.Destroy()

	image, err := vulkan.NewImage(ctx, vulkan.ImageOptions{
		Width:      256,
		Height:     256,
		Format:     vk.FormatR8g8b8a8Unorm,
		Usage:      vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit),
		Tiling:     vk.ImageTilingOptimal,
		Properties: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		CreateView: true,
		ViewAspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	})
	if err != nil {
		return fmt.Errorf("sampled image: %w", err)
	}
	image.Destroy()
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if state.pool != nil {
		state.pool.Destroy()
	}
	return nil
}
