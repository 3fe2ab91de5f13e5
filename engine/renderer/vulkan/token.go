package vulkan

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/vkctx/engine/core"
)

// Mode selects how a released token reaches the disposal worker.
type Mode uint8

const (
	// Persistent tokens wait in the deferred queue until enough frames have
	// passed for the GPU to be done with the resource.
	Persistent Mode = iota
	// Scoped tokens go to the disposal worker as soon as they are released.
	// Only valid when the GPU is known to be finished with the resource.
	Scoped
)

func (m Mode) String() string {
	switch m {
	case Persistent:
		return "persistent"
	case Scoped:
		return "scoped"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// TokenState moves strictly Live -> Queued -> Destroyed.
type TokenState uint32

const (
	TokenLive TokenState = iota
	TokenQueued
	TokenDestroyed
)

func (s TokenState) String() string {
	switch s {
	case TokenLive:
		return "live"
	case TokenQueued:
		return "queued"
	case TokenDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("TokenState(%d)", uint32(s))
	}
}

// Destructor releases one native handle. Kind names the resource type and is
// used for duplicate detection and logging.
type Destructor struct {
	Kind string
	Fn   func(c *Context) error
}

// Token is the single-fire destructor bound to one native handle. The owning
// wrapper keeps it and releases it exactly once.
type Token struct {
	id         uint64
	slot       uint32
	mode       Mode
	ownerKind  string
	destructor Destructor
	ctx        *Context
	state      atomic.Uint32
	// set when context teardown queued the token rather than its owner
	flushed atomic.Bool
	// duplicate-detection key, see registry
	key registryKey
}

func (t *Token) ID() uint64 {
	return t.id
}

func (t *Token) Mode() Mode {
	return t.mode
}

func (t *Token) Kind() string {
	return t.destructor.Kind
}

func (t *Token) State() TokenState {
	return TokenState(t.state.Load())
}

func (t *Token) String() string {
	return fmt.Sprintf("token#%d(%s %s, owner %s, %s)", t.id, t.mode, t.destructor.Kind, t.ownerKind, t.State())
}

// Release hands the token to the disposal path matching its mode.
func (t *Token) Release() {
	switch t.mode {
	case Scoped:
		t.ctx.DisposeScoped(t)
	default:
		t.ctx.DisposeDeferred(t)
	}
}

// markQueued performs Live -> Queued. It reports false if the token already
// left the Live state.
func (t *Token) markQueued() bool {
	return t.state.CompareAndSwap(uint32(TokenLive), uint32(TokenQueued))
}

// destroy performs Queued -> Destroyed and runs the destructor. Panics inside
// the destructor are returned as errors.
func (t *Token) destroy(c *Context) (err error) {
	if !t.state.CompareAndSwap(uint32(TokenQueued), uint32(TokenDestroyed)) {
		core.Invariant("destroy", fmt.Errorf("%w: %s", core.ErrDoubleDispose, t))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("destructor for %s panicked: %v", t, r)
		}
	}()
	return t.destructor.Fn(c)
}
