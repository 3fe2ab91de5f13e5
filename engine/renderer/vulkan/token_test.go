package vulkan

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/vkctx/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_StateTransitions(t *testing.T) {
	var n atomic.Int32
	tok := &Token{destructor: Destructor{Kind: "res", Fn: func(*Context) error {
		n.Add(1)
		return nil
	}}}
	assert.Equal(t, TokenLive, tok.State())

	require.True(t, tok.markQueued())
	assert.False(t, tok.markQueued())
	assert.Equal(t, TokenQueued, tok.State())

	require.NoError(t, tok.destroy(nil))
	assert.Equal(t, TokenDestroyed, tok.State())
	assert.Equal(t, int32(1), n.Load())

	ie := invariantError(func() { _ = tok.destroy(nil) })
	require.NotNil(t, ie)
	assert.ErrorIs(t, ie, core.ErrDoubleDispose)
	assert.Equal(t, int32(1), n.Load())
}

func TestToken_DestroyRecoversPanics(t *testing.T) {
	tok := &Token{destructor: Destructor{Kind: "res", Fn: func(*Context) error {
		panic(fmt.Sprintf("bad handle %d", 7))
	}}}
	require.True(t, tok.markQueued())

	err := tok.destroy(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad handle 7")
	assert.Equal(t, TokenDestroyed, tok.State())
}

func TestToken_Strings(t *testing.T) {
	assert.Equal(t, "persistent", Persistent.String())
	assert.Equal(t, "scoped", Scoped.String())
	assert.Equal(t, "live", TokenLive.String())
	assert.Equal(t, "queued", TokenQueued.String())
	assert.Equal(t, "destroyed", TokenDestroyed.String())

	tok := &Token{id: 3, mode: Scoped, ownerKind: "*vulkan.Fence", destructor: Destructor{Kind: "fence"}}
	assert.Equal(t, "token#3(scoped fence, owner *vulkan.Fence, live)", tok.String())
}
