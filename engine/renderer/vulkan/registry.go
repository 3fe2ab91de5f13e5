package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"weak"

	"github.com/spaghettifunk/vkctx/engine/core"
)

// registryKey identifies an owner and resource kind. owner holds a
// weak.Pointer so the registry never keeps an owner alive.
type registryKey struct {
	owner any
	kind  string
}

// registry tracks every token that has not been destroyed yet. Live tokens
// are additionally indexed by owner so one owner cannot register the same
// kind of resource twice.
type registry struct {
	mu     sync.Mutex
	nextID uint64
	slots  *core.IdentifierPool[Token]
	live   map[registryKey]*Token
}

func newRegistry() *registry {
	return &registry{
		slots: core.NewIdentifierPool[Token](64),
		live:  make(map[registryKey]*Token),
	}
}

func (r *registry) add(t *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.live[t.key]; ok {
		core.Invariant("register", fmt.Errorf("%w: %s", core.ErrDuplicateRegistration, existing))
	}
	r.nextID++
	t.id = r.nextID
	t.slot = r.slots.Acquire(t)
	r.live[t.key] = t
}

// leaveLive drops the owner index entry once the token is queued, freeing the
// owner to register a replacement of the same kind.
func (r *registry) leaveLive(t *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.live[t.key] == t {
		delete(r.live, t.key)
	}
}

func (r *registry) remove(t *Token) {
	if err := r.slots.Release(t.slot); err != nil {
		core.LogWarn("registry: %s: %s", t, err)
	}
}

// tokens returns every token not yet destroyed, in slot order.
func (r *registry) tokens() []*Token {
	return r.slots.Snapshot()
}

func (r *registry) len() int {
	return r.slots.Len()
}

// Register binds destructor d to owner and returns the token the owner uses
// to release it. The owner is only observed weakly.
//
// It panics with a *core.InvariantError when owner or d.Fn is nil, when owner
// already holds a live token of the same kind, or when c is shutting down.
func Register[T any](c *Context, owner *T, d Destructor, mode Mode) *Token {
	if owner == nil {
		core.Invariant("register", core.ErrNilOwner)
	}
	if d.Fn == nil {
		core.Invariant("register", core.ErrNilDestructor)
	}

	t := &Token{
		mode:       mode,
		ownerKind:  fmt.Sprintf("%T", owner),
		destructor: d,
		ctx:        c,
		key:        registryKey{owner: weak.Make(owner), kind: d.Kind},
	}
	c.register(t)

	if c.cfg.ReclaimUnreachable {
		// The cleanup only holds the token; it must never reference owner.
		runtime.AddCleanup(owner, reclaimUnreachable, t)
	}
	return t
}

// reclaimUnreachable runs after an owner was collected without releasing its
// token.
func reclaimUnreachable(t *Token) {
	if t.State() != TokenLive {
		return
	}
	core.LogWarn("%s: owner became unreachable without releasing it, deferring disposal", t)
	t.ctx.reclaim(t)
}
