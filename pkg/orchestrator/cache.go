package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/logging"
)

// InstanceCache memoizes expensive-to-construct capability instances keyed by
// their configuration. At most one live instance exists per key; a repeated
// request with identical configuration is a pure cache hit with no
// construction side effects.
type InstanceCache struct {
	mu        sync.Mutex
	instances map[string]capability.Instance
	prober    *Prober
	log       *logging.Logger
}

// NewInstanceCache creates an empty cache using the given prober for
// availability checks.
func NewInstanceCache(prober *Prober, log *logging.Logger) *InstanceCache {
	if log == nil {
		log = logging.Discard("cache")
	}
	return &InstanceCache{
		instances: make(map[string]capability.Instance),
		prober:    prober,
		log:       log,
	}
}

// GetOrCreate returns the cached instance for kind's configuration, or probes
// availability and constructs one via ctor. Unavailability (including a
// needed download without a user gesture) is reported through the sentinel
// errors, never a panic: it is an expected outcome.
//
// A cache hit skips the availability probe entirely; the instance already
// exists, so there is nothing to download.
func (c *InstanceCache) GetOrCreate(
	ctx context.Context,
	kind capability.Kind,
	userGesture bool,
	ctor func(ctx context.Context) (capability.Instance, error),
) (capability.Instance, error) {
	key := kind.CacheKey()

	c.mu.Lock()
	if inst, ok := c.instances[key]; ok {
		c.mu.Unlock()
		return inst, nil
	}
	c.mu.Unlock()

	if err := c.prober.Usable(ctx, kind, userGesture); err != nil {
		return nil, err
	}

	inst, err := ctor(ctx)
	if err != nil {
		c.log.Warnf("constructing %s failed: %v", key, err)
		if errors.Is(err, capability.ErrUnsupportedLanguage) {
			// A rejected language combination is a settings problem,
			// not device unavailability; keep them distinguishable.
			return nil, err
		}
		return nil, ErrUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.instances[key]; ok {
		// A concurrent call won the race; keep the first instance so the
		// at-most-one-per-key invariant holds.
		inst.Destroy()
		return existing, nil
	}
	c.instances[key] = inst
	c.log.Debugf("cached new instance for %s", key)
	return inst, nil
}

// DestroyAll destroys and evicts every cached instance matching the
// predicate. A nil predicate matches everything. Used for full teardown on
// page unload and for capability-scoped teardown.
func (c *InstanceCache) DestroyAll(predicate func(kind capability.Kind) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, inst := range c.instances {
		if predicate != nil && !predicate(inst.Kind()) {
			continue
		}
		inst.Destroy()
		delete(c.instances, key)
		c.log.Debugf("destroyed cached instance %s", key)
	}
}

// Len returns the number of live cached instances.
func (c *InstanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}
