package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/logging"
)

// managedSession pairs a live session with the cancellation handle of its
// in-flight generation, if any.
type managedSession struct {
	session capability.Session
	abort   context.CancelFunc
}

// SessionManager owns the lifecycle of stateful prompt sessions: the one-shot
// explain session, the long-lived chat session, and the idle keepalive
// session that only exists to keep the model warm.
//
// The host cannot run unlimited concurrent heavy sessions, so keepalive and
// exclusive sessions are strictly mutually exclusive: acquiring an exclusive
// session first evicts keepalive, and keepalive is lazily re-established when
// an exclusive session is released. Mutual exclusion is enforced by
// destroy-then-create sequencing, not by holding a lock across host calls.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[capability.Purpose]*managedSession

	host            capability.Host
	prober          *Prober
	grace           time.Duration
	keepalivePrompt string
	log             *logging.Logger
}

// NewSessionManager creates a session manager. grace is how long to wait
// after destroying keepalive before creating the next session, giving the
// host time to release model resources.
func NewSessionManager(host capability.Host, prober *Prober, grace time.Duration, keepalivePrompt string, log *logging.Logger) *SessionManager {
	if log == nil {
		log = logging.Discard("sessions")
	}
	return &SessionManager{
		sessions:        make(map[capability.Purpose]*managedSession),
		host:            host,
		prober:          prober,
		grace:           grace,
		keepalivePrompt: keepalivePrompt,
		log:             log,
	}
}

// AcquireExclusive destroys any existing session of the same purpose, evicts
// the keepalive session if one exists, waits the grace interval for the host
// to release resources, then builds the new session via factory. A factory
// failure leaves the purpose absent.
func (m *SessionManager) AcquireExclusive(
	ctx context.Context,
	purpose capability.Purpose,
	userGesture bool,
	factory func(ctx context.Context) (capability.Session, error),
) (capability.Session, error) {
	if purpose == capability.PurposeKeepalive {
		// Keepalive is never acquired exclusively; it is managed by
		// EnsureKeepalive.
		return nil, ErrUnavailable
	}

	if err := m.prober.Usable(ctx, capability.PromptKind(purpose), userGesture); err != nil {
		return nil, err
	}

	m.destroy(purpose)
	evicted := m.destroy(capability.PurposeKeepalive)
	if evicted {
		m.log.Debugf("evicted keepalive for %s session", purpose)
		if err := m.wait(ctx); err != nil {
			return nil, err
		}
	}

	session, err := factory(ctx)
	if err != nil {
		m.log.Warnf("creating %s session failed: %v", purpose, err)
		if errors.Is(err, capability.ErrUnsupportedLanguage) {
			return nil, err
		}
		return nil, ErrUnavailable
	}

	m.mu.Lock()
	m.sessions[purpose] = &managedSession{session: session}
	m.mu.Unlock()
	m.log.Infof("%s session active", purpose)
	return session, nil
}

// Release aborts any in-flight generation, destroys the session, and
// re-establishes keepalive iff no exclusive session still holds the
// resource. It is idempotent: releasing an absent purpose only runs the
// keepalive post-condition.
func (m *SessionManager) Release(ctx context.Context, purpose capability.Purpose) {
	m.AbortGeneration(purpose)
	if m.destroy(purpose) {
		m.log.Infof("%s session released", purpose)
	}
	m.EnsureKeepalive(ctx)
}

// EnsureKeepalive creates the idle keepalive session when no session of any
// purpose currently exists and the prompting capability is Available (a
// pending download never blocks on keepalive's account). Failures are
// logged and swallowed: keepalive is a best-effort warm-start optimization,
// never a correctness requirement.
func (m *SessionManager) EnsureKeepalive(ctx context.Context) {
	m.mu.Lock()
	if len(m.sessions) != 0 {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	kind := capability.PromptKind(capability.PurposeKeepalive)
	if m.prober.Probe(ctx, kind) != capability.Available {
		return
	}

	inst, err := m.host.Create(ctx, kind, capability.CreateOptions{
		SystemPrompt: m.keepalivePrompt,
	})
	if err != nil {
		m.log.Warnf("keepalive creation failed: %v", err)
		return
	}
	session, ok := inst.(capability.Session)
	if !ok {
		m.log.Warnf("host returned non-session instance for keepalive")
		inst.Destroy()
		return
	}

	m.mu.Lock()
	if len(m.sessions) != 0 {
		// An exclusive session appeared while we were creating; it wins.
		m.mu.Unlock()
		session.Destroy()
		return
	}
	m.sessions[capability.PurposeKeepalive] = &managedSession{session: session}
	m.mu.Unlock()
	m.log.Debugf("keepalive session established")
}

// HasSession reports whether a live session exists for the purpose.
func (m *SessionManager) HasSession(purpose capability.Purpose) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[purpose] != nil
}

// Get returns the live session for the purpose, or nil.
func (m *SessionManager) Get(purpose capability.Purpose) capability.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms := m.sessions[purpose]; ms != nil {
		return ms.session
	}
	return nil
}

// BeginGeneration registers the cancellation handle for an in-flight
// generation on the purpose's session, replacing any previous handle.
func (m *SessionManager) BeginGeneration(purpose capability.Purpose, abort context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms := m.sessions[purpose]; ms != nil {
		ms.abort = abort
	}
}

// AbortGeneration cancels the purpose's in-flight generation, if any. Safe
// to call when nothing is generating.
func (m *SessionManager) AbortGeneration(purpose capability.Purpose) {
	m.mu.Lock()
	ms := m.sessions[purpose]
	var abort context.CancelFunc
	if ms != nil && ms.abort != nil {
		abort = ms.abort
		ms.abort = nil
	}
	m.mu.Unlock()
	if abort != nil {
		abort()
	}
}

// DestroyAll aborts and destroys every session without re-establishing
// keepalive. Used for full teardown on page unload.
func (m *SessionManager) DestroyAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[capability.Purpose]*managedSession)
	m.mu.Unlock()

	for purpose, ms := range sessions {
		if ms.abort != nil {
			ms.abort()
		}
		ms.session.Destroy()
		m.log.Debugf("destroyed %s session", purpose)
	}
}

// destroy removes and destroys the purpose's session, reporting whether one
// existed.
func (m *SessionManager) destroy(purpose capability.Purpose) bool {
	m.mu.Lock()
	ms := m.sessions[purpose]
	delete(m.sessions, purpose)
	m.mu.Unlock()

	if ms == nil {
		return false
	}
	if ms.abort != nil {
		ms.abort()
	}
	ms.session.Destroy()
	return true
}

// wait sleeps for the configured grace interval, honoring cancellation. The
// fixed delay is a heuristic stand-in for an explicit release-confirmation
// signal the host does not expose.
func (m *SessionManager) wait(ctx context.Context) error {
	if m.grace <= 0 {
		return nil
	}
	timer := time.NewTimer(m.grace)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
