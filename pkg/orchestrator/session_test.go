package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/pkg/capability"
)

func newTestSessionManager(host *capability.MockHost) *SessionManager {
	return NewSessionManager(host, NewProber(host, nil), 0, keepalivePrompt, nil)
}

func chatFactory(host *capability.MockHost) func(ctx context.Context) (capability.Session, error) {
	return func(ctx context.Context) (capability.Session, error) {
		inst, err := host.Create(ctx, capability.PromptKind(capability.PurposeChat), capability.CreateOptions{})
		if err != nil {
			return nil, err
		}
		return inst.(capability.Session), nil
	}
}

func TestEnsureKeepaliveEstablishesIdleSession(t *testing.T) {
	host := capability.NewMockHost()
	m := newTestSessionManager(host)

	m.EnsureKeepalive(context.Background())
	assert.True(t, m.HasSession(capability.PurposeKeepalive))
	assert.Equal(t, 1, host.CreateCount(capability.TypePromptSession))

	// Idempotent while the session is live.
	m.EnsureKeepalive(context.Background())
	assert.Equal(t, 1, host.CreateCount(capability.TypePromptSession))
}

func TestEnsureKeepaliveSkipsWhenDownloadPending(t *testing.T) {
	host := capability.NewMockHost()
	host.AvailabilityByType[capability.TypePromptSession] = capability.NeedsDownload
	m := newTestSessionManager(host)

	// Keepalive never triggers a model download on its own.
	m.EnsureKeepalive(context.Background())
	assert.False(t, m.HasSession(capability.PurposeKeepalive))
	assert.Equal(t, 0, host.CreateCount(capability.TypePromptSession))
}

func TestAcquireExclusiveEvictsKeepalive(t *testing.T) {
	host := capability.NewMockHost()
	m := newTestSessionManager(host)
	m.EnsureKeepalive(context.Background())

	_, err := m.AcquireExclusive(context.Background(), capability.PurposeChat, false, chatFactory(host))
	require.NoError(t, err)

	assert.False(t, m.HasSession(capability.PurposeKeepalive))
	assert.True(t, m.HasSession(capability.PurposeChat))
	require.Len(t, host.DestroyedKinds(), 1)
	assert.Equal(t, capability.PurposeKeepalive, host.DestroyedKinds()[0].Purpose)
}

func TestAcquireExclusiveReplacesSamePurpose(t *testing.T) {
	host := capability.NewMockHost()
	m := newTestSessionManager(host)

	first, err := m.AcquireExclusive(context.Background(), capability.PurposeChat, false, chatFactory(host))
	require.NoError(t, err)
	second, err := m.AcquireExclusive(context.Background(), capability.PurposeChat, false, chatFactory(host))
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, first.(*capability.MockSession).Destroyed())
	assert.Same(t, second, m.Get(capability.PurposeChat))
}

func TestAcquireExclusiveRejectsKeepalivePurpose(t *testing.T) {
	host := capability.NewMockHost()
	m := newTestSessionManager(host)

	_, err := m.AcquireExclusive(context.Background(), capability.PurposeKeepalive, false, chatFactory(host))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestReleaseReestablishesKeepalive(t *testing.T) {
	host := capability.NewMockHost()
	m := newTestSessionManager(host)

	_, err := m.AcquireExclusive(context.Background(), capability.PurposeChat, false, chatFactory(host))
	require.NoError(t, err)

	m.Release(context.Background(), capability.PurposeChat)
	assert.False(t, m.HasSession(capability.PurposeChat))
	assert.True(t, m.HasSession(capability.PurposeKeepalive))
}

func TestReleaseSkipsKeepaliveWhileAnotherSessionLives(t *testing.T) {
	host := capability.NewMockHost()
	m := newTestSessionManager(host)

	_, err := m.AcquireExclusive(context.Background(), capability.PurposeChat, false, chatFactory(host))
	require.NoError(t, err)

	// Releasing an absent purpose must not disturb the live chat session.
	m.Release(context.Background(), capability.PurposeExplain)
	assert.True(t, m.HasSession(capability.PurposeChat))
	assert.False(t, m.HasSession(capability.PurposeKeepalive))
}

func TestAbortGenerationCancelsRegisteredHandle(t *testing.T) {
	host := capability.NewMockHost()
	m := newTestSessionManager(host)

	_, err := m.AcquireExclusive(context.Background(), capability.PurposeChat, false, chatFactory(host))
	require.NoError(t, err)

	genCtx, cancel := context.WithCancel(context.Background())
	m.BeginGeneration(capability.PurposeChat, cancel)
	m.AbortGeneration(capability.PurposeChat)
	assert.ErrorIs(t, genCtx.Err(), context.Canceled)

	// The session itself survives the abort.
	assert.True(t, m.HasSession(capability.PurposeChat))

	// A second abort with no registered handle is a no-op.
	m.AbortGeneration(capability.PurposeChat)
}

func TestDestroyAllDoesNotReestablishKeepalive(t *testing.T) {
	host := capability.NewMockHost()
	m := newTestSessionManager(host)
	m.EnsureKeepalive(context.Background())
	_, err := m.AcquireExclusive(context.Background(), capability.PurposeChat, false, chatFactory(host))
	require.NoError(t, err)

	m.DestroyAll()
	assert.False(t, m.HasSession(capability.PurposeChat))
	assert.False(t, m.HasSession(capability.PurposeKeepalive))
	assert.Equal(t, len(host.CreatedKinds()), len(host.DestroyedKinds()))
}

func TestAcquireExclusiveUnavailableWithoutGesture(t *testing.T) {
	host := capability.NewMockHost()
	host.AvailabilityByType[capability.TypePromptSession] = capability.NeedsDownload
	m := newTestSessionManager(host)

	_, err := m.AcquireExclusive(context.Background(), capability.PurposeExplain, false, chatFactory(host))
	require.ErrorIs(t, err, ErrNeedsGesture)

	_, err = m.AcquireExclusive(context.Background(), capability.PurposeExplain, true, chatFactory(host))
	require.NoError(t, err)
}
