package socket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id  string
	err error

	mu     sync.Mutex
	got    []Event
	closed bool
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Deliver(evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, evt)
	return nil
}

func (m *fakeMember) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *fakeMember) received() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.got...)
}

func (m *fakeMember) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeRelay struct {
	mu        sync.Mutex
	published []Event
	err       error
	incoming  chan Event
}

func (r *fakeRelay) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, evt)
	return nil
}

func (r *fakeRelay) Subscribe(ctx context.Context, handle func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-r.incoming:
			handle(evt)
		}
	}
}

func change(doc, user, text string) Event {
	return Event{DocumentID: doc, UserID: user, Content: json.RawMessage(`{"text":"` + text + `"}`)}
}

func TestRegistryJoinLeave(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	r.Join("doc", a)
	r.Join("doc", a)
	r.Join("doc", b)
	assert.Len(t, r.Members("doc"), 2)

	r.Leave("doc", a)
	assert.Len(t, r.Members("doc"), 1)

	r.Leave("doc", a)
	r.Leave("other", b)
	assert.Len(t, r.Members("doc"), 1)

	r.Leave("doc", b)
	assert.Empty(t, r.Members("doc"))

	r.mu.Lock()
	_, exists := r.groups["doc"]
	r.mu.Unlock()
	assert.False(t, exists, "empty groups are removed")
}

func TestRegistryBroadcastExcludesSender(t *testing.T) {
	r := NewRegistry(nil)
	sender := &fakeMember{id: "sender"}
	other := &fakeMember{id: "other"}
	elsewhere := &fakeMember{id: "elsewhere"}
	r.Join("doc", sender)
	r.Join("doc", other)
	r.Join("doc-2", elsewhere)

	n := r.Broadcast(context.Background(), "doc", change("doc", "u1", "b"), sender)

	assert.Equal(t, 1, n)
	assert.Empty(t, sender.received())
	assert.Empty(t, elsewhere.received())
	require.Len(t, other.received(), 1)
	assert.JSONEq(t, `{"text":"b"}`, string(other.received()[0].Content))
}

func TestRegistryBroadcastIsolatesFailures(t *testing.T) {
	r := NewRegistry(nil)
	broken := &fakeMember{id: "broken", err: ErrSendBufferFull}
	healthy := &fakeMember{id: "healthy"}
	r.Join("doc", broken)
	r.Join("doc", healthy)

	n := r.Broadcast(context.Background(), "doc", change("doc", "u1", "x"), nil)

	assert.Equal(t, 1, n)
	assert.Len(t, healthy.received(), 1)
}

func TestRegistryBroadcastSkipsDepartedMembers(t *testing.T) {
	r := NewRegistry(nil)
	gone := &fakeMember{id: "gone"}
	stays := &fakeMember{id: "stays"}
	r.Join("doc", gone)
	r.Join("doc", stays)
	r.Leave("doc", gone)

	r.Broadcast(context.Background(), "doc", change("doc", "u1", "x"), nil)

	assert.Empty(t, gone.received())
	assert.Len(t, stays.received(), 1)
}

func TestRegistryBroadcastToEmptyGroup(t *testing.T) {
	r := NewRegistry(nil)
	assert.Zero(t, r.Broadcast(context.Background(), "nobody", change("nobody", "u1", "x"), nil))
}

func TestRegistryPublishesToRelay(t *testing.T) {
	relay := &fakeRelay{}
	r := NewRegistry(relay)

	r.Broadcast(context.Background(), "doc", change("doc", "u1", "x"), nil)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.Len(t, relay.published, 1)
	assert.Equal(t, "doc", relay.published[0].DocumentID)
}

func TestRegistryRelayFailureDoesNotAffectLocalDelivery(t *testing.T) {
	relay := &fakeRelay{err: errors.New("redis down")}
	r := NewRegistry(relay)
	m := &fakeMember{id: "m"}
	r.Join("doc", m)

	n := r.Broadcast(context.Background(), "doc", change("doc", "u1", "x"), nil)

	assert.Equal(t, 1, n)
}

func TestRegistryRunDeliversRelayedEvents(t *testing.T) {
	relay := &fakeRelay{incoming: make(chan Event)}
	r := NewRegistry(relay)
	m := &fakeMember{id: "m"}
	r.Join("doc", m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	relay.incoming <- change("doc", "remote-user", "remote")
	require.Eventually(t, func() bool { return len(m.received()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRegistryRunWithoutRelayWaitsForCancel(t *testing.T) {
	r := NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, r.Run(ctx))
}

func TestRegistryCloseDocument(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	r.Join("doc", a)
	r.Join("doc", b)

	assert.Equal(t, 2, r.CloseDocument("doc"))
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	// Members leave through their own disconnect path.
	assert.Len(t, r.Members("doc"), 2)
}
