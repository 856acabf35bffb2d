package socket

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"

	"naskahlive/pkg/logger"
	"naskahlive/pkg/metrics"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Member is anything that can sit in a document group.
type Member interface {
	ID() string
	// Deliver queues evt without blocking.
	Deliver(evt Event) error
	// Close asks the member to disconnect. It must leave the group through
	// its own disconnect path.
	Close()
}

// Relay carries events between server instances. Publish is called for every
// local broadcast; Subscribe blocks until ctx is done.
type Relay interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(ctx context.Context, handle func(Event)) error
}

// Registry tracks which members are joined to which document.
type Registry struct {
	mu     sync.Mutex
	groups map[string]map[string]Member
	relay  Relay
}

// NewRegistry creates a registry. relay may be nil for a single instance.
func NewRegistry(relay Relay) *Registry {
	return &Registry{
		groups: make(map[string]map[string]Member),
		relay:  relay,
	}
}

func (r *Registry) Join(docID string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[docID]
	if !ok {
		group = make(map[string]Member)
		r.groups[docID] = group
	}
	if _, joined := group[m.ID()]; joined {
		return
	}
	group[m.ID()] = m
	metrics.SessionsActive.Inc()
	logger.Sugar.Debugf("Session %s joined document %s (%d members)", m.ID(), docID, len(group))
}

// Leave is a no-op for members that never joined.
func (r *Registry) Leave(docID string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[docID]
	if !ok {
		return
	}
	if _, joined := group[m.ID()]; !joined {
		return
	}
	delete(group, m.ID())
	metrics.SessionsActive.Dec()
	if len(group) == 0 {
		delete(r.groups, docID)
		logger.Sugar.Debugf("Closed empty group for document %s", docID)
	}
}

// Members returns a snapshot of the group.
func (r *Registry) Members(docID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.groups[docID])
}

// Broadcast delivers evt to every local member of docID except exclude and
// publishes it to the relay. It returns the number of local deliveries.
func (r *Registry) Broadcast(ctx context.Context, docID string, evt Event, exclude Member) int {
	excludeID := ""
	if exclude != nil {
		excludeID = exclude.ID()
	}
	delivered := r.deliver(docID, evt, excludeID)

	if r.relay != nil {
		if err := r.relay.Publish(ctx, evt); err != nil {
			logger.Sugar.Warnf("Failed to publish change for document %s: %v", docID, err)
		} else {
			metrics.RelayEvents.WithLabelValues("out").Inc()
		}
	}
	return delivered
}

func (r *Registry) deliver(docID string, evt Event, excludeID string) int {
	recipients := lo.Filter(r.Members(docID), func(m Member, _ int) bool {
		return m.ID() != excludeID
	})

	delivered := 0
	for _, m := range recipients {
		if err := m.Deliver(evt); err != nil {
			metrics.DeliveryFailures.Inc()
			logger.Sugar.Warnf("Failed to deliver change for document %s to session %s: %v", docID, m.ID(), err)
			continue
		}
		delivered++
	}
	return delivered
}

// CloseDocument asks every member of docID to disconnect and returns how many
// were asked.
func (r *Registry) CloseDocument(docID string) int {
	members := r.Members(docID)
	for _, m := range members {
		m.Close()
	}
	if len(members) > 0 {
		logger.Sugar.Infof("Disconnecting %d sessions from deleted document %s", len(members), docID)
	}
	return len(members)
}

// Run feeds relayed events from other instances to local members until ctx
// is done. Without a relay it just waits.
func (r *Registry) Run(ctx context.Context) error {
	if r.relay == nil {
		<-ctx.Done()
		return nil
	}
	return r.relay.Subscribe(ctx, func(evt Event) {
		metrics.RelayEvents.WithLabelValues("in").Inc()
		r.deliver(evt.DocumentID, evt, "")
	})
}
