package registry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Member is one live connection from the registry's point of view. Send must
// not block; a failing member is skipped during fan-out.
type Member interface {
	ID() uuid.UUID
	Send(payload []byte) error
}

// GroupRegistry maps group names to sets of live connections. Groups are
// created lazily on first Join and removed when their last member leaves.
type GroupRegistry interface {
	Join(group string, m Member)
	Leave(group string, m Member)
	// Send delivers payload to every member present when the call begins and
	// returns the number of successful deliveries.
	Send(group string, payload []byte) int
}

type InMemoryRegistry struct {
	mu     sync.RWMutex
	groups map[string]map[uuid.UUID]Member
	logger *slog.Logger
}

// compile-time check to ensure InMemoryRegistry implements GroupRegistry.
var _ GroupRegistry = (*InMemoryRegistry)(nil)

func NewInMemoryRegistry(logger *slog.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		groups: make(map[string]map[uuid.UUID]Member),
		logger: logger.With(slog.String("component", "group_registry")),
	}
}

// Join adds m to the named group. Joining a group the member already belongs
// to is a no-op: membership is keyed by connection id.
func (r *InMemoryRegistry) Join(group string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		members = make(map[uuid.UUID]Member)
		r.groups[group] = members
	}
	members[m.ID()] = m
	r.logger.Debug("member joined group", "group", group, "connID", m.ID().String())
}

// Leave removes m from the named group. It never fails: leaving a group the
// member (or the group itself) is not part of is a no-op.
func (r *InMemoryRegistry) Leave(group string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, m.ID())

	// For memory hygiene, remove the group if it's now empty.
	if len(members) == 0 {
		delete(r.groups, group)
		r.logger.Debug("removed empty group", "group", group)
	}
	r.logger.Debug("member left group", "group", group, "connID", m.ID().String())
}

// Send fans payload out to a snapshot of the group's membership. The lock is
// released before any delivery so a slow or dead member never stalls the
// registry; individual failures are logged and skipped.
func (r *InMemoryRegistry) Send(group string, payload []byte) int {
	r.mu.RLock()
	snapshot := lo.Values(r.groups[group])
	r.mu.RUnlock()

	delivered := 0
	for _, m := range snapshot {
		if err := m.Send(payload); err != nil {
			r.logger.Warn("dropping delivery to unavailable member",
				slog.String("group", group),
				slog.String("connID", m.ID().String()),
				slog.Any("error", err),
			)
			continue
		}
		delivered++
	}

	r.logger.Debug("group fan-out complete", "group", group, "delivered", delivered, "members", len(snapshot))
	return delivered
}
