package blocks

import (
	"maps"
	"slices"

	"github.com/nerrad567/blox-core/internal/cbox"
)

// balancerCapacity is the total share handed out per pass.
const balancerCapacity = 100

// BalancerBlock divides a fixed capacity between the clients that name it.
// Clients are discovered afresh on every update, so deleted clients drop
// out without unregistering.
//
// Fields: 1 clients (repeated message, live) of {1 id, 2 requested,
// 3 granted}. It has no persisted settings.
type BalancerBlock struct {
	objects *cbox.Container
	clients map[cbox.ObjectID]balancerGrant
	caps    cbox.Capabilities
}

type balancerGrant struct {
	requested uint8
	granted   uint8
}

// NewBalancer returns a balancer with no clients.
func NewBalancer(objects *cbox.Container) cbox.Object {
	b := &BalancerBlock{objects: objects, clients: make(map[cbox.ObjectID]balancerGrant)}
	b.caps = cbox.Capabilities{
		cbox.InterfaceID(TypeBalancer): cbox.Self(b),
		IfaceBalancer:                  func() any { return Balancer(b) },
	}
	return b
}

// TypeID returns TypeBalancer.
func (b *BalancerBlock) TypeID() cbox.TypeID { return TypeBalancer }

// StreamFrom validates and discards the input.
func (b *BalancerBlock) StreamFrom(in *cbox.DataIn) error {
	_, err := readSettings(in)
	return err
}

// StreamTo writes the clients of the last pass in ID order.
func (b *BalancerBlock) StreamTo(out *cbox.DataOut) error {
	var m message
	for _, id := range slices.Sorted(maps.Keys(b.clients)) {
		c := b.clients[id]
		entry := message(nil).
			putUint(1, uint64(id)).
			putUint(2, uint64(c.requested)).
			putUint(3, uint64(c.granted))
		m = m.putBytes(1, entry)
	}
	return m.writeTo(out)
}

// StreamPersistedTo writes nothing; clients are rediscovered every pass.
func (b *BalancerBlock) StreamPersistedTo(*cbox.DataOut) error { return nil }

// Update collects the requests of every client pointing at this balancer
// and grants them proportionally when the total exceeds capacity.
func (b *BalancerBlock) Update(now cbox.Tick) cbox.Tick {
	clear(b.clients)
	if b.objects == nil {
		return now + balancerPeriod
	}

	type pending struct {
		id     cbox.ObjectID
		client BalancerClient
	}
	var found []pending
	total := 0
	for entry := range b.objects.All() {
		client, ok := entry.Object().Implements(IfaceBalancerClient).(BalancerClient)
		if !ok || !b.isSelf(client.BalancedBy()) {
			continue
		}
		found = append(found, pending{id: entry.ID(), client: client})
		total += int(client.Requested())
	}

	for _, p := range found {
		requested := p.client.Requested()
		granted := requested
		if total > balancerCapacity {
			granted = uint8(int(requested) * balancerCapacity / total)
		}
		p.client.Grant(granted)
		b.clients[p.id] = balancerGrant{requested: requested, granted: granted}
	}
	return now + balancerPeriod
}

func (b *BalancerBlock) isSelf(id cbox.ObjectID) bool {
	if id == 0 {
		return false
	}
	obj, ok := b.objects.Fetch(id)
	return ok && obj == cbox.Object(b)
}

// Implements exposes Balancer.
func (b *BalancerBlock) Implements(iface cbox.InterfaceID) any { return b.caps.Lookup(iface) }

// Granted returns the share given to client in the last pass.
func (b *BalancerBlock) Granted(client cbox.ObjectID) (uint8, bool) {
	c, ok := b.clients[client]
	return c.granted, ok
}
