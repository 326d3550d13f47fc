package handlers

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// MemoryBus is the in-process broadcast transport backing testing and
// simulation. Every attached device gets a buffered inbox; sends are
// synchronous enqueues, so a single-threaded simulation can drive many
// nodes without real I/O.
type MemoryBus struct {
	mu     sync.RWMutex
	inboxes map[identifiers.DeviceId]chan busMessage
}

type busMessage struct {
	from    identifiers.DeviceId
	payload []byte
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{inboxes: make(map[identifiers.DeviceId]chan busMessage)}
}

// Attach registers a device and returns its network handler.
func (b *MemoryBus) Attach(device identifiers.DeviceId) *MemoryNetwork {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inboxes[device]; !ok {
		b.inboxes[device] = make(chan busMessage, 1024)
	}
	return &MemoryNetwork{bus: b, self: device}
}

func (b *MemoryBus) deliver(from, to identifiers.DeviceId, payload []byte) error {
	b.mu.RLock()
	inbox, ok := b.inboxes[to]
	b.mu.RUnlock()
	if !ok {
		return aerr.Network("peer %s not attached", to)
	}
	select {
	case inbox <- busMessage{from: from, payload: append([]byte(nil), payload...)}:
		return nil
	default:
		return aerr.Network("inbox full for peer %s", to)
	}
}

func (b *MemoryBus) peers(except identifiers.DeviceId) []identifiers.DeviceId {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []identifiers.DeviceId
	for d := range b.inboxes {
		if d != except {
			out = append(out, d)
		}
	}
	return out
}

// MemoryNetwork is one device's view of the bus.
type MemoryNetwork struct {
	bus  *MemoryBus
	self identifiers.DeviceId
}

func (n *MemoryNetwork) SendToPeer(ctx context.Context, peer identifiers.DeviceId, payload []byte) error {
	return n.bus.deliver(n.self, peer, payload)
}

func (n *MemoryNetwork) Broadcast(ctx context.Context, payload []byte) error {
	for _, peer := range n.bus.peers(n.self) {
		if err := n.bus.deliver(n.self, peer, payload); err != nil {
			return err
		}
	}
	return nil
}

func (n *MemoryNetwork) Receive(ctx context.Context) (identifiers.DeviceId, []byte, error) {
	n.bus.mu.RLock()
	inbox := n.bus.inboxes[n.self]
	n.bus.mu.RUnlock()

	select {
	case msg := <-inbox:
		return msg.from, msg.payload, nil
	case <-ctx.Done():
		return identifiers.DeviceId{}, nil, aerr.Wrap(aerr.CodeNetwork, ctx.Err(), "receive interrupted")
	}
}

func (n *MemoryNetwork) ConnectedPeers(ctx context.Context) ([]identifiers.DeviceId, error) {
	return n.bus.peers(n.self), nil
}

// TryReceive pops a queued message without blocking; ok is false when the
// inbox is empty. Simulation schedulers poll with this.
func (n *MemoryNetwork) TryReceive() (identifiers.DeviceId, []byte, bool) {
	n.bus.mu.RLock()
	inbox := n.bus.inboxes[n.self]
	n.bus.mu.RUnlock()
	select {
	case msg := <-inbox:
		return msg.from, msg.payload, true
	default:
		return identifiers.DeviceId{}, nil, false
	}
}

// Transport is the production wire. QUIC and TCP transports are external
// collaborators implementing this interface.
type Transport interface {
	Send(ctx context.Context, peer identifiers.DeviceId, payload []byte) error
	Recv(ctx context.Context) (identifiers.DeviceId, []byte, error)
	Peers(ctx context.Context) ([]identifiers.DeviceId, error)
}

// ProductionNetwork paces an injected Transport. The limiter smooths
// bursts; the flow guard above remains the authoritative budget.
type ProductionNetwork struct {
	transport Transport
	limiter   *rate.Limiter
}

// NewProductionNetwork wraps a transport with the given sustained rate and
// burst.
func NewProductionNetwork(transport Transport, sendsPerSecond float64, burst int) *ProductionNetwork {
	return &ProductionNetwork{
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(sendsPerSecond), burst),
	}
}

func (n *ProductionNetwork) SendToPeer(ctx context.Context, peer identifiers.DeviceId, payload []byte) error {
	if n.transport == nil {
		return aerr.Network("no transport bound")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return aerr.Wrap(aerr.CodeNetwork, err, "rate wait")
	}
	if err := n.transport.Send(ctx, peer, payload); err != nil {
		return aerr.Wrap(aerr.CodeNetwork, err, "send to %s", peer)
	}
	return nil
}

func (n *ProductionNetwork) Broadcast(ctx context.Context, payload []byte) error {
	peers, err := n.ConnectedPeers(ctx)
	if err != nil {
		return err
	}
	for _, peer := range peers {
		if err := n.SendToPeer(ctx, peer, payload); err != nil {
			return err
		}
	}
	return nil
}

func (n *ProductionNetwork) Receive(ctx context.Context) (identifiers.DeviceId, []byte, error) {
	if n.transport == nil {
		return identifiers.DeviceId{}, nil, aerr.Network("no transport bound")
	}
	peer, payload, err := n.transport.Recv(ctx)
	if err != nil {
		return identifiers.DeviceId{}, nil, aerr.Wrap(aerr.CodeNetwork, err, "receive")
	}
	return peer, payload, nil
}

func (n *ProductionNetwork) ConnectedPeers(ctx context.Context) ([]identifiers.DeviceId, error) {
	if n.transport == nil {
		return nil, aerr.Network("no transport bound")
	}
	peers, err := n.transport.Peers(ctx)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeNetwork, err, "list peers")
	}
	return peers, nil
}
