package handlers

import (
	"context"
	"sync"

	"github.com/hxrts/aura-sub001/pkg/aerr"
	"github.com/hxrts/aura-sub001/pkg/effects"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// RoleRouter delivers role-addressed ceremony messages by resolving roles
// to devices and delegating to the network effect.
type RoleRouter struct {
	mu      sync.RWMutex
	roles   map[string]identifiers.DeviceId
	network effects.Network
}

// NewRoleRouter wraps a network handler.
func NewRoleRouter(network effects.Network) *RoleRouter {
	return &RoleRouter{roles: make(map[string]identifiers.DeviceId), network: network}
}

// BindRole maps a ceremony role to a device.
func (r *RoleRouter) BindRole(role string, device identifiers.DeviceId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role] = device
}

func (r *RoleRouter) resolve(role string) (identifiers.DeviceId, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	device, ok := r.roles[role]
	if !ok {
		return identifiers.DeviceId{}, aerr.Internal("role %q not bound", role)
	}
	return device, nil
}

func (r *RoleRouter) SendToRole(ctx context.Context, role string, payload []byte) error {
	device, err := r.resolve(role)
	if err != nil {
		return err
	}
	return r.network.SendToPeer(ctx, device, payload)
}

func (r *RoleRouter) ReceiveFromRole(ctx context.Context, role string) ([]byte, error) {
	expected, err := r.resolve(role)
	if err != nil {
		return nil, err
	}
	from, payload, err := r.network.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if from != expected {
		return nil, aerr.PermissionDenied("expected message from role %q (%s), got %s", role, expected, from)
	}
	return payload, nil
}
