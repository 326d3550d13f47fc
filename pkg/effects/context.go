package effects

import (
	"time"

	"github.com/hxrts/aura-sub001/pkg/flow"
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// Context is the per-caller execution context threaded through every effect
// call: the device identity, the execution mode, an optional account
// binding, and a one-shot flow hint consumed by the next transport send.
type Context struct {
	DeviceId  identifiers.DeviceId   `json:"device_id"`
	Mode      ExecutionMode          `json:"mode"`
	CreatedAt time.Time              `json:"created_at"`
	AccountId *identifiers.AccountId `json:"account_id,omitempty"`
	Epoch     identifiers.Epoch      `json:"epoch"`

	flowHint *flow.Hint
}

// NewContext builds a context for the given device and mode.
func NewContext(device identifiers.DeviceId, mode ExecutionMode, now time.Time) *Context {
	return &Context{DeviceId: device, Mode: mode, CreatedAt: now}
}

// ForTesting builds a deterministic testing context.
func ForTesting(device identifiers.DeviceId) *Context {
	return NewContext(device, Testing(), time.Unix(0, 0).UTC())
}

// ForProduction builds a production context stamped with wall-clock time.
func ForProduction(device identifiers.DeviceId) *Context {
	return NewContext(device, Production(), time.Now().UTC())
}

// ForSimulation builds a seeded simulation context.
func ForSimulation(device identifiers.DeviceId, seed uint64) *Context {
	return NewContext(device, Simulation(seed), time.Unix(0, 0).UTC())
}

// WithAccount binds the context to an account; the account id becomes the
// default flow context for sends without a hint.
func (c *Context) WithAccount(account identifiers.AccountId) *Context {
	c.AccountId = &account
	return c
}

// SetFlowHint installs a one-shot hint for the next transport send.
func (c *Context) SetFlowHint(hint flow.Hint) {
	h := hint
	c.flowHint = &h
}

// TakeFlowHint consumes and returns the installed hint, if any.
func (c *Context) TakeFlowHint() (flow.Hint, bool) {
	if c.flowHint == nil {
		return flow.Hint{}, false
	}
	h := *c.flowHint
	c.flowHint = nil
	return h, true
}

// FlowContext is the context id sends default to: the account id when
// bound, the global context otherwise.
func (c *Context) FlowContext() identifiers.ContextId {
	if c.AccountId != nil {
		return identifiers.ContextId(c.AccountId.String())
	}
	return identifiers.GlobalContext
}

// Clone returns an independent copy (the pending flow hint travels along).
func (c *Context) Clone() *Context {
	out := *c
	if c.flowHint != nil {
		h := *c.flowHint
		out.flowHint = &h
	}
	return &out
}
