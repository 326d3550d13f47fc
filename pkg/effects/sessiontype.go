package effects

import (
	"github.com/hxrts/aura-sub001/pkg/identifiers"
)

// SessionStep discriminates local session-type programs.
type SessionStep string

const (
	StepSend    SessionStep = "send"
	StepReceive SessionStep = "receive"
	StepChoice  SessionStep = "choice"
	StepEnd     SessionStep = "end"
)

// SessionType is a local session-type program: a small tree of send,
// receive, choice and end steps that the effect system drives against the
// network effect. Programs are data, so simulation tooling can replay them.
type SessionType struct {
	Step SessionStep `json:"step"`

	// Peer addresses send/receive steps.
	Peer identifiers.DeviceId `json:"peer,omitempty"`
	// Payload carries the bytes of a send step.
	Payload []byte `json:"payload,omitempty"`
	// Label selects a branch at a choice step.
	Label string `json:"label,omitempty"`

	// Next continues after send/receive; Branches continue after choice.
	Next     *SessionType            `json:"next,omitempty"`
	Branches map[string]*SessionType `json:"branches,omitempty"`
}

// End terminates a program.
func End() *SessionType { return &SessionType{Step: StepEnd} }

// Send transmits payload to peer, then continues with next.
func Send(peer identifiers.DeviceId, payload []byte, next *SessionType) *SessionType {
	return &SessionType{Step: StepSend, Peer: peer, Payload: payload, Next: next}
}

// Receive awaits a message from peer, then continues with next.
func Receive(peer identifiers.DeviceId, next *SessionType) *SessionType {
	return &SessionType{Step: StepReceive, Peer: peer, Next: next}
}

// Choice selects the branch named label.
func Choice(label string, branches map[string]*SessionType) *SessionType {
	return &SessionType{Step: StepChoice, Label: label, Branches: branches}
}
