package models

import "time"

// AgentType distinguishes human operators from automated agents.
type AgentType string

const (
	AgentHuman AgentType = "human"
	AgentBot   AgentType = "bot"
)

// AgentStatus is the availability an agent last reported.
type AgentStatus string

const (
	AgentWorking AgentStatus = "working"
	AgentIdle    AgentStatus = "idle"
	AgentOffline AgentStatus = "offline"
)

// TrustLevel is consumed by authorization policy outside the core.
type TrustLevel string

const (
	TrustOwner      TrustLevel = "owner"
	TrustTrusted    TrustLevel = "trusted"
	TrustRestricted TrustLevel = "restricted"
	TrustReadOnly   TrustLevel = "read-only"
)

// Agent is a row of the roster. Name is unique within a document.
// WorkingOn is a weak reference and may name a task that no longer exists.
type Agent struct {
	Name       string
	Type       AgentType
	Roles      []string
	Status     AgentStatus
	WorkingOn  string
	LastActive time.Time
	TrustLevel TrustLevel
}
