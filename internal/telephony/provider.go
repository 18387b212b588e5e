package telephony

import (
	"context"
)

// AgentState is the voice provider's view of an agent.
type AgentState string

const (
	AgentStateActive   AgentState = "active"
	AgentStateInactive AgentState = "inactive"
	AgentStateUnknown  AgentState = "unknown"
)

// Provider abstracts the voice provider. Calls are placed elsewhere; the
// dispatcher only asks whether an agent can take calls.
type Provider interface {
	AgentStatus(ctx context.Context, providerAgentID string) (AgentState, error)
}
