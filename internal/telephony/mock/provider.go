package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acme/campaign-dispatch/internal/config"
	"github.com/acme/campaign-dispatch/internal/telephony"
)

// Provider reports every agent active unless told otherwise.
type Provider struct {
	timeout time.Duration

	mu       sync.RWMutex
	states   map[string]telephony.AgentState
	failures map[string]error
}

// NewProvider constructs the mock provider.
func NewProvider(cfg config.VoiceConfig) *Provider {
	return &Provider{
		timeout:  cfg.RequestTimeout,
		states:   make(map[string]telephony.AgentState),
		failures: make(map[string]error),
	}
}

// SetState overrides the state reported for an agent.
func (p *Provider) SetState(providerAgentID string, state telephony.AgentState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[providerAgentID] = state
}

// Fail makes lookups for the agent return err.
func (p *Provider) Fail(providerAgentID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[providerAgentID] = err
}

// AgentStatus implements telephony.Provider.
func (p *Provider) AgentStatus(ctx context.Context, providerAgentID string) (telephony.AgentState, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return telephony.AgentStateUnknown, fmt.Errorf("mock voice provider: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if err, ok := p.failures[providerAgentID]; ok {
		return telephony.AgentStateUnknown, err
	}
	if state, ok := p.states[providerAgentID]; ok {
		return state, nil
	}
	return telephony.AgentStateActive, nil
}
