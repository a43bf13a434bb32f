package config

import "sync/atomic"

// Provider hands out the current *Config. Watch callbacks Store a new one;
// readers pick it up on their next Current call.
//
// The returned *Config must be treated as read-only.
type Provider struct {
	cur atomic.Pointer[Config]
}

// NewProvider returns a Provider holding cfg.
func NewProvider(cfg *Config) *Provider {
	p := &Provider{}
	p.cur.Store(cfg)
	return p
}

// Current returns the most recently stored config.
func (p *Provider) Current() *Config {
	return p.cur.Load()
}

// Store replaces the current config.
func (p *Provider) Store(cfg *Config) {
	p.cur.Store(cfg)
}
