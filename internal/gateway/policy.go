package gateway

import (
	"net/http"
	"sync"
)

// Policy maps route patterns to access requirements. Patterns use
// http.ServeMux syntax ("GET /account/unlink/{provider}") and are matched with
// ServeMux precedence, so the policy agrees with the router on which route a
// request hits.
type Policy struct {
	mu    sync.RWMutex
	mux   *http.ServeMux
	rules map[string]Requirement
}

// NewPolicy returns an empty policy; unmatched requests are Public.
func NewPolicy() *Policy {
	return &Policy{
		mux:   http.NewServeMux(),
		rules: make(map[string]Requirement),
	}
}

// Set attaches req to pattern. Registering a pattern twice panics, as ServeMux does.
func (p *Policy) Set(pattern string, req Requirement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mux.Handle(pattern, http.NotFoundHandler())
	p.rules[pattern] = req
}

// Lookup returns the requirement of the route r resolves to.
func (p *Policy) Lookup(r *http.Request) Requirement {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, pattern := p.mux.Handler(r)
	if req, ok := p.rules[pattern]; ok {
		return req
	}
	return RequireNothing()
}
