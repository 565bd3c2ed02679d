package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

type identityKey struct {
	provider domainauth.Provider
	subject  string
}

// PrincipalRepository is a map-backed ports.PrincipalRepository.
type PrincipalRepository struct {
	mu         sync.RWMutex
	principals map[string]*domainauth.Principal
	byEmail    map[string]string
	byIdentity map[identityKey]string
	now        func() time.Time
}

// NewPrincipalRepository returns an empty repository. now defaults to time.Now.
func NewPrincipalRepository(now func() time.Time) *PrincipalRepository {
	if now == nil {
		now = time.Now
	}
	return &PrincipalRepository{
		principals: make(map[string]*domainauth.Principal),
		byEmail:    make(map[string]string),
		byIdentity: make(map[identityKey]string),
		now:        now,
	}
}

// Get returns the principal with id.
func (r *PrincipalRepository) Get(_ context.Context, id string) (*domainauth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return nil, ports.ErrPrincipalNotFound
	}
	return clonePrincipal(p), nil
}

// GetByEmail looks up a principal by normalized email.
func (r *PrincipalRepository) GetByEmail(_ context.Context, email string) (*domainauth.Principal, error) {
	email = domainauth.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok || email == "" {
		return nil, ports.ErrPrincipalNotFound
	}
	return clonePrincipal(r.principals[id]), nil
}

// GetByIdentity returns the principal owning (provider, subject).
func (r *PrincipalRepository) GetByIdentity(_ context.Context, provider domainauth.Provider, subject string) (*domainauth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIdentity[identityKey{provider, subject}]
	if !ok {
		return nil, ports.ErrPrincipalNotFound
	}
	return clonePrincipal(r.principals[id]), nil
}

// Create stores a new principal. Emails are unique when present.
func (r *PrincipalRepository) Create(_ context.Context, p domainauth.Principal) (*domainauth.Principal, error) {
	if p.ID == "" {
		return nil, errors.New("principal ID is required")
	}
	p.Email = domainauth.NormalizeEmail(p.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.principals[p.ID]; dup {
		return nil, errors.New("principal already exists")
	}
	if p.Email != "" {
		if _, taken := r.byEmail[p.Email]; taken {
			return nil, ports.ErrEmailTaken
		}
	}

	now := r.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Identities = nil
	stored := p
	r.principals[p.ID] = &stored
	if p.Email != "" {
		r.byEmail[p.Email] = p.ID
	}
	return clonePrincipal(&stored), nil
}

// Update applies the set fields of req.
func (r *PrincipalRepository) Update(_ context.Context, id string, req domainauth.UpdatePrincipalRequest) (*domainauth.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return nil, ports.ErrPrincipalNotFound
	}
	if !req.HasUpdates() {
		return clonePrincipal(p), nil
	}

	if req.Email != nil {
		email := domainauth.NormalizeEmail(*req.Email)
		if owner, taken := r.byEmail[email]; taken && email != "" && owner != id {
			return nil, ports.ErrEmailTaken
		}
		delete(r.byEmail, p.Email)
		p.Email = email
		if email != "" {
			r.byEmail[email] = id
		}
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.PasswordHash != nil {
		p.PasswordHash = *req.PasswordHash
	}
	p.UpdatedAt = r.now()
	return clonePrincipal(p), nil
}

// Delete removes the principal and its identities.
func (r *PrincipalRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return ports.ErrPrincipalNotFound
	}
	for _, ident := range p.Identities {
		delete(r.byIdentity, identityKey{ident.Provider, ident.Subject})
	}
	if p.Email != "" {
		delete(r.byEmail, p.Email)
	}
	delete(r.principals, id)
	return nil
}

// LinkIdentity upserts the identity on (provider, subject) for principalID.
func (r *PrincipalRepository) LinkIdentity(_ context.Context, principalID string, ident domainauth.ExternalIdentity) error {
	if ident.Provider == "" || ident.Subject == "" {
		return errors.New("identity provider and subject are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[principalID]
	if !ok {
		return ports.ErrPrincipalNotFound
	}
	key := identityKey{ident.Provider, ident.Subject}
	if owner, linked := r.byIdentity[key]; linked && owner != principalID {
		return ports.ErrIdentityLinkedElsewhere
	}

	now := r.now()
	ident.UpdatedAt = now
	ident.Scopes = slices.Clone(ident.Scopes)
	idx := slices.IndexFunc(p.Identities, func(e domainauth.ExternalIdentity) bool {
		return e.Provider == ident.Provider
	})
	if idx >= 0 {
		prev := p.Identities[idx]
		ident.LinkedAt = prev.LinkedAt
		// A principal holds one identity per provider; relinking a different account replaces it.
		delete(r.byIdentity, identityKey{prev.Provider, prev.Subject})
		p.Identities[idx] = ident
	} else {
		ident.LinkedAt = now
		p.Identities = append(p.Identities, ident)
	}
	r.byIdentity[key] = principalID
	p.UpdatedAt = now
	return nil
}

// UnlinkIdentity removes the principal's identity for provider, if any.
func (r *PrincipalRepository) UnlinkIdentity(_ context.Context, principalID string, provider domainauth.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[principalID]
	if !ok {
		return ports.ErrPrincipalNotFound
	}
	p.Identities = slices.DeleteFunc(p.Identities, func(e domainauth.ExternalIdentity) bool {
		if e.Provider != provider {
			return false
		}
		delete(r.byIdentity, identityKey{e.Provider, e.Subject})
		return true
	})
	p.UpdatedAt = r.now()
	return nil
}

func clonePrincipal(p *domainauth.Principal) *domainauth.Principal {
	out := *p
	out.Identities = make([]domainauth.ExternalIdentity, len(p.Identities))
	for i, id := range p.Identities {
		id.Scopes = slices.Clone(id.Scopes)
		out.Identities[i] = id
	}
	if len(out.Identities) == 0 {
		out.Identities = nil
	}
	return &out
}

var _ ports.PrincipalRepository = (*PrincipalRepository)(nil)
