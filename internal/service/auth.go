package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	apperrors "github.com/target/lessonhub/internal/errors"
	"github.com/target/lessonhub/internal/ports"
)

// DefaultProviderTimeout bounds the provider round trip of a handshake completion.
const DefaultProviderTimeout = 15 * time.Second

const minPasswordLength = 8

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrProviderHandshakeFailed wraps every failure of an OAuth completion.
	ErrProviderHandshakeFailed = errors.New("provider handshake failed")
	// ErrUnknownProvider is returned for providers that are not configured.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrLastSignInMethod is returned when an unlink would leave the principal no way to sign in.
	ErrLastSignInMethod = errors.New("cannot remove the last sign-in method")
	// ErrIncorrectPassword is returned when a password change presents the wrong current password.
	ErrIncorrectPassword = errors.New("current password is incorrect")
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Principals      ports.PrincipalRepository
	Hasher          ports.PasswordHasher
	Providers       []ports.OAuthProvider
	ProviderTimeout time.Duration
	Logger          *slog.Logger
}

// AuthService orchestrates local login, signup and OAuth handshakes, and resolves
// the principal attached to a session.
type AuthService struct {
	principals ports.PrincipalRepository
	hasher     ports.PasswordHasher
	providers  map[domainauth.Provider]ports.OAuthProvider
	order      []domainauth.Provider
	timeout    time.Duration
	logger     *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Principals == nil {
		return nil, errors.New("PrincipalRepository is required")
	}
	if opts.Hasher == nil {
		return nil, errors.New("PasswordHasher is required")
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &AuthService{
		principals: opts.Principals,
		hasher:     opts.Hasher,
		providers:  make(map[domainauth.Provider]ports.OAuthProvider, len(opts.Providers)),
		timeout:    timeout,
		logger:     logger.With("component", "auth_service"),
	}
	for _, p := range opts.Providers {
		if p == nil {
			continue
		}
		if _, dup := s.providers[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.Name())
		}
		s.providers[p.Name()] = p
		s.order = append(s.order, p.Name())
	}
	return s, nil
}

// MustNewAuthService is like NewAuthService but panics on error.
func MustNewAuthService(opts AuthServiceOptions) *AuthService {
	s, err := NewAuthService(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Providers lists configured provider names in registration order.
func (s *AuthService) Providers() []domainauth.Provider {
	return append([]domainauth.Provider(nil), s.order...)
}

// ResolvePrincipal returns the principal for id, or nil when id is empty or no longer exists.
func (s *AuthService) ResolvePrincipal(ctx context.Context, id string) (*domainauth.Principal, error) {
	if id == "" {
		return nil, nil
	}
	p, err := s.principals.Get(ctx, id)
	if errors.Is(err, ports.ErrPrincipalNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	return p, nil
}

// Authenticate verifies a local email/password pair.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domainauth.Principal, error) {
	email = domainauth.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	p, err := s.principals.GetByEmail(ctx, email)
	if errors.Is(err, ports.ErrPrincipalNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	// Accounts created through a provider have no local password.
	if p.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if cmpErr := s.hasher.Compare(p.PasswordHash, password); cmpErr != nil {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// SignupInput carries the local signup form.
type SignupInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
}

// Validate checks the signup form.
func (in SignupInput) Validate() error {
	var errs []error
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		errs = append(errs, apperrors.ValidationField("email", "Please enter a valid email address."))
	}
	if len(in.Password) < minPasswordLength {
		errs = append(errs, apperrors.ValidationField("password", "Password must be at least 8 characters long."))
	}
	if in.Password != in.ConfirmPassword {
		errs = append(errs, apperrors.ValidationField("confirmPassword", "Passwords do not match."))
	}
	return errors.Join(errs...)
}

// Register creates a local principal.
func (s *AuthService) Register(ctx context.Context, in SignupInput) (*domainauth.Principal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p, err := s.principals.Create(ctx, domainauth.Principal{
		ID:           uuid.NewString(),
		Email:        domainauth.NormalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ports.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create principal: %w", err)
	}
	return p, nil
}

// HandshakeStart is what the gateway keeps in the session while the visitor is at the provider.
type HandshakeStart struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginHandshake asks the provider for its consent URL.
func (s *AuthService) BeginHandshake(ctx context.Context, provider domainauth.Provider) (*HandshakeStart, error) {
	prov, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	authURL, state, nonce, err := prov.Begin(ctx, ports.BeginInput{})
	if err != nil {
		return nil, fmt.Errorf("begin %s handshake: %w", provider, err)
	}
	if state == "" {
		return nil, fmt.Errorf("begin %s handshake: provider returned empty state", provider)
	}

	return &HandshakeStart{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteHandshakeInput groups parameters for completing a provider callback.
type CompleteHandshakeInput struct {
	Provider domainauth.Provider
	Code     string
	State    string
	Nonce    string

	// CurrentPrincipalID is set when an already signed-in visitor links another provider.
	CurrentPrincipalID string
}

// CompleteHandshake exchanges the callback code and links the resulting identity.
// The provider round trip is bounded by the configured timeout. Every failure
// matches ErrProviderHandshakeFailed.
func (s *AuthService) CompleteHandshake(ctx context.Context, in CompleteHandshakeInput) (*domainauth.Principal, error) {
	prov, ok := s.providers[in.Provider]
	if !ok {
		return nil, handshakeFailed(fmt.Errorf("%w: %s", ErrUnknownProvider, in.Provider))
	}
	if in.Code == "" {
		return nil, handshakeFailed(errors.New("authorization code is required"))
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	identity, err := prov.Exchange(exchangeCtx, ports.ExchangeInput{
		Code:  in.Code,
		State: in.State,
		Nonce: in.Nonce,
	})
	if err != nil {
		return nil, handshakeFailed(fmt.Errorf("exchange authorization code: %w", err))
	}
	if identity.Subject == "" {
		return nil, handshakeFailed(errors.New("provider returned identity without subject"))
	}
	identity.Provider = prov.Name()
	identity.Email = domainauth.NormalizeEmail(identity.Email)

	p, err := s.link(ctx, in.CurrentPrincipalID, identity)
	if err != nil {
		return nil, handshakeFailed(err)
	}

	s.logger.InfoContext(ctx, "identity linked",
		"provider", identity.Provider,
		"principal_id", p.ID,
	)
	return p, nil
}

// link attaches identity to the signed-in principal, to the principal already
// owning (provider, subject), or to a newly created principal.
func (s *AuthService) link(
	ctx context.Context,
	currentID string,
	identity domainauth.ExternalIdentity,
) (_ *domainauth.Principal, retErr error) {
	owner, err := s.principals.GetByIdentity(ctx, identity.Provider, identity.Subject)
	if err != nil && !errors.Is(err, ports.ErrPrincipalNotFound) {
		return nil, fmt.Errorf("lookup identity owner: %w", err)
	}

	targetID := currentID
	switch {
	case currentID != "" && owner != nil && owner.ID != currentID:
		return nil, ports.ErrIdentityLinkedElsewhere
	case currentID == "" && owner != nil:
		targetID = owner.ID
	case currentID == "":
		created, createErr := s.createForIdentity(ctx, identity)
		if createErr != nil {
			return nil, createErr
		}
		targetID = created.ID
		defer func() {
			if retErr == nil {
				return
			}
			// A principal nobody can sign in to would keep holding the email.
			if delErr := s.principals.Delete(ctx, created.ID); delErr != nil {
				s.logger.ErrorContext(ctx, "remove principal after failed link",
					"principal_id", created.ID,
					"error", delErr,
				)
			}
		}()
	}

	if linkErr := s.principals.LinkIdentity(ctx, targetID, identity); linkErr != nil {
		return nil, fmt.Errorf("link identity: %w", linkErr)
	}

	p, err := s.principals.Get(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("reload principal: %w", err)
	}
	return p, nil
}

func (s *AuthService) createForIdentity(ctx context.Context, identity domainauth.ExternalIdentity) (*domainauth.Principal, error) {
	if identity.Email != "" {
		_, err := s.principals.GetByEmail(ctx, identity.Email)
		if err == nil {
			// Someone registered this address locally; they must sign in and link explicitly.
			return nil, ports.ErrEmailTaken
		}
		if !errors.Is(err, ports.ErrPrincipalNotFound) {
			return nil, fmt.Errorf("lookup principal by email: %w", err)
		}
	}

	p, err := s.principals.Create(ctx, domainauth.Principal{
		ID:    uuid.NewString(),
		Email: identity.Email,
		Name:  identity.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("create principal: %w", err)
	}
	return p, nil
}

// Unlink removes the provider identity from the principal. It refuses to
// remove the only remaining way to sign in.
func (s *AuthService) Unlink(ctx context.Context, principalID string, provider domainauth.Provider) error {
	if principalID == "" {
		return errors.New("principal ID is required")
	}
	p, err := s.principals.Get(ctx, principalID)
	if err != nil {
		return fmt.Errorf("unlink %s: %w", provider, err)
	}
	if _, linked := p.Identity(provider); linked && p.SignInMethods() <= 1 {
		return ErrLastSignInMethod
	}
	if err := s.principals.UnlinkIdentity(ctx, principalID, provider); err != nil {
		return fmt.Errorf("unlink %s: %w", provider, err)
	}
	return nil
}

// ProfileInput carries the profile form.
type ProfileInput struct {
	Email string
	Name  string
}

// Validate checks the profile form.
func (in ProfileInput) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return apperrors.ValidationField("email", "Please enter a valid email address.")
	}
	return nil
}

// UpdateProfile changes the principal's email and display name.
func (s *AuthService) UpdateProfile(ctx context.Context, principalID string, in ProfileInput) (*domainauth.Principal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	email := domainauth.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	p, err := s.principals.Update(ctx, principalID, domainauth.UpdatePrincipalRequest{Email: &email, Name: &name})
	if err != nil {
		if errors.Is(err, ports.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// PasswordChangeInput carries the password form. Current is ignored for
// principals that have no local password yet.
type PasswordChangeInput struct {
	Current         string
	Password        string
	ConfirmPassword string
}

// Validate checks the new password.
func (in PasswordChangeInput) Validate() error {
	var errs []error
	if len(in.Password) < minPasswordLength {
		errs = append(errs, apperrors.ValidationField("password", "Password must be at least 8 characters long."))
	}
	if in.Password != in.ConfirmPassword {
		errs = append(errs, apperrors.ValidationField("confirmPassword", "Passwords do not match."))
	}
	return errors.Join(errs...)
}

// ChangePassword sets a new local password. Accounts created through a
// provider use it to add password sign-in.
func (s *AuthService) ChangePassword(ctx context.Context, principalID string, in PasswordChangeInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	p, err := s.principals.Get(ctx, principalID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if p.PasswordHash != "" {
		if cmpErr := s.hasher.Compare(p.PasswordHash, in.Current); cmpErr != nil {
			return ErrIncorrectPassword
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.principals.Update(ctx, principalID, domainauth.UpdatePrincipalRequest{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	s.logger.InfoContext(ctx, "password changed", "principal_id", principalID)
	return nil
}

// DeleteAccount removes the principal and every linked identity.
func (s *AuthService) DeleteAccount(ctx context.Context, principalID string) error {
	if principalID == "" {
		return errors.New("principal ID is required")
	}
	if err := s.principals.Delete(ctx, principalID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.logger.InfoContext(ctx, "account deleted", "principal_id", principalID)
	return nil
}

func handshakeFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrProviderHandshakeFailed, err)
}
