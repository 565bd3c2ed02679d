package google

// Package google provides the Google OpenID Connect adapter, including the
// scope-elevated handshake for Drive and Sheets access.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
	"golang.org/x/oauth2"
)

// DefaultIssuer is Google's OIDC issuer.
const DefaultIssuer = "https://accounts.google.com"

// DefaultScopes are requested when ProviderConfig.Scopes is empty.
var DefaultScopes = []string{
	gooidc.ScopeOpenID,
	"profile",
	"email",
	domainauth.ScopeGoogleDrive,
	domainauth.ScopeGoogleSheetsReader,
}

// RequiredScopes are always requested, whatever ProviderConfig.Scopes says.
// /api/google/drive is unreachable without them.
var RequiredScopes = []string{
	gooidc.ScopeOpenID,
	domainauth.ScopeGoogleDrive,
	domainauth.ScopeGoogleSheetsReader,
}

// withRequiredScopes returns scopes followed by any required scope it lacks.
func withRequiredScopes(scopes []string) []string {
	out := slices.Clone(scopes)
	for _, s := range RequiredScopes {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Provider implements ports.OAuthProvider using Google's OIDC endpoints.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the Google provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Issuer       string       // defaults to DefaultIssuer
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// NewProvider creates a new Google provider. It fetches the discovery document once.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	issuer := strings.TrimSuffix(config.Issuer, "/")
	if issuer == "" {
		issuer = DefaultIssuer
	}
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	scopes = withRequiredScopes(scopes)

	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Provider{
		httpClient:   httpClient,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
	}, nil
}

// Name returns domainauth.ProviderGoogle.
func (p *Provider) Name() domainauth.Provider { return domainauth.ProviderGoogle }

// Begin builds the consent URL. Offline access with forced consent makes Google
// return a refresh token on every grant.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if len(in.Scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(in.Scopes, " ")))
	}
	return p.config.AuthCodeURL(state, opts...), state, nonce, nil
}

// Exchange trades the code for tokens, verifies the id_token against the nonce
// and maps the claims into a linked identity.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error) {
	if in.Code == "" {
		return domainauth.ExternalIdentity{}, errors.New("authorization code is required")
	}
	if in.Nonce == "" {
		return domainauth.ExternalIdentity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.ExternalIdentity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	claims, err := p.verifyIDToken(ctx, token, in.Nonce)
	if err != nil {
		return domainauth.ExternalIdentity{}, fmt.Errorf("extract id_token: %w", err)
	}

	// Fill missing fields from UserInfo
	if claims.Email == "" || claims.Name == "" {
		if fillErr := p.fillFromUserInfo(ctx, token, &claims); fillErr != nil {
			return domainauth.ExternalIdentity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}

	return domainauth.ExternalIdentity{
		Provider:     domainauth.ProviderGoogle,
		Subject:      claims.Subject,
		Email:        claims.Email,
		DisplayName:  claims.Name,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		Scopes:       grantedScopes(token, p.config.Scopes),
	}, nil
}

// googleClaims is the subset of id_token and userinfo claims we read.
type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
}

func (p *Provider) verifyIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (googleClaims, error) {
	var c googleClaims
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return c, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return c, fmt.Errorf("verify id_token: %w", err)
	}
	if claimsErr := idTok.Claims(&c); claimsErr != nil {
		return c, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if c.Nonce != expectedNonce {
		return c, errors.New("invalid nonce")
	}
	c.Subject = idTok.Subject
	if !c.EmailVerified {
		c.Email = ""
	}
	return c, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, c *googleClaims) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var info googleClaims
	if claimsErr := ui.Claims(&info); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	fillFromUserInfoClaims(c, info, ui.Subject)
	return nil
}

// fillFromUserInfoClaims fills missing fields from a UserInfo payload. The
// payload is ignored when it describes a different subject.
func fillFromUserInfoClaims(c *googleClaims, info googleClaims, subject string) {
	if subject != c.Subject {
		return
	}
	if c.Email == "" && info.EmailVerified {
		c.Email = info.Email
	}
	if c.Name == "" {
		c.Name = info.Name
	}
}

// grantedScopes reads the space separated "scope" field of the token response.
// Google returns the scopes the user actually granted, which may be fewer than requested.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	raw, _ := tok.Extra("scope").(string)
	if raw == "" {
		return slices.Clone(requested)
	}
	return strings.Fields(raw)
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	return s[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

var _ ports.OAuthProvider = (*Provider)(nil)
