package github

// Package github provides the GitHub OAuth adapter.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

// DefaultAPIBaseURL is the public GitHub REST API.
const DefaultAPIBaseURL = "https://api.github.com"

// DefaultScopes are requested when ProviderConfig.Scopes is empty.
var DefaultScopes = []string{"user:email"}

// ProviderConfig holds configuration for the GitHub provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint overrides github.Endpoint, mainly for tests and GitHub Enterprise.
	Endpoint   *oauth2.Endpoint
	APIBaseURL string       // defaults to DefaultAPIBaseURL
	HTTPClient *http.Client // defaults to a client with a 30s timeout
}

// Provider implements ports.OAuthProvider against GitHub.
type Provider struct {
	config     *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewProvider creates a new GitHub provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	endpoint := githuboauth.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	apiBase := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       append([]string(nil), scopes...),
			Endpoint:     endpoint,
		},
		apiBaseURL: apiBase,
		httpClient: httpClient,
	}, nil
}

// Name returns domainauth.ProviderGitHub.
func (p *Provider) Name() domainauth.Provider { return domainauth.ProviderGitHub }

// Begin returns the GitHub consent URL. GitHub does not use a nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	state := oauth2.GenerateVerifier()
	opts := []oauth2.AuthCodeOption{}
	if len(in.Scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(in.Scopes, " ")))
	}
	return p.config.AuthCodeURL(state, opts...), state, "", nil
}

// Exchange trades the code for a token and loads the GitHub account it belongs to.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error) {
	if in.Code == "" {
		return domainauth.ExternalIdentity{}, errors.New("authorization code is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.ExternalIdentity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	client := p.config.Client(ctx, token)
	user, err := p.getUser(ctx, client)
	if err != nil {
		return domainauth.ExternalIdentity{}, err
	}

	// If email is not public on the profile, fall back to the primary verified address.
	if user.Email == "" {
		emails, emailErr := p.getUserEmails(ctx, client)
		if emailErr != nil {
			return domainauth.ExternalIdentity{}, emailErr
		}
		user.Email = primaryEmail(emails)
	}

	return domainauth.ExternalIdentity{
		Provider:     domainauth.ProviderGitHub,
		Subject:      strconv.FormatInt(user.ID, 10),
		Email:        user.Email,
		DisplayName:  firstNonEmpty(user.Name, user.Login),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		Scopes:       grantedScopes(token, p.config.Scopes),
	}, nil
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *Provider) getUser(ctx context.Context, client *http.Client) (*githubUser, error) {
	var u githubUser
	if err := p.getJSON(ctx, client, "/user", &u); err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	if u.ID == 0 {
		return nil, errors.New("fetch user info: missing id")
	}
	return &u, nil
}

func (p *Provider) getUserEmails(ctx context.Context, client *http.Client) ([]githubEmail, error) {
	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return nil, fmt.Errorf("fetch user emails: %w", err)
	}
	return emails, nil
}

func (p *Provider) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API returned HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func primaryEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

// grantedScopes reads the comma separated "scope" field of the token response,
// falling back to the requested scopes when GitHub omits it.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	raw, _ := tok.Extra("scope").(string)
	if raw == "" {
		return append([]string(nil), requested...)
	}
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ ports.OAuthProvider = (*Provider)(nil)
