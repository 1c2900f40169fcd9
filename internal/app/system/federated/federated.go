// Package federated verifies credentials issued by external identity
// providers so they can be linked to, or used to sign in, a local identity.
package federated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ProviderGoogle is the only provider wired today.
const ProviderGoogle = "google"

// GoogleUserinfoURL is Google's OAuth2 userinfo endpoint.
const GoogleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleTokeninfoURL reports which client an access token was issued to.
const GoogleTokeninfoURL = "https://oauth2.googleapis.com/tokeninfo"

var (
	// ErrUnsupportedProvider is returned when no verifier is registered for the provider.
	ErrUnsupportedProvider = errors.New("federated: unsupported provider")
	// ErrInvalidCredential is returned when the provider rejects the credential.
	ErrInvalidCredential = errors.New("federated: credential rejected")
	// ErrNotConfigured is returned when the verifier lacks client settings.
	ErrNotConfigured = errors.New("federated: provider not configured")
)

// Credential is what a client hands us after completing a provider's
// sign-in. Exactly one of IDToken, AccessToken or Code is normally set.
type Credential struct {
	Provider    string `json:"provider"`
	IDToken     string `json:"id_token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	Code        string `json:"code,omitempty"`
}

// Claims are the verified facts about the person behind a credential.
type Claims struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier turns a credential into verified claims.
type Verifier interface {
	Verify(ctx context.Context, cred Credential) (Claims, error)
}

// Registry routes credentials to the verifier for their provider.
type Registry map[string]Verifier

// Verify dispatches to the provider's verifier.
func (r Registry) Verify(ctx context.Context, cred Credential) (Claims, error) {
	v, ok := r[cred.Provider]
	if !ok {
		return Claims{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cred.Provider)
	}
	return v.Verify(ctx, cred)
}

// GoogleConfig holds OAuth client settings for Google.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// UserinfoURL overrides GoogleUserinfoURL.
	UserinfoURL string
	// TokeninfoURL overrides GoogleTokeninfoURL.
	TokeninfoURL string
	// IDTokens verifies ID tokens; nil disables that path.
	IDTokens *oidc.IDTokenVerifier
}

// Google verifies Google credentials. ID tokens are checked locally against
// Google's signing keys. Authorization codes are exchanged with our client
// secret. Bare access tokens are accepted only when tokeninfo says they
// were issued to our client ID.
type Google struct {
	oauth        *oauth2.Config
	userinfoURL  string
	tokeninfoURL string
	idTokens     *oidc.IDTokenVerifier
	log          *zap.Logger
}

// NewGoogle builds a Google verifier.
func NewGoogle(cfg GoogleConfig, logger *zap.Logger) *Google {
	u := cfg.UserinfoURL
	if u == "" {
		u = GoogleUserinfoURL
	}
	ti := cfg.TokeninfoURL
	if ti == "" {
		ti = GoogleTokeninfoURL
	}
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				oidc.ScopeOpenID,
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		userinfoURL:  u,
		tokeninfoURL: ti,
		idTokens:     cfg.IDTokens,
		log:          logger,
	}
}

// DiscoverGoogleIDTokens fetches Google's OIDC metadata and returns an ID
// token verifier for clientID. It makes a network call.
func DiscoverGoogleIDTokens(ctx context.Context, clientID string) (*oidc.IDTokenVerifier, error) {
	p, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}
	return p.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// Verify implements Verifier.
func (g *Google) Verify(ctx context.Context, cred Credential) (Claims, error) {
	switch {
	case cred.IDToken != "":
		return g.verifyIDToken(ctx, cred.IDToken)
	case cred.AccessToken != "":
		if err := g.checkAudience(ctx, cred.AccessToken); err != nil {
			return Claims{}, err
		}
		return g.userinfo(ctx, &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"})
	case cred.Code != "":
		if g.oauth.ClientID == "" || g.oauth.ClientSecret == "" {
			return Claims{}, ErrNotConfigured
		}
		tok, err := g.oauth.Exchange(ctx, cred.Code)
		if err != nil {
			return Claims{}, fmt.Errorf("%w: code exchange: %v", ErrInvalidCredential, err)
		}
		if raw, ok := tok.Extra("id_token").(string); ok && raw != "" && g.idTokens != nil {
			return g.verifyIDToken(ctx, raw)
		}
		return g.userinfo(ctx, tok)
	}
	return Claims{}, fmt.Errorf("%w: empty credential", ErrInvalidCredential)
}

func (g *Google) verifyIDToken(ctx context.Context, raw string) (Claims, error) {
	if g.idTokens == nil {
		return Claims{}, ErrNotConfigured
	}
	tok, err := g.idTokens.Verify(ctx, raw)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	var c struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := tok.Claims(&c); err != nil {
		return Claims{}, fmt.Errorf("%w: claims: %v", ErrInvalidCredential, err)
	}
	return g.claims(c.Subject, c.Email, c.Name, c.EmailVerified)
}

type googleTokenInfo struct {
	Audience        string `json:"aud"`
	AuthorizedParty string `json:"azp"`
}

// checkAudience rejects access tokens minted for any other client.
func (g *Google) checkAudience(ctx context.Context, accessToken string) error {
	if g.oauth.ClientID == "" {
		return ErrNotConfigured
	}
	u, err := url.Parse(g.tokeninfoURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch token info: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: tokeninfo status %d", ErrInvalidCredential, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("tokeninfo: unexpected status code %d", resp.StatusCode)
	}

	var info googleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("decode token info: %w", err)
	}
	if info.Audience != g.oauth.ClientID && info.AuthorizedParty != g.oauth.ClientID {
		g.log.Warn("google access token issued to another client", zap.String("aud", info.Audience))
		return fmt.Errorf("%w: token audience mismatch", ErrInvalidCredential)
	}
	return nil
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
}

func (g *Google) userinfo(ctx context.Context, tok *oauth2.Token) (Claims, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userinfoURL, nil)
	if err != nil {
		return Claims{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Claims{}, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Claims{}, fmt.Errorf("%w: userinfo status %d", ErrInvalidCredential, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Claims{}, fmt.Errorf("userinfo: unexpected status code %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Claims{}, fmt.Errorf("decode user info: %w", err)
	}
	return g.claims(info.ID, info.Email, info.Name, info.EmailVerified)
}

func (g *Google) claims(subject, email, name string, verified bool) (Claims, error) {
	if subject == "" || email == "" {
		return Claims{}, fmt.Errorf("%w: missing subject or email", ErrInvalidCredential)
	}
	g.log.Debug("google credential verified",
		zap.Bool("email_verified", verified),
	)
	return Claims{
		Provider:      ProviderGoogle,
		Subject:       subject,
		Email:         normalize.Email(email),
		EmailVerified: verified,
		Name:          normalize.Name(name),
	}, nil
}
