// Package github logs users in with GitHub OAuth apps.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/jtaw5649/barforge-registry/internal/auth"
)

const (
	providerName   = "github"
	defaultUserAPI = "https://api.github.com/user"
)

// Config describes the OAuth app.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// UserAPI overrides the profile endpoint; empty means api.github.com.
	UserAPI string
	// Endpoint overrides the OAuth endpoint; zero means github.com.
	Endpoint oauth2.Endpoint
}

// Provider implements provider.OAuthProvider for GitHub.
type Provider struct {
	oauthConfig *oauth2.Config
	userAPI     string
}

// New validates cfg and builds the provider.
func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("github: client id, secret and redirect url are required")
	}
	ep := cfg.Endpoint
	if ep.AuthURL == "" {
		ep = oauthgithub.Endpoint
	}
	api := cfg.UserAPI
	if api == "" {
		api = defaultUserAPI
	}
	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes:       []string{"read:user"},
		},
		userAPI: api,
	}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

type ghUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// ExchangeCode redeems code and reads the authenticated user's profile.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.Identity, error) {
	tok, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("github token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userAPI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := p.oauthConfig.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("github user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("github user: status %d: %s", resp.StatusCode, body)
	}

	var u ghUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("github user decode: %w", err)
	}
	if u.ID == 0 {
		return nil, errors.New("github: user without id")
	}
	return &auth.Identity{
		Provider:    providerName,
		Subject:     strconv.FormatInt(u.ID, 10),
		Login:       u.Login,
		DisplayName: u.Name,
		AvatarURL:   u.AvatarURL,
		Email:       u.Email,
	}, nil
}
