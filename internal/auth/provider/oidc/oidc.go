// Package oidc logs users in through any OpenID Connect issuer.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/jtaw5649/barforge-registry/internal/auth"
)

const providerName = "oidc"

// Config describes the relying party.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Provider implements provider.OAuthProvider with discovery and ID token verification.
type Provider struct {
	oauthConfig *oauth2.Config
	verifier    *gooidc.IDTokenVerifier
}

// New runs discovery against cfg.Issuer.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc: issuer, client id and redirect url are required")
	}
	op, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     op.Endpoint(),
			Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
		},
		verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

type claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

// ExchangeCode redeems code and verifies the returned ID token.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.Identity, error) {
	tok, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("oidc token exchange: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, errors.New("oidc: no id_token in token response")
	}
	idt, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("oidc id_token verification: %w", err)
	}
	var c claims
	if err := idt.Claims(&c); err != nil {
		return nil, fmt.Errorf("oidc claims: %w", err)
	}
	return identityFrom(c)
}

func identityFrom(c claims) (*auth.Identity, error) {
	if c.Subject == "" {
		return nil, errors.New("oidc: id_token without subject")
	}
	login := c.PreferredUsername
	if login == "" {
		login, _, _ = strings.Cut(c.Email, "@")
	}
	return &auth.Identity{
		Provider:    providerName,
		Subject:     c.Subject,
		Login:       login,
		DisplayName: c.Name,
		AvatarURL:   c.Picture,
		Email:       c.Email,
	}, nil
}
