package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrGrant marks a failed client_credentials exchange.
var ErrGrant = errors.New("token grant failed")

// tokenEndpointPath is appended to the API base URL to form the token URL.
const tokenEndpointPath = "/oauth/token"

// defaultTokenTTL is assumed when the token endpoint returns no expiry.
const defaultTokenTTL = time.Hour

// Provider mints fresh access tokens.
type Provider interface {
	Mint(ctx context.Context) (*Token, error)
}

// GrantProvider performs the client_credentials grant against
// <baseURL>/oauth/token, delegating the exchange to
// golang.org/x/oauth2/clientcredentials. Credentials are sent in the request
// body, matching APIs that authenticate calls with an access_token query
// parameter rather than an Authorization header.
type GrantProvider struct {
	conf       clientcredentials.Config
	httpClient *http.Client
	params     func() url.Values
}

// NewGrantProvider builds a provider for the given API base URL and client
// credentials. params, when non-nil, is consulted on every mint and its
// values are sent along with the grant request.
func NewGrantProvider(baseURL, clientID, clientSecret string, httpClient *http.Client, params func() url.Values) *GrantProvider {
	return &GrantProvider{
		conf: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     strings.TrimSuffix(baseURL, "/") + tokenEndpointPath,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
		params:     params,
	}
}

// Mint exchanges the client credentials for a fresh token.
func (p *GrantProvider) Mint(ctx context.Context) (*Token, error) {
	conf := p.conf
	if p.params != nil {
		conf.EndpointParams = p.params()
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := conf.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGrant, err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(defaultTokenTTL)
	}

	claims := map[string]any{}
	if tok.TokenType != "" {
		claims["token_type"] = tok.TokenType
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		claims["scope"] = scope
	}

	return &Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   expiry,
		Claims:      claims,
	}, nil
}
