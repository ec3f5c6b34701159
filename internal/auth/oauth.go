// Package auth runs the interactive authorization-code flow against the
// telemetry provider and keeps the resulting athlete token fresh. The
// server authenticates with client credentials instead; this package
// exists for the CLI, which acts on behalf of a single athlete.
package auth

import (
	"fmt"

	"golang.org/x/oauth2"

	"runstream/internal/config"
)

// Scopes grant read access to activity summaries and their streams. The
// provider expects the comma-joined form inside one scope value.
var Scopes = []string{"read,activity:read_all"}

// NewOAuthConfig builds the authorization-code config from provider
// settings. The redirect points at the local callback server.
func NewOAuthConfig(p config.ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
		RedirectURL: fmt.Sprintf("http://localhost:%d/callback", CallbackPort),
		Scopes:      Scopes,
	}
}

// Result is a completed authorization: the token plus the athlete it
// belongs to.
type Result struct {
	Token     *oauth2.Token
	AthleteID int64
}

// athleteFromToken pulls the athlete identifier the provider embeds in
// the token response extras. Zero when the provider sent none.
func athleteFromToken(token *oauth2.Token) int64 {
	athlete, ok := token.Extra("athlete").(map[string]any)
	if !ok {
		return 0
	}
	id, ok := athlete["id"].(float64)
	if !ok {
		return 0
	}
	return int64(id)
}
