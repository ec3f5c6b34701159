package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"runstream/internal/config"
)

// refreshSlack refreshes tokens this far before their stated expiry so a
// request never races the deadline.
const refreshSlack = 60 * time.Second

// ErrNoToken means the athlete has not run the authorization flow yet.
var ErrNoToken = errors.New("no stored token; run the auth command first")

// TokenSource refreshes the athlete token as needed and notifies
// onRefresh with every new token so callers can write it through to disk.
type TokenSource struct {
	config    *oauth2.Config
	token     *oauth2.Token
	onRefresh func(*oauth2.Token) error
	mu        sync.Mutex
}

// NewTokenSource wraps a stored token. onRefresh may be nil.
func NewTokenSource(cfg *oauth2.Config, token *oauth2.Token, onRefresh func(*oauth2.Token) error) *TokenSource {
	return &TokenSource{config: cfg, token: token, onRefresh: onRefresh}
}

// Token returns a valid token, refreshing through the provider when the
// current one is inside the slack window.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if time.Until(ts.token.Expiry) > refreshSlack {
		return ts.token, nil
	}

	fresh, err := ts.config.TokenSource(context.Background(), ts.token).Token()
	if err != nil {
		return nil, err
	}
	if ts.onRefresh != nil {
		if err := ts.onRefresh(fresh); err != nil {
			return nil, err
		}
	}
	ts.token = fresh
	return fresh, nil
}

// storedToken is the on-disk layout under the config directory.
type storedToken struct {
	AthleteID    int64     `json:"athlete_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// TokenPath returns where the CLI keeps the athlete token.
func TokenPath() (string, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token.json"), nil
}

// SaveToken persists the authorization result, mode 0600.
func SaveToken(res *Result) error {
	path, err := TokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(storedToken{
		AthleteID:    res.AthleteID,
		AccessToken:  res.Token.AccessToken,
		RefreshToken: res.Token.RefreshToken,
		Expiry:       res.Token.Expiry,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// LoadToken reads the stored authorization. ErrNoToken when absent.
func LoadToken() (*Result, error) {
	path, err := TokenPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding token file: %w", err)
	}
	return &Result{
		AthleteID: st.AthleteID,
		Token: &oauth2.Token{
			AccessToken:  st.AccessToken,
			RefreshToken: st.RefreshToken,
			Expiry:       st.Expiry,
		},
	}, nil
}
