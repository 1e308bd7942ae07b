package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// FileTokenSource reads the token from a local JSON file and refreshes it
// through the backend's OAuth2 token endpoint when it is close to expiry.
// The refreshed token is written back so the next process start does not
// need to refresh again.
type FileTokenSource struct {
	path string
	conf *oauth2.Config

	mu    sync.Mutex
	token *Token
}

// NewFileTokenSource creates a token source backed by the file at path.
// tokenURL is the backend's OAuth2 token endpoint; clientID identifies
// this app installation.
func NewFileTokenSource(path, tokenURL, clientID string) *FileTokenSource {
	return &FileTokenSource{
		path: path,
		conf: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
}

// Token returns a token, refreshing it if necessary.
func (s *FileTokenSource) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		tok, err := s.load()
		if err != nil {
			return nil, err
		}
		s.token = tok
	}

	if s.token.Valid() {
		return s.token, nil
	}
	return s.refreshLocked(ctx)
}

// ForceRefresh forcibly refreshes the token regardless of expiry.
func (s *FileTokenSource) ForceRefresh(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		tok, err := s.load()
		if err != nil {
			return nil, err
		}
		s.token = tok
	}
	return s.refreshLocked(ctx)
}

func (s *FileTokenSource) refreshLocked(ctx context.Context) (*Token, error) {
	if s.token.RefreshToken == "" {
		return nil, fmt.Errorf("missing refresh token; user must re-connect")
	}

	src := s.conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: s.token.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force the refresh grant
	})
	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	oldRefresh := s.token.RefreshToken
	s.token = &Token{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		Expiry:       fresh.Expiry,
	}
	if s.token.RefreshToken == "" {
		// Some servers omit the refresh token on rotation; keep the old one.
		s.token.RefreshToken = oldRefresh
	}

	if err := s.save(); err != nil {
		return nil, err
	}
	return s.token, nil
}

func (s *FileTokenSource) load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}

func (s *FileTokenSource) save() error {
	data, err := json.MarshalIndent(s.token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	// 0600: the file holds credentials
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// StaticTokenSource returns the same token forever; useful for API-key
// style deployments and tests.
type StaticTokenSource struct {
	AccessToken string
}

func (s *StaticTokenSource) Token(context.Context) (*Token, error) {
	return &Token{AccessToken: s.AccessToken}, nil
}

func (s *StaticTokenSource) ForceRefresh(context.Context) (*Token, error) {
	return nil, fmt.Errorf("static tokens cannot be refreshed; user must re-connect")
}
