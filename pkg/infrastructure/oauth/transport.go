// Package oauth authenticates requests to the FitGlue backend. Tokens are
// kept in a local token file and refreshed through the standard OAuth2
// refresh flow.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	shared "github.com/ripixel/fitglue-sync/pkg"
)

// Token is the OAuth token structure we care about
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// expiryLeeway refreshes tokens slightly before their nominal expiry so
// an in-flight request does not race the deadline.
const expiryLeeway = 30 * time.Second

// Valid reports whether the access token is present and not about to expire.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || time.Now().Add(expiryLeeway).Before(t.Expiry)
}

// TokenSource returns a valid token.
// It is safe for concurrent use by multiple goroutines.
type TokenSource interface {
	Token(context.Context) (*Token, error)
	ForceRefresh(context.Context) (*Token, error)
}

// Transport is an http.RoundTripper that authenticates all requests
// using the provided TokenSource.
type Transport struct {
	// Source supplies the token to be used.
	Source TokenSource

	// Base is the base RoundTripper used to make the actual HTTP requests.
	// If nil, http.DefaultTransport is used.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// Proactive check happens inside the token source.
	ctx := req.Context()
	token, err := t.Source.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth: cannot get token: %w", err)
	}

	req2 := cloneRequest(req)
	req2.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := base.RoundTrip(req2)
	if err != nil {
		return nil, err
	}

	// Reactive retry on 401: the server may have revoked the token early.
	if resp.StatusCode == http.StatusUnauthorized {
		// Drain body to allow connection reuse
		resp.Body.Close()

		slog.Warn("Got 401 Unauthorized, attempting force refresh", "url", req.URL.String())

		token, err = t.Source.ForceRefresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("oauth: force refresh failed: %w", err)
		}

		// The first attempt consumed the body; rewind it or the retried
		// POST goes out empty.
		retry := cloneRequest(req)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("oauth: rewind request body: %w", err)
			}
			retry.Body = body
		}
		retry.Header.Set("Authorization", "Bearer "+token.AccessToken)
		return base.RoundTrip(retry)
	}

	return resp, nil
}

// cloneRequest returns a clone of the provided *http.Request.
// The clone is a shallow copy of the struct and its Header map.
func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = make(http.Header, len(r.Header))
	for k, s := range r.Header {
		r2.Header[k] = append([]string(nil), s...)
	}
	return r2
}

// NewHTTPClient returns an *http.Client whose requests carry tokens from
// source, with the standard timeout.
func NewHTTPClient(source TokenSource) *http.Client {
	return &http.Client{
		Transport: &Transport{Source: source},
		Timeout:   shared.DefaultHTTPTimeout,
	}
}
