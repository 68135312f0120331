package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
)

const requestTimeout = 10 * time.Second

// User is the account behind the current access token.
type User struct {
	ID        int64  `json:"id"`
	DiscordID string `json:"discord_id,omitempty"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
	IsGuest   bool   `json:"is_guest"`
}

// Stats is the per-player match record kept by the server.
type Stats struct {
	Total  int `json:"total"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
}

type refreshResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type ticketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int64  `json:"expires_in"`
}

// Client talks to the identity service: it exchanges a long-lived refresh
// token for short-lived access tokens and mints one-shot connection tickets.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	httpClient *http.Client

	mu           sync.Mutex
	user         *User
	accessToken  string
	refreshToken string
}

func NewClient(logger *slog.Logger, baseURL, refreshToken string) *Client {
	return &Client{
		logger:       logger.With("component", "auth"),
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: requestTimeout},
		refreshToken: refreshToken,
	}
}

// RefreshSession rotates the refresh token into a fresh access token. A
// rejected token clears the cached session instead of failing: the client
// then runs unauthenticated and connects ticketless.
func (that *Client) RefreshSession(ctx context.Context) error {
	that.mu.Lock()
	refreshToken := that.refreshToken
	that.mu.Unlock()

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, that.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := that.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		that.logger.Debug("session refresh rejected", "status", resp.StatusCode)
		that.clearSession()
		return nil
	}

	var payload refreshResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}

	that.mu.Lock()
	that.user = &payload.User
	that.accessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		that.refreshToken = payload.RefreshToken
	}
	that.mu.Unlock()

	return nil
}

// Ticket mints a short-lived credential authorizing one connection attempt.
// Returns the empty string, without error, when no account is available:
// the server decides whether to accept a ticketless connection.
func (that *Client) Ticket(ctx context.Context) (string, error) {
	token, err := that.ensureAccessToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, that.baseURL+"/auth/ws-ticket", http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to build ticket request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := that.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ticket request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		that.logger.Debug("ticket request rejected", "status", resp.StatusCode)
		return "", nil
	}

	var payload ticketResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode ticket response: %w", err)
	}

	return payload.Ticket, nil
}

// Stats loads the player's match record. Requires an account.
func (that *Client) Stats(ctx context.Context) (*Stats, error) {
	token, err := that.ensureAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperror.ErrNoAccessToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, that.baseURL+"/api/stats", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := that.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats request rejected: status %d", resp.StatusCode)
	}

	var stats Stats
	if err = json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats response: %w", err)
	}

	return &stats, nil
}

// Logout revokes the session server-side and clears the cached tokens.
func (that *Client) Logout(ctx context.Context) error {
	that.mu.Lock()
	token := that.accessToken
	that.mu.Unlock()

	defer that.clearSession()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, that.baseURL+"/auth/logout", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build logout request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := that.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()

	return nil
}

// CurrentUser returns the authenticated account, or nil when running as a
// plain guest.
func (that *Client) CurrentUser() *User {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.user == nil {
		return nil
	}

	user := *that.user
	return &user
}

func (that *Client) ensureAccessToken(ctx context.Context) (string, error) {
	that.mu.Lock()
	token := that.accessToken
	that.mu.Unlock()

	if token != "" {
		return token, nil
	}

	if err := that.RefreshSession(ctx); err != nil {
		return "", fmt.Errorf("failed to refresh session: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	return that.accessToken, nil
}

func (that *Client) clearSession() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.user = nil
	that.accessToken = ""
}
