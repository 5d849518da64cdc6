package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AgentWorkforce/relay-broker/internal/credentials"
	"github.com/AgentWorkforce/relay-broker/internal/relayhttp"
)

// sessionTokenSource implements wsclient.TokenSource over the cached
// credential file, refreshing against the coordination service's
// session-refresh endpoint after every disconnect (spec.md §4.1).
type sessionTokenSource struct {
	client *relayhttp.Client
	store  *credentials.Store
	logger *slog.Logger

	mu    sync.RWMutex
	creds credentials.Credentials
}

// newSessionTokenSource loads any cached credentials from store,
// seeding them from apiKey if nothing is cached yet.
func newSessionTokenSource(client *relayhttp.Client, store *credentials.Store, apiKey string, logger *slog.Logger) *sessionTokenSource {
	creds, ok := store.Load()
	if !ok {
		creds = credentials.Credentials{APIKey: apiKey}
	}
	return &sessionTokenSource{client: client, store: store, logger: logger, creds: creds}
}

// Token returns the current bearer token.
func (t *sessionTokenSource) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.creds.APIKey
}

type sessionRefreshResponse struct {
	APIKey     string `json:"api_key"`
	AgentToken string `json:"agent_token"`
}

// Refresh asks the coordination service to rotate the cached session,
// persisting whatever it returns. If no agent identity has been
// cached yet (first run, before registration), there is nothing to
// refresh — registering a fresh workspace is out of scope here, so
// Refresh is a no-op in that case and the stale (possibly empty)
// token is retried, matching spec.md §4.1's "log and proceed with the
// stale token" failure mode.
func (t *sessionTokenSource) Refresh(ctx context.Context) error {
	t.mu.RLock()
	creds := t.creds
	t.mu.RUnlock()

	if creds.WorkspaceID == "" || creds.AgentID == "" {
		t.logger.Debug("skipping token refresh, no cached agent identity yet")
		return nil
	}

	resp, err := t.client.Post(ctx, "/v1/sessions/refresh", map[string]string{
		"workspace_id": creds.WorkspaceID,
		"agent_id":     creds.AgentID,
		"agent_token":  creds.AgentToken,
	}, relayhttp.RequestOptions{})
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}

	var body sessionRefreshResponse
	if err := json.Unmarshal(resp.Data, &body); err != nil {
		return fmt.Errorf("decode session refresh response: %w", err)
	}

	t.mu.Lock()
	if body.APIKey != "" {
		creds.APIKey = body.APIKey
	}
	if body.AgentToken != "" {
		creds.AgentToken = body.AgentToken
	}
	t.creds = creds
	t.mu.Unlock()

	if err := t.store.Save(creds); err != nil {
		t.logger.Warn("failed to persist refreshed credentials", "error", err)
	}
	return nil
}
