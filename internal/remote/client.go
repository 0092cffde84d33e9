package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/karlfish/fishlog/internal/store"
)

// Client implements Store against a PostgREST-style backend: one endpoint per
// table, filters in the query string, JSON bodies both ways. The API key goes
// in both the apikey and Authorization headers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend client. baseURL is the REST root, without a
// trailing slash.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// sessionRow is the wire shape of one owned-session row. The session itself
// travels as a JSON document in the data column; the owner id and timestamps
// are lifted out for server-side filtering.
type sessionRow struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Data         json.RawMessage `json:"data"`
	LastModified int64           `json:"last_modified"`
}

// FetchProfiles retrieves all visible user profiles.
func (c *Client) FetchProfiles(ctx context.Context) ([]store.SharedProfile, error) {
	var profiles []store.SharedProfile
	if err := c.get(ctx, "profiles", nil, &profiles); err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}
	return profiles, nil
}

// FetchSharedSessions retrieves sessions other users have shared.
func (c *Client) FetchSharedSessions(ctx context.Context) ([]store.SharedSession, error) {
	var sessions []store.SharedSession
	if err := c.get(ctx, "shared_sessions", nil, &sessions); err != nil {
		return nil, fmt.Errorf("fetch shared sessions: %w", err)
	}
	return sessions, nil
}

// FetchRelationships retrieves the friendship edges visible to this user.
func (c *Client) FetchRelationships(ctx context.Context) ([]store.RelationshipEdge, error) {
	var edges []store.RelationshipEdge
	if err := c.get(ctx, "relationships", nil, &edges); err != nil {
		return nil, fmt.Errorf("fetch relationships: %w", err)
	}
	return edges, nil
}

// FetchPermissions retrieves per-friend visibility grants.
func (c *Client) FetchPermissions(ctx context.Context) ([]store.PermissionEdge, error) {
	var edges []store.PermissionEdge
	if err := c.get(ctx, "session_permissions", nil, &edges); err != nil {
		return nil, fmt.Errorf("fetch permissions: %w", err)
	}
	return edges, nil
}

// OwnedSessions retrieves the sessions the backend holds for an owner.
func (c *Client) OwnedSessions(ctx context.Context, ownerID string) ([]store.Session, error) {
	params := url.Values{}
	params.Set("user_id", "eq."+ownerID)

	var rows []sessionRow
	if err := c.get(ctx, "fishing_sessions", params, &rows); err != nil {
		return nil, fmt.Errorf("fetch owned sessions: %w", err)
	}

	sessions := make([]store.Session, 0, len(rows))
	for _, row := range rows {
		var s store.Session
		if err := json.Unmarshal(row.Data, &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", row.ID, err)
		}
		s.ID = row.ID
		s.OwnerID = row.UserID
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// UpsertSessions writes an owner's sessions, replacing rows with matching ids.
func (c *Client) UpsertSessions(ctx context.Context, ownerID string, sessions []store.Session) error {
	rows := make([]sessionRow, 0, len(sessions))
	for _, s := range sessions {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", s.ID, err)
		}
		rows = append(rows, sessionRow{
			ID:           s.ID,
			UserID:       ownerID,
			Data:         data,
			LastModified: s.LastModified,
		})
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "fishing_sessions", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upsert sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upsert sessions: backend returned status %d", resp.StatusCode)
	}
	return nil
}

// DeleteOwned removes everything the backend holds for an owner.
func (c *Client) DeleteOwned(ctx context.Context, ownerID string) error {
	params := url.Values{}
	params.Set("user_id", "eq."+ownerID)

	req, err := c.newRequest(ctx, http.MethodDelete, "fishing_sessions", params, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete owned sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete owned sessions: backend returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, table string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, table, params, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, table string, params url.Values, body *bytes.Reader) (*http.Request, error) {
	requestURL := fmt.Sprintf("%s/%s", c.baseURL, table)
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, requestURL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, requestURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}
