// Package relay implements the external interfaces of spec.md §6: an
// HTTP/JSON directory client for publishing/fetching identity public keys
// and establishing session ids with the relay, plus the transport event
// vocabulary (socket event names) C7 drives a KEP round trip over.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"e2eecore/internal/coreerr"
	"e2eecore/pkg/wire"
)

// DirectoryClient wraps an *http.Client against the relay's two directory
// endpoints of spec.md §6.
type DirectoryClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewDirectoryClient(baseURL string) *DirectoryClient {
	return &DirectoryClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type getKeysResponse struct {
	PublicIdentityKeyJWK wire.PublicJWK `json:"publicIdentityKeyJWK"`
}

// GetIdentityKey implements GET /keys/{userId}.
func (c *DirectoryClient) GetIdentityKey(ctx context.Context, userID string) (wire.PublicJWK, error) {
	url := fmt.Sprintf("%s/keys/%s", c.BaseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return wire.PublicJWK{}, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return wire.PublicJWK{}, coreerr.Wrap(coreerr.KindPeerUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return wire.PublicJWK{}, coreerr.New(coreerr.KindPeerUnreachable)
	}
	var parsed getKeysResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return wire.PublicJWK{}, coreerr.Wrap(coreerr.KindIntegrity, err)
	}
	return parsed.PublicIdentityKeyJWK, nil
}

type createSessionRequest struct {
	UserID1 string `json:"userId1"`
	UserID2 string `json:"userId2"`
}

// CreateSessionResponse mirrors POST /sessions's response body.
type CreateSessionResponse struct {
	Session struct {
		SessionID string `json:"sessionId"`
	} `json:"session"`
	IsNew bool `json:"isNew"`
}

// CreateSession implements POST /sessions: the relay computes the canonical
// session id the same way clients do, so both ends agree (spec.md §6).
func (c *DirectoryClient) CreateSession(ctx context.Context, userID1, userID2 string) (CreateSessionResponse, error) {
	body, err := json.Marshal(createSessionRequest{UserID1: userID1, UserID2: userID2})
	if err != nil {
		return CreateSessionResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return CreateSessionResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return CreateSessionResponse{}, coreerr.Wrap(coreerr.KindPeerUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return CreateSessionResponse{}, coreerr.New(coreerr.KindPeerUnreachable)
	}
	var parsed CreateSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CreateSessionResponse{}, coreerr.Wrap(coreerr.KindIntegrity, err)
	}
	return parsed, nil
}
