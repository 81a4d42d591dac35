package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/worldloom/internal/api"
	"github.com/dmitrijs2005/worldloom/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/worldloom/internal/common"
	"github.com/dmitrijs2005/worldloom/internal/model"
)

// HTTPClient implements Client against the JSON API. Tokens are persisted in
// the metadata repository so a restarted client stays logged in; a 401 on an
// authenticated call triggers one refresh-and-retry before giving up.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	metadata metadata.Repository

	mu sync.Mutex // serializes token refresh
}

func NewHTTPClient(baseURL string, timeout time.Duration, meta metadata.Repository) *HTTPClient {
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		metadata: meta,
	}
}

func (c *HTTPClient) Register(ctx context.Context, username, password string) error {
	var tokens api.TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register",
		&api.RegisterRequest{Username: username, Password: password}, &tokens, false)
	if err != nil {
		return err
	}
	return c.saveTokens(ctx, &tokens)
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) error {
	var tokens api.TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login",
		&api.LoginRequest{Username: username, Password: password}, &tokens, false)
	if err != nil {
		return err
	}
	return c.saveTokens(ctx, &tokens)
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	if err := c.metadata.Delete(ctx, metadata.KeyAccessToken); err != nil {
		return err
	}
	return c.metadata.Delete(ctx, metadata.KeyRefreshToken)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil, false)
}

func (c *HTTPClient) Create(ctx context.Context, t model.EntityType, req *api.CreateRequest) (*api.CreateResponse, error) {
	var resp api.CreateResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync/"+t.String(), req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Update(ctx context.Context, t model.EntityType, remoteID string, req *api.UpdateRequest) (*api.UpdateResponse, error) {
	var resp api.UpdateResponse
	path := "/api/v1/sync/" + t.String() + "/" + url.PathEscape(remoteID)
	if err := c.do(ctx, http.MethodPut, path, req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Delete(ctx context.Context, t model.EntityType, remoteID string, req *api.DeleteRequest) (*api.UpdateResponse, error) {
	var resp api.UpdateResponse
	path := "/api/v1/sync/" + t.String() + "/" + url.PathEscape(remoteID)
	if err := c.do(ctx, http.MethodDelete, path, req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Pull(ctx context.Context, t model.EntityType, since int64, projectID string, limit int) (*api.PullResponse, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp api.PullResponse
	path := "/api/v1/sync/" + t.String() + "?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Presign(ctx context.Context) (*api.PresignResponse, error) {
	var resp api.PresignResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/attachments/presign", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	status, data, err := c.roundTrip(ctx, method, path, body, authed)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && authed {
		if err := c.refreshTokens(ctx); err != nil {
			return err
		}
		status, data, err = c.roundTrip(ctx, method, path, body, authed)
		if err != nil {
			return err
		}
	}

	if status != http.StatusOK {
		return decodeError(status, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, body any, authed bool) (int, []byte, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if authed {
		token, err := c.metadata.Get(ctx, metadata.KeyAccessToken)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+string(token))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (c *HTTPClient) refreshTokens(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	refresh, err := c.metadata.Get(ctx, metadata.KeyRefreshToken)
	if err != nil {
		return err
	}
	if len(refresh) == 0 {
		return common.ErrorUnauthorized
	}

	status, data, err := c.roundTrip(ctx, http.MethodPost, "/api/v1/auth/refresh",
		&api.RefreshRequest{RefreshToken: string(refresh)}, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return common.ErrorUnauthorized
	}

	var tokens api.TokenResponse
	if err := json.Unmarshal(data, &tokens); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	return c.saveTokens(ctx, &tokens)
}

func (c *HTTPClient) saveTokens(ctx context.Context, tokens *api.TokenResponse) error {
	if err := c.metadata.Set(ctx, metadata.KeyAccessToken, []byte(tokens.AccessToken)); err != nil {
		return err
	}
	return c.metadata.Set(ctx, metadata.KeyRefreshToken, []byte(tokens.RefreshToken))
}

// decodeError maps non-2xx responses to the shared error taxonomy.
func decodeError(status int, data []byte) error {
	switch status {
	case http.StatusConflict:
		var conflict api.ConflictResponse
		if err := json.Unmarshal(data, &conflict); err == nil && conflict.Row.ID != "" {
			return &ConflictError{Row: conflict.Row}
		}
		return common.ErrorAlreadyExists
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", errorMessage(data), common.ErrorValidation)
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	default:
		return fmt.Errorf("server returned %d: %s", status, errorMessage(data))
	}
}

func errorMessage(data []byte) string {
	var e api.ErrorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(data))
}
