package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/stakeport/stakeport/pkg/types"
)

const (
	restPrefix     = "/rest/v1"
	usersTable     = "users_authorized"
	userTypesTable = "user_types"
	userSelect     = "*,user_types(*)"
)

// HTTPError is a non-2xx response from the REST store.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Unwrap classifies every HTTP failure as a store error.
func (e *HTTPError) Unwrap() error { return types.ErrStore }

// PostgRESTStore talks to the allow-list tables over a PostgREST endpoint
// (for example a Supabase project) with a fixed API key.
type PostgRESTStore struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// PostgRESTOption configures a PostgRESTStore
type PostgRESTOption func(*PostgRESTStore)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) PostgRESTOption {
	return func(s *PostgRESTStore) { s.http = c }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) PostgRESTOption {
	return func(s *PostgRESTStore) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) PostgRESTOption {
	return func(s *PostgRESTStore) {
		if d > 0 {
			s.http.Timeout = d
		}
	}
}

// NewPostgRESTStore creates a store for the project at baseURL.
func NewPostgRESTStore(baseURL, apiKey string, opts ...PostgRESTOption) *PostgRESTStore {
	s := &PostgRESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByAddress implements Store.
func (s *PostgRESTStore) FindByAddress(ctx context.Context, address string) (*types.AuthorizationRecord, error) {
	q := url.Values{}
	q.Set("select", userSelect)
	q.Set("wallet_address", "eq."+address)
	q.Set("limit", "1")

	var recs []types.AuthorizationRecord
	if err := s.do(ctx, http.MethodGet, usersTable, q, nil, &recs); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, types.ErrNotFound
	}
	return &recs[0], nil
}

// Insert implements Store.
func (s *PostgRESTStore) Insert(ctx context.Context, rec types.AuthorizationRecord) (*types.AuthorizationRecord, error) {
	body := map[string]any{
		"wallet_address": rec.WalletAddress,
		"first_name":     rec.FirstName,
		"last_name":      rec.LastName,
		"status":         rec.Status,
	}
	if rec.UserTypeID != 0 {
		body["user_type_id"] = rec.UserTypeID
	}
	q := url.Values{}
	q.Set("select", userSelect)
	return s.single(ctx, http.MethodPost, q, body)
}

// UpdateStatus implements Store.
func (s *PostgRESTStore) UpdateStatus(ctx context.Context, address string, status types.UserStatus) (*types.AuthorizationRecord, error) {
	return s.patch(ctx, address, map[string]any{"status": status})
}

// UpdateUserType implements Store.
func (s *PostgRESTStore) UpdateUserType(ctx context.Context, address string, userTypeID int64) (*types.AuthorizationRecord, error) {
	return s.patch(ctx, address, map[string]any{"user_type_id": userTypeID})
}

func (s *PostgRESTStore) patch(ctx context.Context, address string, body map[string]any) (*types.AuthorizationRecord, error) {
	q := url.Values{}
	q.Set("select", userSelect)
	q.Set("wallet_address", "eq."+address)
	return s.single(ctx, http.MethodPatch, q, body)
}

// single runs a write that returns the affected rows and expects one.
func (s *PostgRESTStore) single(ctx context.Context, method string, q url.Values, body any) (*types.AuthorizationRecord, error) {
	var recs []types.AuthorizationRecord
	if err := s.do(ctx, method, usersTable, q, body, &recs); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, types.ErrNotFound
	}
	return &recs[0], nil
}

// List implements Store.
func (s *PostgRESTStore) List(ctx context.Context) ([]types.AuthorizationRecord, error) {
	q := url.Values{}
	q.Set("select", userSelect)
	q.Set("order", "created_at.desc")

	var recs []types.AuthorizationRecord
	if err := s.do(ctx, http.MethodGet, usersTable, q, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// UserTypes implements Store.
func (s *PostgRESTStore) UserTypes(ctx context.Context) ([]types.UserType, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "id.asc")

	var out []types.UserType
	if err := s.do(ctx, http.MethodGet, userTypesTable, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgRESTStore) do(ctx context.Context, method, table string, q url.Values, body, out any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit: %v", types.ErrStore, err)
		}
	}

	endpoint := s.baseURL + restPrefix + "/" + table
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode body: %v", types.ErrStore, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStore, err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", types.ErrStore, method, table, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", types.ErrStore, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Method: method, URL: restPrefix + "/" + table, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", types.ErrStore, err)
	}
	return nil
}
