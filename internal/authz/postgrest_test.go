package authz

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeport/stakeport/pkg/types"
)

const testAPIKey = "anon-key"

func TestPostgRESTStore_FindByAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/users_authorized", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "*,user_types(*)", q.Get("select"))
		assert.Equal(t, "eq."+lowerAddr, q.Get("wallet_address"))
		assert.Equal(t, "1", q.Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{
			"id": 7,
			"wallet_address": "`+lowerAddr+`",
			"first_name": "Ada",
			"last_name": "Lovelace",
			"status": "Active",
			"user_type_id": 1,
			"user_types": {"id": 1, "name": "admin", "is_admin": true},
			"created_at": "2024-03-01T10:00:00Z"
		}]`)
	}))
	defer srv.Close()

	store := NewPostgRESTStore(srv.URL, testAPIKey)
	rec, err := store.FindByAddress(context.Background(), lowerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, types.UserStatusActive, rec.Status)
	require.NotNil(t, rec.UserType)
	assert.True(t, rec.UserType.IsAdmin)
	assert.Equal(t, 2024, rec.CreatedAt.Year())
}

func TestPostgRESTStore_EmptyResultIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := NewPostgRESTStore(srv.URL, testAPIKey).FindByAddress(context.Background(), lowerAddr)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPostgRESTStore_HTTPErrors(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"boom"}`, code)
		}))

		_, err := NewPostgRESTStore(srv.URL, testAPIKey).FindByAddress(context.Background(), lowerAddr)
		srv.Close()

		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrStore)
		assert.NotErrorIs(t, err, types.ErrNotFound)
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, code, httpErr.StatusCode)
	}
}

func TestPostgRESTStore_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	_, err := NewPostgRESTStore(srv.URL, testAPIKey).FindByAddress(context.Background(), lowerAddr)
	assert.ErrorIs(t, err, types.ErrStore)
}

func TestPostgRESTStore_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gate := NewGate(NewPostgRESTStore(url, testAPIKey, WithRequestTimeout(time.Second)), nil)
	assert.Equal(t, Access{}, gate.CheckAccess(context.Background(), lowerAddr))
}

func TestPostgRESTStore_Insert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, lowerAddr, body["wallet_address"])
		assert.Equal(t, "Active", body["status"])
		_, hasType := body["user_type_id"]
		assert.False(t, hasType, "zero user type must be omitted")

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id": 1, "wallet_address": "`+lowerAddr+`", "status": "Active"}]`)
	}))
	defer srv.Close()

	rec, err := NewPostgRESTStore(srv.URL, testAPIKey).Insert(context.Background(), types.AuthorizationRecord{
		WalletAddress: lowerAddr,
		Status:        types.UserStatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
}

func TestPostgRESTStore_UpdateStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq."+lowerAddr, r.URL.Query().Get("wallet_address"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"status": "Suspended"}, body)

		_, _ = io.WriteString(w, `[{"wallet_address": "`+lowerAddr+`", "status": "Suspended"}]`)
	}))
	defer srv.Close()

	rec, err := NewPostgRESTStore(srv.URL, testAPIKey).UpdateStatus(context.Background(), lowerAddr, types.UserStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, types.UserStatusSuspended, rec.Status)
}

func TestPostgRESTStore_UpdateMissingRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := NewPostgRESTStore(srv.URL, testAPIKey).UpdateUserType(context.Background(), lowerAddr, 2)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPostgRESTStore_ListAndTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/users_authorized":
			assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
			_, _ = io.WriteString(w, `[{"wallet_address": "0x01"}, {"wallet_address": "0x02"}]`)
		case "/rest/v1/user_types":
			assert.Equal(t, "id.asc", r.URL.Query().Get("order"))
			_, _ = io.WriteString(w, `[{"id": 1, "name": "admin", "is_admin": true}]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := NewPostgRESTStore(srv.URL+"/", testAPIKey)
	users, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)

	uts, err := store.UserTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, uts, 1)
	assert.True(t, uts[0].IsAdmin)
}

func TestPostgRESTStore_RateLimitHonoursContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	store := NewPostgRESTStore(srv.URL, testAPIKey, WithRateLimit(0.1, 1))

	_, err := store.FindByAddress(context.Background(), lowerAddr)
	assert.ErrorIs(t, err, types.ErrNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = store.FindByAddress(ctx, lowerAddr)
	assert.ErrorIs(t, err, types.ErrStore)
	assert.Equal(t, int32(1), hits.Load())
}
