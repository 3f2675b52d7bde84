package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeport/stakeport/pkg/types"
)

func TestResendMailer_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/emails"), "path %s", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`)
	}))
	defer srv.Close()

	m := NewResendMailer("re_test", "Stakeport <noreply@example.com>")
	require.NoError(t, m.SetBaseURL(srv.URL+"/"))

	err := m.Send(context.Background(), Message{
		To:      []string{"ops@example.com"},
		Subject: "hello",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Stakeport <noreply@example.com>", got["from"])
	assert.Equal(t, "<p>hi</p>", got["html"])
	headers, ok := got["headers"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, headers["X-Entity-Ref-ID"])
}

func TestResendMailer_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"statusCode":422,"name":"validation_error","message":"Invalid from field"}`)
	}))
	defer srv.Close()

	m := NewResendMailer("re_test", "bad")
	require.NoError(t, m.SetBaseURL(srv.URL+"/"))

	err := m.Send(context.Background(), Message{To: []string{"ops@example.com"}, Subject: "x", HTML: "y"})
	var derr *types.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "resend", derr.Transport)
	assert.Contains(t, derr.Diagnostic, "Invalid from field")
}
