package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"bitcoin":{"usd":65432.1}}`))
	}))
	defer srv.Close()

	p := NewClient(srv.URL, nil).FetchPrice(context.Background())
	require.NotNil(t, p)
	assert.InDelta(t, 65432.1, *p, 1e-9)
}

func TestFetchPrice_FailuresReturnNil(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"rate limited", http.StatusTooManyRequests, `{"status":{"error_code":429}}`},
		{"malformed", http.StatusOK, `{"bitcoin":`},
		{"missing field", http.StatusOK, `{"ethereum":{"usd":3000}}`},
		{"zero price", http.StatusOK, `{"bitcoin":{"usd":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			assert.Nil(t, NewClient(srv.URL, nil).FetchPrice(context.Background()))
		})
	}
}

func TestFetchPrice_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.Nil(t, NewClient(url, nil).FetchPrice(context.Background()))
}

func TestNewClient_DefaultURL(t *testing.T) {
	assert.Equal(t, DefaultURL, NewClient("", nil).url)
}
