package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/passman/vault/internal/vault"
)

func TestExecuteHTTPAPIToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("token-abc123xyz used"))
	}))
	defer srv.Close()

	secret := vault.APITokenSecret{Token: "abc123xyz"}
	resp, err := ExecuteHTTP(secret, HTTPRequestInput{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "Bearer abc123xyz", gotAuth)
	require.Equal(t, 200, resp.Status)
	require.Contains(t, resp.Body, "[REDACTED]")
	require.NotContains(t, resp.Body, "abc123xyz")
}

func TestExecuteHTTPCallerHeaderWins(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := vault.APITokenSecret{Token: "abc123xyz"}
	_, err := ExecuteHTTP(secret, HTTPRequestInput{
		Method:  "GET",
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Custom caller-value"},
	})
	require.NoError(t, err)
	require.Equal(t, "Custom caller-value", gotAuth)
}

func TestExecuteHTTPBasicAuth(t *testing.T) {
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := vault.PasswordSecret{Username: "alice", Password: "hunter2pw"}
	_, err := ExecuteHTTP(secret, HTTPRequestInput{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "alice", user)
	require.Equal(t, "hunter2pw", pass)
}

func TestExecuteHTTPUnsupportedKind(t *testing.T) {
	_, err := ExecuteHTTP(vault.CustomSecret{}, HTTPRequestInput{Method: "GET", URL: "http://example.com"})
	require.Error(t, err)
}

func TestExecuteHTTPBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := vault.APITokenSecret{Token: "tok-value-123"}
	_, err := ExecuteHTTP(secret, HTTPRequestInput{Method: "POST", URL: srv.URL, Body: "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello", gotBody)
}
