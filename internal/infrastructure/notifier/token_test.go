package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSource_Refresh(t *testing.T) {
	t.Run("stores the access token from the client-credentials grant", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "txn-svc", r.PostForm.Get("client_id"))
			assert.Equal(t, "hunter2", r.PostForm.Get("client_secret"))
			w.Write([]byte(`{"access_token":"tok-123"}`))
		}))
		defer srv.Close()

		ts := NewTokenSource(srv.URL, "txn-svc", "hunter2", time.Minute)
		require.NoError(t, ts.Refresh(context.Background()))
		assert.Equal(t, "tok-123", ts.Token())
	})

	t.Run("clears the cached token when the endpoint fails", func(t *testing.T) {
		ok := true
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok {
				w.Write([]byte(`{"access_token":"tok-123"}`))
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		ts := NewTokenSource(srv.URL, "txn-svc", "hunter2", time.Minute)
		require.NoError(t, ts.Refresh(context.Background()))
		require.Equal(t, "tok-123", ts.Token())

		ok = false
		err := ts.Refresh(context.Background())
		assert.Error(t, err)
		assert.Empty(t, ts.Token(), "stale token must not be presented downstream")
	})

	t.Run("no-op without a token endpoint", func(t *testing.T) {
		ts := NewTokenSource("", "", "", time.Minute)
		require.NoError(t, ts.Refresh(context.Background()))
		assert.Empty(t, ts.Token())
	})
}

func TestClient_SendEmail(t *testing.T) {
	t.Run("attaches the bearer token when one is cached", func(t *testing.T) {
		tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"tok-123"}`))
		}))
		defer tokenSrv.Close()

		var gotAuth, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		ts := NewTokenSource(tokenSrv.URL, "txn-svc", "hunter2", time.Minute)
		require.NoError(t, ts.Refresh(context.Background()))

		client := NewClient(srv.URL, time.Second, ts)
		err := client.SendEmail(context.Background(), Request{UserID: "u1", Type: TypeEmail, Message: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-123", gotAuth)
		assert.Equal(t, "/notifications/send-email", gotPath)
	})

	t.Run("4xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second, NewTokenSource("", "", "", time.Minute))
		err := client.SendEmail(context.Background(), Request{UserID: "u1", Type: TypeEmail, Message: "hi"})
		assert.Error(t, err)
	})
}
