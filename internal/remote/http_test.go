package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reptrack/backend/internal/models"
)

func TestFetchAllInjectsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/exercises", r.URL.Path)
		json.NewEncoder(w).Encode([]*models.Exercise{
			{LocalID: "l-1", ServerID: "srv-1", Title: "Plank"},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Token: "tok-123"})

	exercises, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, exercises, 1)
	assert.Equal(t, "srv-1", exercises[0].ServerID)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestCreateReturnsCanonicalCopy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var in models.Exercise
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		in.ServerID = "srv-42"
		json.NewEncoder(w).Encode(&in)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})

	created, err := c.Create(context.Background(), &models.Exercise{LocalID: "l-7", Title: "Row"})
	require.NoError(t, err)
	assert.Equal(t, "srv-42", created.ServerID)
	assert.Equal(t, "l-7", created.LocalID, "server echoes the local id")
}

func TestMutateTargetsRecordByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/exercises/srv-42", r.URL.Path)

		var patch Patch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.Equal(t, 1, patch.ThanksDelta)

		json.NewEncoder(w).Encode(&models.Exercise{ServerID: "srv-42", ThanksCount: 8})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})

	updated, err := c.Mutate(context.Background(), "srv-42", Patch{ThanksDelta: 1})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.ThanksCount)
}

func TestErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/exercises/reject":
			http.Error(w, "invalid payload", http.StatusUnprocessableEntity)
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})

	// 4xx: application-class.
	_, err := c.Mutate(context.Background(), "reject", Patch{ThanksDelta: 1})
	require.Error(t, err)
	assert.False(t, IsConnectivityError(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid payload")

	// 5xx: connectivity-class.
	_, err = c.FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectivityError(err))

	// Unreachable host: connectivity-class.
	srv.Close()
	_, err = c.FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectivityError(err))
}

func TestIsConnectivityErrorNil(t *testing.T) {
	assert.False(t, IsConnectivityError(nil))
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	assert.NoError(t, c.Ping(context.Background()))
}
