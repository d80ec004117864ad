package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLabels(t *testing.T) {
	var got []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/owner/repo/issues/7/labels", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `[{"name":"UX BUG"}]`)
	})

	client, _ := newTestClient(t, handler)
	err := client.AddLabels(context.Background(), "owner", "repo", 7, []string{"UX BUG"})

	require.NoError(t, err)
	assert.Equal(t, []string{"UX BUG"}, got)
}

func TestAddLabels_Empty(t *testing.T) {
	handler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty label list")
	})

	client, _ := newTestClient(t, handler)
	require.NoError(t, client.AddLabels(context.Background(), "owner", "repo", 7, nil))
}

func TestAddLabels_Forbidden(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"Resource not accessible by integration"}`)
	})

	client, _ := newTestClient(t, handler)
	err := client.AddLabels(context.Background(), "owner", "repo", 7, []string{"UX BUG"})

	var upErr *driven.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusForbidden, upErr.StatusCode)
}

func TestEnsureLabels_CreatesMissing(t *testing.T) {
	var mu sync.Mutex
	var created []map[string]string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/owner/repo/labels/UX BUG":
			fmt.Fprint(w, `{"name":"UX BUG","color":"d73a4a"}`)
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/repos/owner/repo/labels":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			created = append(created, body)
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(body)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	client, _ := newTestClient(t, handler)
	err := client.EnsureLabels(context.Background(), "owner", "repo", []model.Category{
		{Name: "UX BUG", Color: "#d73a4a"},
		{Name: "PERFORMANCE", Color: "#fbca04", Description: "Slowness"},
	})

	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "PERFORMANCE", created[0]["name"])
	assert.Equal(t, "fbca04", created[0]["color"])
	assert.Equal(t, "Slowness", created[0]["description"])
}

func TestEnsureLabels_StopsOnServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	})

	client, _ := newTestClient(t, handler)
	err := client.EnsureLabels(context.Background(), "owner", "repo", []model.Category{{Name: "UX BUG"}})

	var upErr *driven.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusInternalServerError, upErr.StatusCode)
}
