package predictor_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ericfisherdev/issuetriage/internal/adapter/driven/predictor"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPredictor_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Crash on save. ", body["text"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"primary_label":"UX BUG","primary_score":0.9,"secondary_label":"FEATURE REQUEST","secondary_score":0.05}`)
	}))
	t.Cleanup(server.Close)

	p := predictor.NewHTTPPredictor(server.URL, server.Client())
	pred, err := p.Predict(context.Background(), "Crash on save. ")

	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.Equal(t, "UX BUG", pred.PrimaryLabel)
	assert.InDelta(t, 0.9, pred.PrimaryScore, 1e-9)
	assert.Equal(t, "FEATURE REQUEST", pred.SecondaryLabel)
	assert.InDelta(t, 0.05, pred.SecondaryScore, 1e-9)
}

func TestHTTPPredictor_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	pred, err := predictor.NewHTTPPredictor(server.URL, server.Client()).Predict(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestHTTPPredictor_EmptyLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"primary_label":""}`)
	}))
	t.Cleanup(server.Close)

	pred, err := predictor.NewHTTPPredictor(server.URL, server.Client()).Predict(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestHTTPPredictor_ErrorStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "model loading")
	}))
	t.Cleanup(server.Close)

	_, err := predictor.NewHTTPPredictor(server.URL, server.Client()).Predict(context.Background(), "x")

	var upErr *driven.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPPredictor_ScoreOutOfRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"primary_label":"UX BUG","primary_score":3.2,"secondary_label":"DOCS","secondary_score":0.1}`)
	}))
	t.Cleanup(server.Close)

	_, err := predictor.NewHTTPPredictor(server.URL, server.Client()).Predict(context.Background(), "x")
	assert.Error(t, err)
}
