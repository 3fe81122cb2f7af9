package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatorops/rotor/internal/config"
	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/internal/processor"
)

func TestBridgePublish(t *testing.T) {
	var got publishRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/publish", r.URL.Path)
		assert.Equal(t, "Bearer yt-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(publishResponse{
			URL:    "https://youtube.example/watch?v=abc123",
			PostID: "abc123",
		})
	}))
	defer ts.Close()

	bridge := NewBridge(&config.PublisherBridge{
		Platform: "youtube",
		BaseURL:  ts.URL,
		Token:    "yt-token",
		Enabled:  true,
	}, zap.NewNop())
	assert.Equal(t, "youtube", bridge.Platform())

	account := &models.Account{Handle: "creator_one", CredentialRef: "vault://yt/creator_one"}
	artifact := &processor.Artifact{Ref: "artifact/clip-1.mp4", Title: "First clip"}

	result, err := bridge.Publish(context.Background(), account, artifact)
	require.NoError(t, err)
	assert.Equal(t, "https://youtube.example/watch?v=abc123", result.URL)
	assert.Equal(t, "abc123", result.PostID)
	assert.False(t, result.PublishedAt.IsZero())

	assert.Equal(t, publishRequest{
		Handle:        "creator_one",
		CredentialRef: "vault://yt/creator_one",
		ArtifactRef:   "artifact/clip-1.mp4",
		Title:         "First clip",
	}, got)
}

func TestBridgePublishStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	bridge := NewBridge(&config.PublisherBridge{Platform: "tiktok", BaseURL: ts.URL}, zap.NewNop())

	_, err := bridge.Publish(context.Background(), &models.Account{Handle: "h"}, &processor.Artifact{Ref: "a"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "tiktok", statusErr.Platform)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "rate limited")
}
