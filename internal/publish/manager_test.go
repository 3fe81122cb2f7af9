package publish

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/internal/processor"
)

type fakePublisher struct {
	platform string
}

func (f *fakePublisher) Platform() string { return f.platform }

func (f *fakePublisher) Publish(context.Context, *models.Account, *processor.Artifact) (*Result, error) {
	return &Result{URL: "https://" + f.platform + ".example/post"}, nil
}

func TestManagerRegisterAndGet(t *testing.T) {
	m := NewManager(zap.NewNop())

	require.NoError(t, m.Register(&fakePublisher{platform: "youtube"}))
	require.NoError(t, m.Register(&fakePublisher{platform: "tiktok"}))

	// One publisher per platform.
	err := m.Register(&fakePublisher{platform: "youtube"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	publisher, err := m.Get("youtube")
	require.NoError(t, err)
	assert.Equal(t, "youtube", publisher.Platform())

	_, err = m.Get("instagram")
	require.Error(t, err)

	assert.ElementsMatch(t, []string{"youtube", "tiktok"}, m.Platforms())
}
