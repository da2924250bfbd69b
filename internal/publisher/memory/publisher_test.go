package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id1, err := pub.Publish(ctx, "seed-completed", catalog.SeedCompleted{SeedID: "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(ctx, "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, []any{catalog.SeedCompleted{SeedID: "a"}}, pub.ByTopic("seed-completed"))

	msgs[0].Topic = "modified"
	require.Equal(t, "seed-completed", pub.Messages()[0].Topic)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("broker down")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "t", 1)
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "t", 1)
	require.NoError(t, err)
}
