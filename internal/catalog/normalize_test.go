package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_KeepsCollaborationsAndAllArtists(t *testing.T) {
	t.Parallel()

	preview := "https://p.example/1"
	tracks := []Track{
		{ID: "t1", Name: "Duet", PreviewURL: &preview, Artists: []Artist{{ID: "x", Name: "X"}, {ID: "y", Name: "Y"}}},
		{ID: "t2", Name: "Solo", Artists: []Artist{{ID: "x", Name: "X"}}},
		{ID: "t3", Name: "Trio", Artists: []Artist{{ID: "y", Name: "Y"}, {ID: "z", Name: "Z"}, {ID: "x", Name: "X"}}},
		{ID: "t1", Name: "Duet", Artists: []Artist{{ID: "x", Name: "X"}, {ID: "y", Name: "Y"}}},
	}

	graph := Normalize(tracks)

	require.Equal(t, []NormalizedArtist{{ID: "x", Name: "X"}, {ID: "y", Name: "Y"}, {ID: "z", Name: "Z"}}, graph.Artists)
	require.Len(t, graph.Tracks, 2)
	require.Equal(t, "t1", graph.Tracks[0].ID)
	require.Equal(t, []string{"x", "y"}, graph.Tracks[0].ArtistIDs)
	require.Equal(t, &preview, graph.Tracks[0].PreviewURL)
	require.Equal(t, []string{"y", "z", "x"}, graph.Tracks[1].ArtistIDs)
}

func TestNormalize_Empty(t *testing.T) {
	t.Parallel()

	graph := Normalize(nil)
	require.Empty(t, graph.Tracks)
	require.Empty(t, graph.Artists)
}

func TestNeighborsAndFrontier(t *testing.T) {
	t.Parallel()

	graph := Graph{Artists: []NormalizedArtist{{ID: "seed"}, {ID: "a"}, {ID: "b"}, {ID: "c"}}}
	neighbors := Neighbors(graph, "seed")
	require.Equal(t, []string{"a", "b", "c"}, neighbors)

	frontier := Frontier(neighbors, map[string]struct{}{"b": {}})
	require.Equal(t, []string{"a", "c"}, frontier)
}

func TestEnqueueResultSucceeded(t *testing.T) {
	t.Parallel()

	res := EnqueueResult{Inserted: []string{"a"}, Existing: []string{"b"}}
	require.Equal(t, []string{"a", "b"}, res.Succeeded())
}

func TestCollectEnqueue(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	res, err := CollectEnqueue(
		[]string{"a", "b", "c"},
		[]bool{true, false, true},
		[]error{nil, nil, boom},
	)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"a"}, res.Inserted)
	require.Equal(t, []string{"b"}, res.Existing)
	require.Equal(t, map[string]error{"c": boom}, res.Failed)

	res, err = CollectEnqueue(nil, nil, nil)
	require.NoError(t, err)
	require.Empty(t, res.Succeeded())
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	require.True(t, IsTransient(ErrUpstream))
	require.True(t, IsTransient(ErrMalformedResponse))
	require.False(t, IsTransient(ErrUnauthorized))
	require.False(t, IsTransient(nil))
}

func TestUniqueIDs(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"b", "a", "c"}, UniqueIDs([]string{"b", "", "a", "b", "c", "a"}))
	require.Empty(t, UniqueIDs(nil))
}
