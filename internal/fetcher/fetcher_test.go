package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

type staticTokens struct{ token string }

func (s staticTokens) Token(context.Context) (string, error) { return s.token, nil }
func (s staticTokens) Refresh(context.Context) error         { return nil }

// fakeCatalog serves a deterministic catalog where album <id> has totals[id] tracks.
type fakeCatalog struct {
	t         *testing.T
	totals    map[string]int
	albums    []string
	failGroup string
	status    int
	requests  atomic.Int64
	server    *httptest.Server
	// delay holds every request open so overlapping requests can be counted.
	delay time.Duration

	mu       sync.Mutex
	inflight map[string]int
	peak     map[string]int
}

func newFakeCatalog(t *testing.T, totals map[string]int, order []string) *fakeCatalog {
	t.Helper()
	f := &fakeCatalog{
		t:        t,
		totals:   totals,
		albums:   order,
		inflight: make(map[string]int),
		peak:     make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /artists/{id}/albums", f.artistAlbums)
	mux.HandleFunc("GET /albums", f.albumsBatch)
	mux.HandleFunc("GET /albums/{id}/tracks", f.albumTracks)
	f.server = httptest.NewServer(f.auth(mux))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCatalog) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		kind := endpointKind(r.URL.Path)
		f.enter(kind)
		defer f.leave(kind)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func endpointKind(path string) string {
	switch {
	case path == "/albums":
		return "groups"
	case strings.HasSuffix(path, "/tracks"):
		return "pages"
	default:
		return "other"
	}
}

func (f *fakeCatalog) enter(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[kind]++
	f.peak[kind] = max(f.peak[kind], f.inflight[kind])
}

func (f *fakeCatalog) leave(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[kind]--
}

func (f *fakeCatalog) peakInFlight(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak[kind]
}

func (f *fakeCatalog) client(opts ...Option) *Client {
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return New(Config{BaseURL: f.server.URL}, staticTokens{token: "test-token"}, opts...)
}

func trackAt(albumID string, n int) map[string]any {
	return map[string]any{
		"id":          fmt.Sprintf("%s-t%03d", albumID, n),
		"name":        fmt.Sprintf("Track %d", n),
		"preview_url": nil,
		"artists": []map[string]string{
			{"id": "seed", "name": "Seed"},
			{"id": "guest-" + albumID, "name": "Guest"},
		},
	}
}

func tracksRange(albumID string, from, to int) []map[string]any {
	out := make([]map[string]any, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, trackAt(albumID, i))
	}
	return out
}

func (f *fakeCatalog) artistAlbums(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	const per = 2
	end := min(offset+per, len(f.albums))
	items := make([]map[string]any, 0, per)
	for _, id := range f.albums[offset:end] {
		items = append(items, map[string]any{"id": id, "name": "Album " + id, "total_tracks": f.totals[id]})
	}
	var next any
	if end < len(f.albums) {
		next = fmt.Sprintf("%s/artists/%s/albums?offset=%d&limit=50", f.server.URL, r.PathValue("id"), end)
	}
	writeTestJSON(f.t, w, map[string]any{"items": items, "next": next, "total": len(f.albums)})
}

func (f *fakeCatalog) albumsBatch(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	if f.failGroup != "" {
		for _, id := range ids {
			if id == f.failGroup {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
		}
	}
	albums := make([]any, 0, len(ids))
	for _, id := range ids {
		total, ok := f.totals[id]
		if !ok {
			albums = append(albums, nil)
			continue
		}
		albums = append(albums, map[string]any{
			"id":           id,
			"total_tracks": total,
			"tracks":       map[string]any{"items": tracksRange(id, 0, min(total, DefaultEmbeddedTracks)), "total": total},
		})
	}
	writeTestJSON(f.t, w, map[string]any{"albums": albums})
}

func (f *fakeCatalog) albumTracks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	total := f.totals[id]
	end := min(offset+limit, total)
	writeTestJSON(f.t, w, map[string]any{"items": tracksRange(id, offset, end), "total": total})
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestArtistAlbumsFollowsPagination(t *testing.T) {
	t.Parallel()

	f := newFakeCatalog(t, map[string]int{"a1": 3, "a2": 4, "a3": 5}, []string{"a1", "a2", "a3"})
	albums, err := f.client().ArtistAlbums(context.Background(), "seed")
	require.NoError(t, err)
	require.Len(t, albums, 3)
	require.Equal(t, "a3", albums[2].ID)
	require.Equal(t, 5, albums[2].TotalTracks)
}

func TestFetchAllPagesStopsWithoutCursor(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(t, w, map[string]any{"items": []map[string]string{{"id": "x"}}, "next": nil})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	items, err := FetchAllPages[catalog.Album](context.Background(), c, "test", srv.URL+"/only")
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestFetchAllPagesMissingItemsIsMalformed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(t, w, map[string]any{"next": nil})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	_, err := FetchAllPages[catalog.Album](context.Background(), c, "test", srv.URL)
	require.ErrorIs(t, err, catalog.ErrMalformedResponse)
	require.True(t, catalog.IsTransient(err))
}

func TestFetchAllPagesDetectsCursorLoop(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(t, w, map[string]any{"items": []any{}, "next": srv.URL + "/loop"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	_, err := FetchAllPages[catalog.Album](context.Background(), c, "test", srv.URL+"/loop")
	require.Error(t, err)
}

func TestAlbumTracksRetrievesExactlyTotal(t *testing.T) {
	t.Parallel()

	totals := map[string]int{"small": 7, "exact": 20, "big": 137}
	f := newFakeCatalog(t, totals, nil)

	tracks, err := f.client().AlbumTracks(context.Background(), []string{"small", "exact", "big"})
	require.NoError(t, err)
	require.Len(t, tracks, 7+20+137)

	seen := make(map[string]struct{}, len(tracks))
	for _, tr := range tracks {
		_, dup := seen[tr.ID]
		require.False(t, dup, "duplicate track %s", tr.ID)
		seen[tr.ID] = struct{}{}
	}
	// Input order and in-album order are preserved.
	require.Equal(t, "small-t000", tracks[0].ID)
	require.Equal(t, "exact-t000", tracks[7].ID)
	require.Equal(t, "big-t000", tracks[27].ID)
	require.Equal(t, "big-t020", tracks[47].ID)
	require.Equal(t, "big-t136", tracks[len(tracks)-1].ID)
}

func TestAlbumTracksBoundsRequestsInFlight(t *testing.T) {
	t.Parallel()

	totals := make(map[string]int)
	ids := make([]string, 0, 10)
	for i := range 10 {
		id := fmt.Sprintf("al%02d", i)
		totals[id] = 120
		ids = append(ids, id)
	}
	f := newFakeCatalog(t, totals, nil)
	f.delay = 20 * time.Millisecond

	c := New(Config{BaseURL: f.server.URL, AlbumGroupSize: 2, Concurrency: 2},
		staticTokens{token: "test-token"}, WithLogger(zap.NewNop()))
	tracks, err := c.AlbumTracks(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, tracks, 10*120)

	// 5 batch requests in phase one, 2 page requests per album in phase two.
	require.Equal(t, int64(5+10*2), f.requests.Load())
	require.LessOrEqual(t, f.peakInFlight("groups"), 2)
	require.LessOrEqual(t, f.peakInFlight("pages"), 2)
	require.GreaterOrEqual(t, f.peakInFlight("pages"), 1)
}

func TestAlbumTracksDropsFailedGroup(t *testing.T) {
	t.Parallel()

	totals := make(map[string]int)
	ids := make([]string, 25)
	for i := range ids {
		ids[i] = fmt.Sprintf("al%02d", i)
		totals[ids[i]] = 2
	}
	f := newFakeCatalog(t, totals, nil)
	f.failGroup = "al21"

	tracks, err := f.client().AlbumTracks(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, tracks, 20*2)
	for _, tr := range tracks {
		require.Less(t, tr.ID[:4], "al20", "track %s from dropped group", tr.ID)
	}
}

func TestAlbumTracksSkipsUnknownAlbums(t *testing.T) {
	t.Parallel()

	f := newFakeCatalog(t, map[string]int{"known": 3}, nil)
	tracks, err := f.client().AlbumTracks(context.Background(), []string{"ghost", "known"})
	require.NoError(t, err)
	require.Len(t, tracks, 3)
}

func TestUnauthorizedEscalates(t *testing.T) {
	t.Parallel()

	f := newFakeCatalog(t, map[string]int{"a": 3}, []string{"a"})
	c := New(Config{BaseURL: f.server.URL}, staticTokens{token: "stale"})

	_, err := c.ArtistAlbums(context.Background(), "seed")
	require.ErrorIs(t, err, catalog.ErrUnauthorized)
	require.False(t, catalog.IsTransient(err))

	_, err = c.AlbumTracks(context.Background(), []string{"a"})
	require.ErrorIs(t, err, catalog.ErrUnauthorized)
}

func TestServerErrorsAreTransient(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		f := newFakeCatalog(t, nil, nil)
		f.status = code
		_, err := f.client().ArtistAlbums(context.Background(), "seed")
		require.ErrorIs(t, err, catalog.ErrUpstream, "status %d", code)
		require.True(t, catalog.IsTransient(err))
	}
}

type countingWaiter struct{ n atomic.Int64 }

func (c *countingWaiter) Wait(context.Context, string) error {
	c.n.Add(1)
	return nil
}

func TestRequestsPassThroughLimiter(t *testing.T) {
	t.Parallel()

	f := newFakeCatalog(t, map[string]int{"big": 80}, nil)
	w := &countingWaiter{}
	_, err := f.client(WithLimiter(w)).AlbumTracks(context.Background(), []string{"big"})
	require.NoError(t, err)
	// One batch request plus pages at offsets 20 and 70.
	require.EqualValues(t, 3, w.n.Load())
	require.EqualValues(t, 3, f.requests.Load())
}
