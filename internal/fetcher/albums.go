package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/bulkwrite"
	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const (
	endpointArtistAlbums = "artist_albums"
	endpointAlbums       = "albums"
	endpointAlbumTracks  = "album_tracks"
)

type albumsResponse struct {
	Albums []*albumWithTracks `json:"albums"`
}

type albumWithTracks struct {
	catalog.Album
	Tracks page[catalog.Track] `json:"tracks"`
}

// ArtistAlbums lists every album of artistID, following pagination.
func (c *Client) ArtistAlbums(ctx context.Context, artistID string) ([]catalog.Album, error) {
	start := fmt.Sprintf("%s/artists/%s/albums?limit=%d", c.cfg.BaseURL, url.PathEscape(artistID), c.cfg.PageSize)
	albums, err := FetchAllPages[catalog.Album](ctx, c, endpointArtistAlbums, start)
	if err != nil {
		return nil, fmt.Errorf("fetch albums for %s: %w", artistID, err)
	}
	for _, album := range albums {
		if album.ID == "" {
			return nil, fmt.Errorf("fetch albums for %s: %w", artistID, malformed("album without id"))
		}
	}
	return albums, nil
}

// groupResult holds one album group's embedded tracks and the albums that
// need phase-two paging.
type groupResult struct {
	ok     bool
	tracks [][]catalog.Track
	extras []extraAlbum
}

type extraAlbum struct {
	slot  int
	id    string
	total int
}

// pageJob is one phase-two request for an album's remaining tracks.
type pageJob struct {
	group  int
	slot   int
	id     string
	offset int
}

// AlbumTracks returns every track of albumIDs. Albums are requested in groups
// of AlbumGroupSize; albums with more tracks than the batch endpoint embeds
// are completed with offset paging. Groups or pages that fail transiently
// are logged and dropped, credential failures abort the call.
func (c *Client) AlbumTracks(ctx context.Context, albumIDs []string) ([]catalog.Track, error) {
	groups := bulkwrite.Chunk(albumIDs, c.cfg.AlbumGroupSize)
	results := make([]groupResult, len(groups))

	start := time.Now()
	if err := c.fetchGroups(ctx, groups, results); err != nil {
		return nil, err
	}

	jobs := c.pageJobs(results)
	pages := make([][]catalog.Track, len(jobs))
	if err := c.fetchPages(ctx, jobs, pages); err != nil {
		return nil, err
	}

	// Reassemble in input order: group, album within group, then offset.
	extra := make(map[[2]int][][]catalog.Track)
	for i, job := range jobs {
		key := [2]int{job.group, job.slot}
		extra[key] = append(extra[key], pages[i])
	}
	var out []catalog.Track
	for g, res := range results {
		if !res.ok {
			continue
		}
		for slot, tracks := range res.tracks {
			out = append(out, tracks...)
			for _, p := range extra[[2]int{g, slot}] {
				out = append(out, p...)
			}
		}
	}
	c.logger.Debug("album tracks fetched",
		zap.Int("albums", len(albumIDs)),
		zap.Int("groups", len(groups)),
		zap.Int("pages", len(jobs)),
		zap.Int("tracks", len(out)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (c *Client) fetchGroups(ctx context.Context, groups [][]string, results []groupResult) error {
	errs := make([]error, len(groups))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, ids := range groups {
		g.Go(func() error {
			res, err := c.fetchGroup(ctx, ids)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if escalates(err) {
			return fmt.Errorf("fetch album group %d: %w", i, err)
		}
		c.logger.Warn("album group dropped",
			zap.Int("group", i),
			zap.Strings("album_ids", groups[i]),
			zap.Error(err))
	}
	return nil
}

func (c *Client) fetchGroup(ctx context.Context, ids []string) (groupResult, error) {
	rawURL := fmt.Sprintf("%s/albums?ids=%s", c.cfg.BaseURL, url.QueryEscape(strings.Join(ids, ",")))
	var resp albumsResponse
	if err := c.getJSON(ctx, endpointAlbums, rawURL, &resp); err != nil {
		return groupResult{}, err
	}

	res := groupResult{ok: true}
	for _, album := range resp.Albums {
		// Unknown ids come back as null entries.
		if album == nil {
			continue
		}
		if album.ID == "" {
			return groupResult{}, malformed("album without id")
		}
		tracks, err := album.Tracks.items(endpointAlbums)
		if err != nil {
			return groupResult{}, err
		}
		if len(tracks) > c.cfg.EmbeddedTracks {
			tracks = tracks[:c.cfg.EmbeddedTracks]
		}
		if err := validateTracks(tracks); err != nil {
			return groupResult{}, err
		}
		slot := len(res.tracks)
		res.tracks = append(res.tracks, tracks)
		if album.TotalTracks > c.cfg.EmbeddedTracks {
			res.extras = append(res.extras, extraAlbum{slot: slot, id: album.ID, total: album.TotalTracks})
		}
	}
	return res, nil
}

func (c *Client) pageJobs(results []groupResult) []pageJob {
	var jobs []pageJob
	for g, res := range results {
		for _, album := range res.extras {
			for offset := c.cfg.EmbeddedTracks; offset < album.total; offset += c.cfg.PageSize {
				jobs = append(jobs, pageJob{group: g, slot: album.slot, id: album.id, offset: offset})
			}
		}
	}
	return jobs
}

func (c *Client) fetchPages(ctx context.Context, jobs []pageJob, pages [][]catalog.Track) error {
	errs := make([]error, len(jobs))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			rawURL := fmt.Sprintf("%s/albums/%s/tracks?offset=%d&limit=%d",
				c.cfg.BaseURL, url.PathEscape(job.id), job.offset, c.cfg.PageSize)
			var p page[catalog.Track]
			if err := c.getJSON(ctx, endpointAlbumTracks, rawURL, &p); err != nil {
				errs[i] = err
				return nil
			}
			tracks, err := p.items(endpointAlbumTracks)
			if err == nil {
				err = validateTracks(tracks)
			}
			if err != nil {
				errs[i] = err
				return nil
			}
			pages[i] = tracks
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if escalates(err) {
			return fmt.Errorf("fetch tracks of album %s: %w", jobs[i].id, err)
		}
		c.logger.Warn("album tracks page dropped",
			zap.String("album_id", jobs[i].id),
			zap.Int("offset", jobs[i].offset),
			zap.Error(err))
	}
	return nil
}

func validateTracks(tracks []catalog.Track) error {
	for _, track := range tracks {
		if track.ID == "" {
			return malformed("track without id")
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", catalog.ErrMalformedResponse, fmt.Sprintf(format, args...))
}
