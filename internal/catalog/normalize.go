package catalog

// Normalize flattens fetched tracks into entity rows. Only collaborations
// (tracks with more than one credited artist) become track rows, while every
// credited artist becomes an artist row. Duplicate ids keep their first
// occurrence so the output order follows the input order.
func Normalize(tracks []Track) Graph {
	var graph Graph
	seenTracks := make(map[string]struct{}, len(tracks))
	seenArtists := make(map[string]struct{})

	for _, track := range tracks {
		for _, artist := range track.Artists {
			if artist.ID == "" {
				continue
			}
			if _, ok := seenArtists[artist.ID]; ok {
				continue
			}
			seenArtists[artist.ID] = struct{}{}
			graph.Artists = append(graph.Artists, NormalizedArtist{ID: artist.ID, Name: artist.Name})
		}

		if len(track.Artists) < 2 {
			continue
		}
		if _, ok := seenTracks[track.ID]; ok {
			continue
		}
		seenTracks[track.ID] = struct{}{}
		ids := make([]string, 0, len(track.Artists))
		for _, artist := range track.Artists {
			ids = append(ids, artist.ID)
		}
		graph.Tracks = append(graph.Tracks, NormalizedTrack{
			ID:         track.ID,
			Name:       track.Name,
			PreviewURL: track.PreviewURL,
			ArtistIDs:  ids,
		})
	}
	return graph
}

// Neighbors lists every artist in the graph other than the seed.
func Neighbors(graph Graph, seedID string) []string {
	out := make([]string, 0, len(graph.Artists))
	for _, artist := range graph.Artists {
		if artist.ID == seedID {
			continue
		}
		out = append(out, artist.ID)
	}
	return out
}

// Frontier removes already processed ids from candidates, preserving order.
func Frontier(candidates []string, processed map[string]struct{}) []string {
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, done := processed[id]; done {
			continue
		}
		out = append(out, id)
	}
	return out
}

// UniqueIDs drops empty and repeated ids, keeping first occurrences in order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
