// Package browse builds hierarchical media listings from the Music
// Assistant catalog, fetching each level lazily on demand.
package browse

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey-austin/massbridge/internal/mass"
	"github.com/mikey-austin/massbridge/pkg/mab"
)

// Catalog is the slice of the Music Assistant API needed for browsing.
type Catalog interface {
	LibraryPlaylists(ctx context.Context) ([]mass.MediaItem, error)
	LibraryArtists(ctx context.Context) ([]mass.MediaItem, error)
	LibraryAlbums(ctx context.Context) ([]mass.MediaItem, error)
	LibraryTracks(ctx context.Context) ([]mass.MediaItem, error)
	LibraryRadios(ctx context.Context) ([]mass.MediaItem, error)
	Playlist(ctx context.Context, itemID, provider string) (mass.MediaItem, error)
	Album(ctx context.Context, itemID, provider string) (mass.MediaItem, error)
	Artist(ctx context.Context, itemID, provider string) (mass.MediaItem, error)
	PlaylistTracks(ctx context.Context, itemID, provider string) ([]mass.MediaItem, error)
	AlbumTracks(ctx context.Context, itemID, provider string) ([]mass.MediaItem, error)
	ArtistAlbums(ctx context.Context, itemID, provider string) ([]mass.MediaItem, error)
	MediaItemImageURL(ctx context.Context, item mass.MediaItem) (string, error)
}

// Server is one browsable Music Assistant server.
type Server struct {
	ID      string
	Name    string
	Catalog Catalog
}

// Error is a typed browse failure for an unknown server or media URI.
type Error struct {
	URI    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot browse %q: %s", e.URI, e.Reason)
}

// Library categories shown at a server's root level.
const (
	categoryPlaylists = "playlists"
	categoryArtists   = "artists"
	categoryAlbums    = "albums"
	categoryTracks    = "tracks"
	categoryRadios    = "radios"
	categoryRoot      = "root"
)

// Media classes for browse nodes.
const (
	classDirectory = "directory"
	classPlaylist  = "playlist"
	classArtist    = "artist"
	classAlbum     = "album"
	classTrack     = "track"
	classMusic     = "music"
)

// Browser resolves media URIs into browse tree nodes.
type Browser struct {
	log *zap.Logger
}

// New creates a browser.
func New(log *zap.Logger) *Browser {
	return &Browser{log: log.With(zap.String("component", "browse"))}
}

// Browse resolves uri against the known servers. An empty uri yields the
// root: a single server's listing directly, or a directory of servers when
// more than one is known.
func (b *Browser) Browse(ctx context.Context, servers []Server, uri string) (*mab.BrowseNode, error) {
	if uri == "" {
		return b.browseRoot(ctx, servers)
	}

	u := mab.DecodeURI(uri)
	srv, ok := serverByID(servers, u.ServerID)
	if !ok {
		return nil, &Error{URI: uri, Reason: "unknown server"}
	}

	switch u.Category {
	case categoryRoot:
		return b.serverRoot(ctx, srv)
	case categoryPlaylists, categoryArtists, categoryAlbums, categoryTracks, categoryRadios:
		return b.browseCategory(ctx, srv, u.Category)
	case classPlaylist:
		return b.browsePlaylist(ctx, srv, u)
	case classAlbum:
		return b.browseAlbum(ctx, srv, u)
	case classArtist:
		return b.browseArtist(ctx, srv, u)
	default:
		return nil, &Error{URI: uri, Reason: "unsupported media category"}
	}
}

func (b *Browser) browseRoot(ctx context.Context, servers []Server) (*mab.BrowseNode, error) {
	if len(servers) == 0 {
		return nil, &Error{URI: "", Reason: "no servers connected"}
	}
	// A single server skips the redundant server level.
	if len(servers) == 1 {
		return b.serverRoot(ctx, servers[0])
	}

	root := &mab.BrowseNode{
		Title:      "Music Assistant",
		MediaClass: classDirectory,
		CanExpand:  true,
	}
	for _, srv := range servers {
		node, err := b.serverRoot(ctx, srv)
		if err != nil {
			b.log.Debug("skipping server listing", zap.String("server_id", srv.ID), zap.Error(err))
			continue
		}
		root.Children = append(root.Children, *node)
	}
	return root, nil
}

func (b *Browser) serverRoot(_ context.Context, srv Server) (*mab.BrowseNode, error) {
	title := srv.Name
	if title == "" {
		title = "Music Assistant"
	}
	node := &mab.BrowseNode{
		URI:        mab.EncodeURI(srv.ID, categoryRoot, "", ""),
		Title:      title,
		MediaClass: classDirectory,
		CanExpand:  true,
	}
	for _, category := range []string{categoryPlaylists, categoryArtists, categoryAlbums, categoryTracks, categoryRadios} {
		node.Children = append(node.Children, mab.BrowseNode{
			URI:        mab.EncodeURI(srv.ID, category, "", ""),
			Title:      strings.ToUpper(category[:1]) + category[1:],
			MediaClass: classDirectory,
			CanExpand:  true,
		})
	}
	return node, nil
}

func (b *Browser) browseCategory(ctx context.Context, srv Server, category string) (*mab.BrowseNode, error) {
	var (
		items []mass.MediaItem
		err   error
	)
	switch category {
	case categoryPlaylists:
		items, err = srv.Catalog.LibraryPlaylists(ctx)
	case categoryArtists:
		items, err = srv.Catalog.LibraryArtists(ctx)
	case categoryAlbums:
		items, err = srv.Catalog.LibraryAlbums(ctx)
	case categoryTracks:
		items, err = srv.Catalog.LibraryTracks(ctx)
	case categoryRadios:
		items, err = srv.Catalog.LibraryRadios(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", category, err)
	}

	node := &mab.BrowseNode{
		URI:        mab.EncodeURI(srv.ID, category, "", ""),
		Title:      strings.ToUpper(category[:1]) + category[1:],
		MediaClass: classDirectory,
		CanExpand:  true,
	}
	node.Children = b.itemNodes(ctx, srv, items)
	return node, nil
}

func (b *Browser) browsePlaylist(ctx context.Context, srv Server, u mab.MediaURI) (*mab.BrowseNode, error) {
	item, err := srv.Catalog.Playlist(ctx, u.ItemID, u.Provider)
	if err != nil {
		return nil, &Error{URI: mab.EncodeURI(u.ServerID, u.Category, u.Provider, u.ItemID), Reason: err.Error()}
	}
	node := b.itemNode(ctx, srv, item)
	tracks, err := srv.Catalog.PlaylistTracks(ctx, u.ItemID, u.Provider)
	if err != nil {
		return nil, fmt.Errorf("playlist tracks: %w", err)
	}
	node.Children = b.itemNodes(ctx, srv, tracks)
	return &node, nil
}

func (b *Browser) browseAlbum(ctx context.Context, srv Server, u mab.MediaURI) (*mab.BrowseNode, error) {
	item, err := srv.Catalog.Album(ctx, u.ItemID, u.Provider)
	if err != nil {
		return nil, &Error{URI: mab.EncodeURI(u.ServerID, u.Category, u.Provider, u.ItemID), Reason: err.Error()}
	}
	node := b.itemNode(ctx, srv, item)
	tracks, err := srv.Catalog.AlbumTracks(ctx, u.ItemID, u.Provider)
	if err != nil {
		return nil, fmt.Errorf("album tracks: %w", err)
	}
	node.Children = b.itemNodes(ctx, srv, tracks)
	return &node, nil
}

func (b *Browser) browseArtist(ctx context.Context, srv Server, u mab.MediaURI) (*mab.BrowseNode, error) {
	item, err := srv.Catalog.Artist(ctx, u.ItemID, u.Provider)
	if err != nil {
		return nil, &Error{URI: mab.EncodeURI(u.ServerID, u.Category, u.Provider, u.ItemID), Reason: err.Error()}
	}
	node := b.itemNode(ctx, srv, item)
	albums, err := srv.Catalog.ArtistAlbums(ctx, u.ItemID, u.Provider)
	if err != nil {
		return nil, fmt.Errorf("artist albums: %w", err)
	}
	node.Children = b.itemNodes(ctx, srv, albums)
	return &node, nil
}

// itemNodes converts catalog items into child nodes, skipping any item
// that cannot be resolved so one bad entry never fails the listing.
func (b *Browser) itemNodes(ctx context.Context, srv Server, items []mass.MediaItem) []mab.BrowseNode {
	nodes := make([]mab.BrowseNode, 0, len(items))
	for _, item := range items {
		if item.MediaType == "" || item.Name == "" {
			b.log.Debug("skipping catalog item without metadata",
				zap.String("item_id", item.ItemID),
				zap.String("provider", item.Provider),
			)
			continue
		}
		nodes = append(nodes, b.itemNode(ctx, srv, item))
	}
	return nodes
}

func (b *Browser) itemNode(ctx context.Context, srv Server, item mass.MediaItem) mab.BrowseNode {
	node := mab.BrowseNode{
		URI:         mab.EncodeURI(srv.ID, item.MediaType, item.Provider, item.ItemID),
		Title:       itemTitle(item),
		MediaClass:  itemClass(item.MediaType),
		ContentType: item.MediaType,
		CanPlay:     playable(item.MediaType),
		CanExpand:   expandable(item.MediaType),
	}
	url, err := srv.Catalog.MediaItemImageURL(ctx, item)
	if err != nil {
		b.log.Debug("artwork lookup failed",
			zap.String("item_id", item.ItemID),
			zap.Error(err),
		)
	} else {
		node.Thumbnail = url
	}
	return node
}

// itemTitle derives the display title for a catalog item. Albums render
// as "artist - name", tracks as "artist1/artist2 - name".
func itemTitle(item mass.MediaItem) string {
	switch item.MediaType {
	case classAlbum:
		if artist := albumArtistName(item); artist != "" {
			return artist + " - " + item.Name
		}
	case classTrack:
		if artists := artistNames(item); artists != "" {
			return artists + " - " + item.Name
		}
	}
	return item.Name
}

func albumArtistName(item mass.MediaItem) string {
	if item.AlbumArtist != nil {
		return item.AlbumArtist.Name
	}
	if len(item.Artists) > 0 {
		return item.Artists[0].Name
	}
	return ""
}

func artistNames(item mass.MediaItem) string {
	names := make([]string, 0, len(item.Artists))
	for _, artist := range item.Artists {
		names = append(names, artist.Name)
	}
	return strings.Join(names, "/")
}

func itemClass(mediaType string) string {
	switch mediaType {
	case classPlaylist, classArtist, classAlbum, classTrack:
		return mediaType
	case "radio":
		return classMusic
	default:
		return classDirectory
	}
}

func playable(mediaType string) bool {
	switch mediaType {
	case classPlaylist, classArtist, classAlbum, classTrack, "radio":
		return true
	}
	return false
}

func expandable(mediaType string) bool {
	switch mediaType {
	case classPlaylist, classArtist, classAlbum:
		return true
	}
	return false
}

func serverByID(servers []Server, id string) (Server, bool) {
	for _, srv := range servers {
		if srv.ID == id {
			return srv, true
		}
	}
	return Server{}, false
}
