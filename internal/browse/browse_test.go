package browse

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/massbridge/internal/mass"
)

type fakeCatalog struct {
	playlists []mass.MediaItem
	artists   []mass.MediaItem
	albums    []mass.MediaItem
	tracks    []mass.MediaItem
	radios    []mass.MediaItem

	albumByID       map[string]mass.MediaItem
	albumTracksByID map[string][]mass.MediaItem
	imageErr        error
}

func (f *fakeCatalog) LibraryPlaylists(context.Context) ([]mass.MediaItem, error) {
	return f.playlists, nil
}

func (f *fakeCatalog) LibraryArtists(context.Context) ([]mass.MediaItem, error) {
	return f.artists, nil
}

func (f *fakeCatalog) LibraryAlbums(context.Context) ([]mass.MediaItem, error) {
	return f.albums, nil
}

func (f *fakeCatalog) LibraryTracks(context.Context) ([]mass.MediaItem, error) {
	return f.tracks, nil
}

func (f *fakeCatalog) LibraryRadios(context.Context) ([]mass.MediaItem, error) {
	return f.radios, nil
}

func (f *fakeCatalog) Playlist(_ context.Context, itemID, _ string) (mass.MediaItem, error) {
	for _, item := range f.playlists {
		if item.ItemID == itemID {
			return item, nil
		}
	}
	return mass.MediaItem{}, errors.New("no such playlist")
}

func (f *fakeCatalog) Album(_ context.Context, itemID, _ string) (mass.MediaItem, error) {
	item, ok := f.albumByID[itemID]
	if !ok {
		return mass.MediaItem{}, errors.New("no such album")
	}
	return item, nil
}

func (f *fakeCatalog) Artist(_ context.Context, itemID, _ string) (mass.MediaItem, error) {
	for _, item := range f.artists {
		if item.ItemID == itemID {
			return item, nil
		}
	}
	return mass.MediaItem{}, errors.New("no such artist")
}

func (f *fakeCatalog) PlaylistTracks(context.Context, string, string) ([]mass.MediaItem, error) {
	return f.tracks, nil
}

func (f *fakeCatalog) AlbumTracks(_ context.Context, itemID, _ string) ([]mass.MediaItem, error) {
	return f.albumTracksByID[itemID], nil
}

func (f *fakeCatalog) ArtistAlbums(context.Context, string, string) ([]mass.MediaItem, error) {
	return f.albums, nil
}

func (f *fakeCatalog) MediaItemImageURL(_ context.Context, item mass.MediaItem) (string, error) {
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return "http://img/" + item.ItemID, nil
}

func testServer(id string, catalog Catalog) Server {
	return Server{ID: id, Name: "Server " + id, Catalog: catalog}
}

func TestBrowseRootSingleServerSkipsServerLevel(t *testing.T) {
	b := New(zap.NewNop())
	servers := []Server{testServer("srv1", &fakeCatalog{})}

	root, err := b.Browse(context.Background(), servers, "")
	if err != nil {
		t.Fatalf("browse root: %v", err)
	}
	if root.URI != "mass://srv1/root" {
		t.Fatalf("root uri: %q", root.URI)
	}
	if len(root.Children) != 5 {
		t.Fatalf("expected 5 categories, got %d", len(root.Children))
	}
	if root.Children[0].URI != "mass://srv1/playlists" || root.Children[0].Title != "Playlists" {
		t.Fatalf("first category: %+v", root.Children[0])
	}
	for _, child := range root.Children {
		if child.CanPlay || !child.CanExpand {
			t.Fatalf("category flags wrong: %+v", child)
		}
	}
}

func TestBrowseRootMultipleServers(t *testing.T) {
	b := New(zap.NewNop())
	servers := []Server{
		testServer("srv1", &fakeCatalog{}),
		testServer("srv2", &fakeCatalog{}),
	}

	root, err := b.Browse(context.Background(), servers, "")
	if err != nil {
		t.Fatalf("browse root: %v", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected one child per server, got %d", len(root.Children))
	}
	if root.Children[1].URI != "mass://srv2/root" {
		t.Fatalf("second server uri: %q", root.Children[1].URI)
	}
}

func TestBrowseAlbumListing(t *testing.T) {
	catalog := &fakeCatalog{
		albums: []mass.MediaItem{
			{
				ItemID:    "a1",
				Provider:  "spotify",
				MediaType: "album",
				Name:      "Blue Train",
				Artists:   []mass.ItemRef{{Name: "John Coltrane"}},
			},
		},
	}
	b := New(zap.NewNop())
	servers := []Server{testServer("srv1", catalog)}

	node, err := b.Browse(context.Background(), servers, "mass://srv1/albums")
	if err != nil {
		t.Fatalf("browse albums: %v", err)
	}
	if len(node.Children) != 1 {
		t.Fatalf("expected 1 album, got %d", len(node.Children))
	}
	album := node.Children[0]
	if album.Title != "John Coltrane - Blue Train" {
		t.Fatalf("album title: %q", album.Title)
	}
	if album.URI != "mass://srv1/album/spotify###a1" {
		t.Fatalf("album uri: %q", album.URI)
	}
	if !album.CanPlay || !album.CanExpand {
		t.Fatalf("album flags: %+v", album)
	}
	if album.Thumbnail != "http://img/a1" {
		t.Fatalf("album thumbnail: %q", album.Thumbnail)
	}
}

func TestBrowseTrackTitleJoinsArtists(t *testing.T) {
	catalog := &fakeCatalog{
		tracks: []mass.MediaItem{
			{
				ItemID:    "t1",
				Provider:  "spotify",
				MediaType: "track",
				Name:      "Duet",
				Artists:   []mass.ItemRef{{Name: "Ella"}, {Name: "Louis"}},
			},
		},
	}
	b := New(zap.NewNop())
	servers := []Server{testServer("srv1", catalog)}

	node, err := b.Browse(context.Background(), servers, "mass://srv1/tracks")
	if err != nil {
		t.Fatalf("browse tracks: %v", err)
	}
	track := node.Children[0]
	if track.Title != "Ella/Louis - Duet" {
		t.Fatalf("track title: %q", track.Title)
	}
	if track.CanExpand {
		t.Fatalf("tracks must not be expandable")
	}
}

func TestBrowseAlbumItemExpandsTracks(t *testing.T) {
	album := mass.MediaItem{
		ItemID:    "a1",
		Provider:  "spotify",
		MediaType: "album",
		Name:      "Blue Train",
		Artists:   []mass.ItemRef{{Name: "John Coltrane"}},
	}
	catalog := &fakeCatalog{
		albumByID: map[string]mass.MediaItem{"a1": album},
		albumTracksByID: map[string][]mass.MediaItem{
			"a1": {
				{ItemID: "t1", Provider: "spotify", MediaType: "track", Name: "Blue Train", Artists: []mass.ItemRef{{Name: "John Coltrane"}}},
				{ItemID: "t2", Provider: "spotify", MediaType: "track", Name: "Moment's Notice", Artists: []mass.ItemRef{{Name: "John Coltrane"}}},
			},
		},
	}
	b := New(zap.NewNop())
	servers := []Server{testServer("srv1", catalog)}

	node, err := b.Browse(context.Background(), servers, "mass://srv1/album/spotify###a1")
	if err != nil {
		t.Fatalf("browse album item: %v", err)
	}
	if node.Title != "John Coltrane - Blue Train" {
		t.Fatalf("title: %q", node.Title)
	}
	if len(node.Children) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(node.Children))
	}
}

func TestBrowseSkipsItemsWithoutMetadata(t *testing.T) {
	catalog := &fakeCatalog{
		playlists: []mass.MediaItem{
			{ItemID: "p1", Provider: "library", MediaType: "playlist", Name: "Jazz"},
			{ItemID: "p2", Provider: "library", MediaType: "playlist"}, // no name
		},
	}
	b := New(zap.NewNop())
	servers := []Server{testServer("srv1", catalog)}

	node, err := b.Browse(context.Background(), servers, "mass://srv1/playlists")
	if err != nil {
		t.Fatalf("browse playlists: %v", err)
	}
	if len(node.Children) != 1 {
		t.Fatalf("expected unresolvable item to be skipped, got %d children", len(node.Children))
	}
}

func TestBrowseArtworkFailureIsNotFatal(t *testing.T) {
	catalog := &fakeCatalog{
		radios:   []mass.MediaItem{{ItemID: "r1", Provider: "tunein", MediaType: "radio", Name: "FIP"}},
		imageErr: errors.New("no artwork"),
	}
	b := New(zap.NewNop())
	servers := []Server{testServer("srv1", catalog)}

	node, err := b.Browse(context.Background(), servers, "mass://srv1/radios")
	if err != nil {
		t.Fatalf("browse radios: %v", err)
	}
	radio := node.Children[0]
	if radio.Thumbnail != "" {
		t.Fatalf("thumbnail should be empty on artwork failure")
	}
	if !radio.CanPlay || radio.CanExpand {
		t.Fatalf("radio flags: %+v", radio)
	}
}

func TestBrowseUnknownServer(t *testing.T) {
	b := New(zap.NewNop())
	servers := []Server{testServer("srv1", &fakeCatalog{})}

	_, err := b.Browse(context.Background(), servers, "mass://other/albums")
	var browseErr *Error
	if !errors.As(err, &browseErr) {
		t.Fatalf("expected typed browse error, got %v", err)
	}
}

func TestBrowseUnsupportedCategory(t *testing.T) {
	b := New(zap.NewNop())
	servers := []Server{testServer("srv1", &fakeCatalog{})}

	_, err := b.Browse(context.Background(), servers, "mass://srv1/videos")
	var browseErr *Error
	if !errors.As(err, &browseErr) {
		t.Fatalf("expected typed browse error, got %v", err)
	}
}
