package mab

import "strings"

// URIScheme is the fixed prefix of encoded media URIs.
const URIScheme = "mass://"

// itemSeparator joins a provider and item id into one path segment. Media
// items always need the provider/item pair, so the encoder always emits the
// separator and the decoder splits at its first occurrence.
const itemSeparator = "###"

// MediaURI addresses a media item (or a whole category) on a specific
// Music Assistant server. The zero value of Provider and ItemID means
// "no specific item, browse the category".
type MediaURI struct {
	ServerID string `json:"serverId"`
	Category string `json:"category"`
	Provider string `json:"provider"`
	ItemID   string `json:"itemId"`
}

// String returns the canonical textual encoding of the URI.
func (u MediaURI) String() string {
	return EncodeURI(u.ServerID, u.Category, u.Provider, u.ItemID)
}

// HasItem reports whether the URI names a specific media item.
func (u MediaURI) HasItem() bool {
	return u.Provider != "" || u.ItemID != ""
}

// EncodeURI encodes server, category and the provider/item pair into a
// single identifier. A URI without a provider/item pair collapses to a
// category-only form.
func EncodeURI(serverID, category, provider, itemID string) string {
	if provider == "" && itemID == "" {
		return URIScheme + serverID + "/" + category
	}
	return URIScheme + serverID + "/" + category + "/" + provider + itemSeparator + itemID
}

// ContentID joins a provider and item id into the compact pair form used
// in media content ids.
func ContentID(provider, itemID string) string {
	return provider + itemSeparator + itemID
}

// SplitContentID splits a provider/item pair at the first separator. The
// second return is false when no separator is present.
func SplitContentID(contentID string) (provider, itemID string, ok bool) {
	idx := strings.Index(contentID, itemSeparator)
	if idx < 0 {
		return "", "", false
	}
	return contentID[:idx], contentID[idx+len(itemSeparator):], true
}

// DecodeURI parses an encoded media URI. It tolerates a missing scheme
// prefix, a leading slash and a missing third segment. Malformed segments
// decode to empty fields rather than an error.
func DecodeURI(raw string) MediaURI {
	raw = strings.TrimPrefix(raw, URIScheme)
	raw = strings.TrimPrefix(raw, "/")

	var u MediaURI
	parts := strings.SplitN(raw, "/", 3)
	u.ServerID = parts[0]
	if len(parts) > 1 {
		u.Category = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		if provider, itemID, ok := SplitContentID(parts[2]); ok {
			u.Provider = provider
			u.ItemID = itemID
		}
	}
	return u
}

// IsURI reports whether raw carries the media URI scheme prefix.
func IsURI(raw string) bool {
	return strings.HasPrefix(raw, URIScheme)
}
