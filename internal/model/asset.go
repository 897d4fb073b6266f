package model

import (
	"net/url"
	"path"
	"strings"
)

// AssetKind classifies where an asset lands in the output layout.
type AssetKind int

const (
	// AssetPrimary is the provider's main image for an object. It is saved
	// as images/<safeId>.<ext>.
	AssetPrimary AssetKind = iota

	// AssetAdditional is a secondary image. Saved as
	// images/<safeId>_additional_<n>.<ext>, 1-indexed.
	AssetAdditional

	// AssetThumbnail is a distinct low-resolution image some providers
	// expose. Saved under thumbnails/.
	AssetThumbnail
)

// MaxAdditionalAssets bounds how many secondary images are collected per
// object.
const MaxAdditionalAssets = 5

// SizeClass is a provider image-size label. Classes are compared only by
// their position in RankedSizeClasses.
type SizeClass string

// RankedSizeClasses lists size classes largest-first. Resolvers walking a
// nested image collection return the first populated class in this order.
// The labels follow the Cooper Hewitt convention (b=large ... o=original),
// which the other providers' resolvers simply ignore.
var RankedSizeClasses = []SizeClass{"b", "z", "n", "d", "l", "o"}

// Asset is one downloadable image reference resolved from a detail record.
type Asset struct {
	// URL is the absolute download URL.
	URL string

	// Kind determines the output path for the downloaded file.
	Kind AssetKind

	// Size is the provider's size-class hint, when one exists.
	Size SizeClass

	// MediaHint is the provider's media-type hint (e.g. "image/jpeg"),
	// when one exists. The download content-type gate does not trust it.
	MediaHint string
}

// Ext returns the file extension for the asset, derived from the URL path.
// Assets without a recognizable extension default to ".jpg".
func (a Asset) Ext() string {
	u, err := url.Parse(a.URL)
	if err != nil {
		return ".jpg"
	}
	ext := path.Ext(u.Path)
	if ext == "" || len(ext) > 5 || strings.ContainsAny(ext, "%&=") {
		return ".jpg"
	}
	return strings.ToLower(ext)
}
