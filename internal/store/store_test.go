package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyarchive/museum-dl/internal/model"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain id", "436535", "436535"},
		{"object number", "SK-A-2344", "SK-A-2344"},
		{"slashes", "/90402/SK_A_2344", "90402_SK_A_2344"},
		{"backslashes", `europeana\record\1`, "europeana_record_1"},
		{"unicode punctuation", "Étude de nuages — matin", "tude_de_nuages_matin"},
		{"spaces collapse", "Cloud   Study,  Morning", "Cloud_Study_Morning"},
		{"trailing dots", "Untitled...", "Untitled"},
		{"empty", "///", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeName(tt.input))
		})
	}
}

func TestSafeName_LengthBound(t *testing.T) {
	long := strings.Repeat("Nimbus Cloud Formation ", 20)
	got := SafeName(long)
	assert.LessOrEqual(t, len(got), 100)
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, "\\")
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "met"))
	require.NoError(t, err)

	assert.False(t, s.HasMetadata("436535"))

	payload := map[string]any{
		"objectID": 436535,
		"title":    "Wheat Field with Cypresses",
	}
	require.NoError(t, s.WriteMetadata("436535", payload))
	assert.True(t, s.HasMetadata("436535"))

	data, err := os.ReadFile(s.MetadataPath("436535"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Wheat Field with Cypresses")
	// Pretty-printed, not a single line.
	assert.Greater(t, strings.Count(string(data), "\n"), 1)
}

func TestStore_AssetPath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "rijks")
	s, err := Open(root)
	require.NoError(t, err)

	primary, err := s.AssetPath("SK-A-2344", model.Asset{URL: "https://x/img.jpg", Kind: model.AssetPrimary}, 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "images", "SK-A-2344.jpg"), primary)

	extra, err := s.AssetPath("SK-A-2344", model.Asset{URL: "https://x/alt.png", Kind: model.AssetAdditional}, 2)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "images", "SK-A-2344_additional_2.png"), extra)

	thumb, err := s.AssetPath("SK-A-2344", model.Asset{URL: "https://x/t.jpg", Kind: model.AssetThumbnail}, 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "thumbnails", "SK-A-2344.jpg"), thumb)

	// thumbnails/ is created lazily by the first thumbnail asset.
	info, err := os.Stat(filepath.Join(root, "thumbnails"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
