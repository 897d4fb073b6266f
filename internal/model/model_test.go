package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_SearchText(t *testing.T) {
	rec := Record{
		Title:       "Saint Cloud Palace Gardens",
		Description: "A View of the Park",
		Creator:     "Unknown Painter",
	}

	text := rec.SearchText()
	assert.Contains(t, text, "saint cloud palace gardens")
	assert.Contains(t, text, "a view of the park")
	assert.Contains(t, text, "unknown painter")
}

func TestAsset_Ext(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"jpeg extension", "https://images.example.org/obj/12345.jpg", ".jpg"},
		{"png extension", "https://images.example.org/obj/12345.PNG", ".png"},
		{"no extension", "https://images.example.org/iiif/12345/full/full/0/default", ".jpg"},
		{"query string only", "https://ids.example.org/deliveryService?id=12&max=1000", ".jpg"},
		{"unparseable", "::not a url::", ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Asset{URL: tt.url}.Ext())
		})
	}
}
