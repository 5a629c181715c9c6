package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single word", "Color", "color"},
		{"already a slug", "color", "color"},
		{"spaces", "Frame Size", "frame-size"},
		{"surrounding whitespace", "  Material  ", "material"},
		{"accents stripped", "Matériau Coloré", "materiau-colore"},
		{"punctuation collapsed", "Size (EU) / US", "size-eu-us"},
		{"underscore kept", "model_code", "model_code"},
		{"digits", "Diameter 2", "diameter-2"},
		{"nothing usable", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "pa_color", Key("Color"))
	assert.Equal(t, "pa_frame-size", Key("Frame Size"))
	assert.Equal(t, "pa_color", Taxonomy{Name: "color"}.Key())
}
