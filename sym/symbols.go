// Package sym defines the glyphs attrmigrate prints in CLI help and status lines.
package sym

// System symbols
const (
	AM    = "≡" // am - configuration and system settings
	IX    = "⨳" // ix - import catalog entries
	Pulse = "꩜" // scheduled conversion passes
	DB    = "⊔" // database/storage layer
)

// Conversion symbols
const (
	Convert  = "⟶" // local attribute becomes global
	Taxonomy = "∈" // term membership in a taxonomy
)
