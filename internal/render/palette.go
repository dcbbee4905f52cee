package render

import "github.com/terminal-bench/gridflow/internal/grid"

// GlyphSize is a node glyph's bounding box.
type GlyphSize struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Closed lookup tables keyed by the node-type enum. Dispatch never goes
// through conditional chains; adding a node type means adding a row here.
var (
	nodeColors = map[grid.NodeType]string{
		grid.NodeSolar:   "#f6c344",
		grid.NodeGrid:    "#4f8ef7",
		grid.NodeBattery: "#3ecf8e",
		grid.NodeEV:      "#b07cf7",
		grid.NodeLoad:    "#f4845f",
	}

	nodeGlyphs = map[grid.NodeType]string{
		grid.NodeSolar:   "sun",
		grid.NodeGrid:    "pylon",
		grid.NodeBattery: "cell",
		grid.NodeEV:      "plug",
		grid.NodeLoad:    "building",
	}

	glyphSizes = map[grid.NodeType]GlyphSize{
		grid.NodeSolar:   {W: 44, H: 44},
		grid.NodeGrid:    {W: 40, H: 52},
		grid.NodeBattery: {W: 36, H: 56},
		grid.NodeEV:      {W: 40, H: 44},
		grid.NodeLoad:    {W: 48, H: 48},
	}
)

// ColorFor returns a node type's base color.
func ColorFor(t grid.NodeType) string {
	if c, ok := nodeColors[t]; ok {
		return c
	}
	return "#9aa0a6"
}

// GlyphFor returns a node type's glyph name.
func GlyphFor(t grid.NodeType) string {
	if g, ok := nodeGlyphs[t]; ok {
		return g
	}
	return "dot"
}

// SizeFor returns a node type's glyph bounding box.
func SizeFor(t grid.NodeType) (w, h float64) {
	s, ok := glyphSizes[t]
	if !ok {
		return 40, 40
	}
	return s.W, s.H
}
