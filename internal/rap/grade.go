// Package rap prices diamonds from Rapaport-style base rate and discount tables.
package rap

import (
	"strings"

	"github.com/gemledger/gemledger/internal/shared"
)

// Shape is a diamond cut shape.
type Shape int

const (
	ShapeRound Shape = iota + 1
	ShapePear
	ShapePrincess
	ShapeEmerald
	ShapeAsscher
	ShapeOval
	ShapeMarquise
	ShapeCushion
	ShapeRadiant
	ShapeHeart
)

// Shapes lists every supported shape.
var Shapes = []Shape{
	ShapeRound, ShapePear, ShapePrincess, ShapeEmerald, ShapeAsscher,
	ShapeOval, ShapeMarquise, ShapeCushion, ShapeRadiant, ShapeHeart,
}

// ShapeCode selects the price list a shape is quoted from.
type ShapeCode string

const (
	// CodeRound is the round brilliant list.
	CodeRound ShapeCode = "BR"
	// CodePear is the pear list used for every fancy shape.
	CodePear ShapeCode = "PS"
)

// Code returns the price list for s.
func (s Shape) Code() ShapeCode {
	switch s {
	case ShapeRound:
		return CodeRound
	case ShapePear, ShapePrincess, ShapeEmerald, ShapeAsscher, ShapeOval,
		ShapeMarquise, ShapeCushion, ShapeRadiant, ShapeHeart:
		return CodePear
	}
	return ""
}

func (s Shape) String() string {
	switch s {
	case ShapeRound:
		return "round"
	case ShapePear:
		return "pear"
	case ShapePrincess:
		return "princess"
	case ShapeEmerald:
		return "emerald"
	case ShapeAsscher:
		return "asscher"
	case ShapeOval:
		return "oval"
	case ShapeMarquise:
		return "marquise"
	case ShapeCushion:
		return "cushion"
	case ShapeRadiant:
		return "radiant"
	case ShapeHeart:
		return "heart"
	}
	return "unknown"
}

// MarshalText renders the shape name.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// abbreviations are the trade shorthands accepted besides the full names.
var abbreviations = map[string]Shape{
	"br": ShapeRound, "rd": ShapeRound, "rbc": ShapeRound, "brilliant": ShapeRound,
	"ps": ShapePear, "pr": ShapePrincess, "pc": ShapePrincess,
	"em": ShapeEmerald, "as": ShapeAsscher, "ov": ShapeOval,
	"mq": ShapeMarquise, "cu": ShapeCushion, "cb": ShapeCushion,
	"ra": ShapeRadiant, "rad": ShapeRadiant, "ht": ShapeHeart, "hs": ShapeHeart,
}

// ParseShape accepts a shape name or trade abbreviation, case-insensitively.
func ParseShape(raw string) (Shape, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range Shapes {
		if s.String() == key {
			return s, nil
		}
	}
	if s, ok := abbreviations[key]; ok {
		return s, nil
	}
	return 0, shared.FieldErrors{"shape": "unknown shape " + quote(raw)}
}

// Color is a D-to-M colour grade.
type Color string

// Colors lists the graded colours from best to worst.
var Colors = []Color{"D", "E", "F", "G", "H", "I", "J", "K", "L", "M"}

// ParseColor accepts a single colour letter, case-insensitively.
func ParseColor(raw string) (Color, error) {
	c := Color(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Colors {
		if c == known {
			return c, nil
		}
	}
	return "", shared.FieldErrors{"color": "unknown color " + quote(raw)}
}

// Clarity is a clarity grade.
type Clarity string

// Clarities lists the clarity grades from best to worst.
var Clarities = []Clarity{"FL", "IF", "VVS1", "VVS2", "VS1", "VS2", "SI1", "SI2", "SI3", "I1", "I2", "I3"}

// ParseClarity accepts a clarity code, case-insensitively. "Flawless" and
// "Internally Flawless" are accepted as names.
func ParseClarity(raw string) (Clarity, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	switch key {
	case "FLAWLESS":
		return "FL", nil
	case "INTERNALLY FLAWLESS":
		return "IF", nil
	}
	for _, known := range Clarities {
		if Clarity(key) == known {
			return known, nil
		}
	}
	return "", shared.FieldErrors{"clarity": "unknown clarity " + quote(raw)}
}

func quote(s string) string {
	return `"` + s + `"`
}
