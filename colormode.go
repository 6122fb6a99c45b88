package pngx

import "github.com/fumin/pngx/pngerr"

// Color type, as per the PNG spec.
type ColorType int

const (
	ColorGrey      ColorType = 0
	ColorRGB       ColorType = 2
	ColorPalette   ColorType = 3
	ColorGreyAlpha ColorType = 4
	ColorRGBA      ColorType = 6
)

var (
	errColorType     = pngerr.New(31, "illegal PNG color type")
	errColorDepth    = pngerr.New(37, "illegal combination of color type and bit depth")
	errPaletteTooBig = pngerr.New(38, "palette has more than 256 entries")
	errKeyWithAlpha  = pngerr.New(85, "color key defined for a mode with a full alpha channel")
	errPaletteIndex  = pngerr.New(47, "palette index out of bounds")
	errDimensions    = pngerr.New(93, "width and height must be nonzero and below 2^31")
)

// A ColorMode describes the color type and bit depth of a pixel buffer,
// together with the palette and the transparent color key when present.
type ColorMode struct {
	ColorType ColorType
	BitDepth  int

	// Palette holds RGBA quadruplets, at most 256 of them. It is
	// required for ColorPalette and an optional suggested palette
	// otherwise.
	Palette []byte

	// The color key: pixels equal to it decode as fully transparent.
	// Meaningful for ColorGrey and ColorRGB only; the components are
	// at the mode's bit depth.
	KeyDefined       bool
	KeyR, KeyG, KeyB int
}

// MakeColorMode returns a ColorMode with no palette and no key.
func MakeColorMode(colorType ColorType, bitDepth int) ColorMode {
	return ColorMode{ColorType: colorType, BitDepth: bitDepth}
}

// Channels returns the number of samples per pixel.
func (m *ColorMode) Channels() int {
	switch m.ColorType {
	case ColorGrey, ColorPalette:
		return 1
	case ColorGreyAlpha:
		return 2
	case ColorRGB:
		return 3
	default:
		return 4
	}
}

// BitsPerPixel returns bit depth times channels.
func (m *ColorMode) BitsPerPixel() int {
	return m.BitDepth * m.Channels()
}

// IsGreyType reports whether the mode is grey or grey with alpha.
func (m *ColorMode) IsGreyType() bool {
	return m.ColorType == ColorGrey || m.ColorType == ColorGreyAlpha
}

// IsAlphaType reports whether the mode carries a full alpha channel.
func (m *ColorMode) IsAlphaType() bool {
	return m.ColorType == ColorGreyAlpha || m.ColorType == ColorRGBA
}

// CanHaveAlpha reports whether any pixel can be non-opaque: an alpha
// channel, a color key, or a palette (whose entries carry alpha).
func (m *ColorMode) CanHaveAlpha() bool {
	return m.IsAlphaType() || m.KeyDefined || m.ColorType == ColorPalette
}

// PaletteSize returns the number of palette entries.
func (m *ColorMode) PaletteSize() int {
	return len(m.Palette) / 4
}

// AddPaletteColor appends one RGBA entry to the palette.
func (m *ColorMode) AddPaletteColor(r, g, b, a byte) error {
	if m.PaletteSize() >= 256 {
		return errPaletteTooBig
	}
	m.Palette = append(m.Palette, r, g, b, a)
	return nil
}

// Equal reports whether two modes describe the same pixel encoding.
func (m *ColorMode) Equal(o *ColorMode) bool {
	if m.ColorType != o.ColorType || m.BitDepth != o.BitDepth {
		return false
	}
	if m.KeyDefined != o.KeyDefined {
		return false
	}
	if m.KeyDefined && (m.KeyR != o.KeyR || m.KeyG != o.KeyG || m.KeyB != o.KeyB) {
		return false
	}
	if len(m.Palette) != len(o.Palette) {
		return false
	}
	for i := range m.Palette {
		if m.Palette[i] != o.Palette[i] {
			return false
		}
	}
	return true
}

// Validate checks the color type, the bit depth and their combination,
// the palette size and the key rules.
func (m *ColorMode) Validate() error {
	switch m.BitDepth {
	case 1, 2, 4:
		if m.ColorType != ColorGrey && m.ColorType != ColorPalette {
			return errColorDepth
		}
	case 8:
	case 16:
		if m.ColorType == ColorPalette {
			return errColorDepth
		}
	default:
		return errColorDepth
	}
	switch m.ColorType {
	case ColorGrey, ColorRGB, ColorPalette, ColorGreyAlpha, ColorRGBA:
	default:
		return errColorType
	}
	if m.ColorType == ColorPalette && m.PaletteSize() > 1<<m.BitDepth {
		return errPaletteTooBig
	}
	if m.KeyDefined && m.IsAlphaType() {
		return errKeyWithAlpha
	}
	return nil
}

// RawSize returns the byte size of a pixel buffer in this mode: rows of
// width*bpp bits each padded to a whole byte, concatenated.
func (m *ColorMode) RawSize(w, h int) int {
	lineBytes := (w*m.BitsPerPixel() + 7) / 8
	return h * lineBytes
}

func checkDimensions(w, h int) error {
	if w <= 0 || h <= 0 || w > 0x7fffffff || h > 0x7fffffff {
		return errDimensions
	}
	return nil
}
