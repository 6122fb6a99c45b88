package pngx

import "github.com/fumin/pngx/flate"

// A FilterStrategy selects how the encoder picks a filter type for each
// scanline.
type FilterStrategy int

const (
	// FilterStrategyZero always uses filter type 0.
	FilterStrategyZero FilterStrategy = iota
	// FilterStrategyMinSum tries all five filters per scanline and
	// keeps the one with the smallest sum of absolute signed bytes.
	FilterStrategyMinSum
	// FilterStrategyEntropy keeps the filter whose output histogram
	// has the smallest Shannon entropy.
	FilterStrategyEntropy
	// FilterStrategyBrute deflates every candidate and keeps the
	// smallest.
	FilterStrategyBrute
	// FilterStrategyPredefined uses the caller-supplied per-scanline
	// filter types.
	FilterStrategyPredefined
)

// DecoderSettings configures DecodeState.
type DecoderSettings struct {
	// ColorConvert converts the pixels to the mode in State.InfoRaw;
	// without it the raw output is in the PNG's own mode.
	ColorConvert bool
	// IgnoreCrc skips chunk CRC verification.
	IgnoreCrc bool
	// RememberUnknownChunks retains unknown ancillary chunks verbatim
	// in ImageInfo so a later encode re-emits them.
	RememberUnknownChunks bool
	// ReadTextChunks parses tEXt/zTXt/iTXt; without it they are
	// skipped.
	ReadTextChunks bool
	// MaxTextSize bounds the decompressed size of a single zTXt/iTXt
	// payload.
	MaxTextSize int

	Zlib flate.DecompressSettings
}

// EncoderSettings configures EncodeState.
type EncoderSettings struct {
	// AutoConvert scans the image and picks the smallest PNG color
	// mode that holds it losslessly; without it State.InfoPNG.Color
	// is used as given.
	AutoConvert bool

	FilterStrategy FilterStrategy
	// FilterPaletteZero forces filter type 0 for palette images and
	// bit depths below 8, where the byte-wise filters rarely help.
	FilterPaletteZero bool
	// PredefinedFilters supplies one filter type per scanline for
	// FilterStrategyPredefined.
	PredefinedFilters []byte

	// AddID appends an identification text chunk naming this library.
	AddID bool
	// TextCompression stores text entries as zTXt instead of tEXt,
	// and compresses iTXt payloads.
	TextCompression bool

	Zlib flate.CompressSettings
}

// State bundles the decoder and encoder settings with the two color
// descriptions involved in any conversion: InfoRaw describes the pixel
// buffer on the caller's side, InfoPNG the PNG stream's side.
type State struct {
	Decoder DecoderSettings
	Encoder EncoderSettings

	InfoRaw ColorMode
	InfoPNG ImageInfo
}

// NewState returns a state with the default settings and RGBA 8-bit
// raw pixels.
func NewState() *State {
	return &State{
		Decoder: DecoderSettings{
			ColorConvert:   true,
			ReadTextChunks: true,
			MaxTextSize:    16 << 20,
			Zlib:           flate.NewDecompressSettings(),
		},
		Encoder: EncoderSettings{
			AutoConvert:       true,
			FilterStrategy:    FilterStrategyMinSum,
			FilterPaletteZero: true,
			TextCompression:   true,
			Zlib:              flate.NewCompressSettings(),
		},
		InfoRaw: MakeColorMode(ColorRGBA, 8),
		InfoPNG: ImageInfo{Color: MakeColorMode(ColorRGBA, 8)},
	}
}
