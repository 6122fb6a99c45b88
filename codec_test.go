package pngx

import (
	"bytes"
	"image"
	stdpng "image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func rgba16Image(w, h int, at func(x, y int) [4]uint16) []byte {
	out := make([]byte, w*h*8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := at(x, y)
			i := (y*w + x) * 8
			for c := 0; c < 4; c++ {
				out[i+2*c] = byte(px[c] >> 8)
				out[i+2*c+1] = byte(px[c])
			}
		}
	}
	return out
}

// roundTrip converts base into mode, encodes it without auto-convert,
// decodes it back without color conversion, and demands byte equality.
func roundTrip(t *testing.T, name string, mode ColorMode, w, h, interlace int, base []byte, baseMode ColorMode) {
	raw := make([]byte, mode.RawSize(w, h))
	require.NoError(t, Convert(raw, base, &mode, &baseMode, w, h), name)

	state := NewState()
	state.Encoder.AutoConvert = false
	state.InfoRaw = mode
	state.InfoPNG.Color = mode
	state.InfoPNG.InterlaceMethod = interlace
	png, err := EncodeState(raw, w, h, state)
	require.NoError(t, err, name)

	d := NewState()
	d.Decoder.ColorConvert = false
	got, gw, gh, err := DecodeState(png, d)
	require.NoError(t, err, name)
	require.Equal(t, w, gw, name)
	require.Equal(t, h, gh, name)
	require.Equal(t, raw, got, name)

	decoded := &d.InfoPNG.Color
	require.Equal(t, mode.ColorType, decoded.ColorType, name)
	require.Equal(t, mode.BitDepth, decoded.BitDepth, name)
	require.Equal(t, mode.Palette, decoded.Palette, name)
	require.Equal(t, mode.KeyDefined, decoded.KeyDefined, name)
	if mode.KeyDefined {
		require.Equal(t, mode.KeyR, decoded.KeyR, name)
		require.Equal(t, mode.KeyG, decoded.KeyG, name)
		require.Equal(t, mode.KeyB, decoded.KeyB, name)
	}
}

func TestRoundTripAllModes(t *testing.T) {
	w, h := 13, 9
	rgba8 := MakeColorMode(ColorRGBA, 8)
	rgba16 := MakeColorMode(ColorRGBA, 16)

	grey1 := rgbaImage(w, h, func(x, y int) [4]byte {
		v := byte(255 * ((x ^ y) & 1))
		return [4]byte{v, v, v, 255}
	})
	grey4 := rgbaImage(w, h, func(x, y int) [4]byte {
		v := byte(17 * ((x + y) % 16))
		return [4]byte{v, v, v, 255}
	})
	grey8 := rgbaImage(w, h, func(x, y int) [4]byte {
		v := byte((x*13 + y*31) % 256)
		return [4]byte{v, v, v, 255}
	})
	colorful := rgbaImage(w, h, func(x, y int) [4]byte {
		return [4]byte{byte(x * 19), byte(y * 27), byte(x*y + 1), byte(255 - x*2)}
	})
	opaque := rgbaImage(w, h, func(x, y int) [4]byte {
		return [4]byte{byte(x * 19), byte(y * 27), byte(x*y + 1), 255}
	})
	keyed := rgbaImage(w, h, func(x, y int) [4]byte {
		if (x+y)%5 == 0 {
			return [4]byte{0, 0, 0, 0}
		}
		return [4]byte{byte(x * 19), byte(y*27 + 1), byte(x*y + 1), 255}
	})
	grey16 := rgba16Image(w, h, func(x, y int) [4]uint16 {
		v := uint16(x*517 + y*311)
		return [4]uint16{v, v, v, 65535}
	})
	colorful16 := rgba16Image(w, h, func(x, y int) [4]uint16 {
		return [4]uint16{uint16(x * 5001), uint16(y * 7003), uint16(x*y + 259), uint16(65535 - x*301)}
	})

	pal4 := MakeColorMode(ColorPalette, 4)
	for i := 0; i < 16; i++ {
		require.NoError(t, pal4.AddPaletteColor(byte(i*16), byte(255-i*16), byte(i), byte(255-i%3)))
	}
	paletted := rgbaImage(w, h, func(x, y int) [4]byte {
		i := (x + y*3) % 16
		return [4]byte{byte(i * 16), byte(255 - i*16), byte(i), byte(255 - i%3)}
	})

	greyKey := MakeColorMode(ColorGrey, 8)
	greyKey.KeyDefined = true
	greyKey.KeyR, greyKey.KeyG, greyKey.KeyB = 77, 77, 77
	greyKeyImg := rgbaImage(w, h, func(x, y int) [4]byte {
		if (x+y)%7 == 0 {
			return [4]byte{1, 2, 3, 0}
		}
		v := byte((x*13 + y*31) % 256)
		if v == 77 {
			v = 78
		}
		return [4]byte{v, v, v, 255}
	})

	rgbKey := MakeColorMode(ColorRGB, 8)
	rgbKey.KeyDefined = true
	rgbKey.KeyR, rgbKey.KeyG, rgbKey.KeyB = 1, 2, 3

	cases := []struct {
		name     string
		mode     ColorMode
		base     []byte
		baseMode ColorMode
	}{
		{"grey1", MakeColorMode(ColorGrey, 1), grey1, rgba8},
		{"grey2", MakeColorMode(ColorGrey, 2), rgbaImage(w, h, func(x, y int) [4]byte {
			v := byte(85 * ((x + y) % 4))
			return [4]byte{v, v, v, 255}
		}), rgba8},
		{"grey4", MakeColorMode(ColorGrey, 4), grey4, rgba8},
		{"grey8", MakeColorMode(ColorGrey, 8), grey8, rgba8},
		{"grey16", MakeColorMode(ColorGrey, 16), grey16, rgba16},
		{"greykey8", greyKey, greyKeyImg, rgba8},
		{"palette4", pal4, paletted, rgba8},
		{"rgb8", MakeColorMode(ColorRGB, 8), opaque, rgba8},
		{"rgbkey8", rgbKey, keyed, rgba8},
		{"rgb16", MakeColorMode(ColorRGB, 16), rgba16Image(w, h, func(x, y int) [4]uint16 {
			return [4]uint16{uint16(x * 5001), uint16(y * 7003), uint16(x*y + 259), 65535}
		}), rgba16},
		{"greyalpha8", MakeColorMode(ColorGreyAlpha, 8), rgbaImage(w, h, func(x, y int) [4]byte {
			v := byte((x*13 + y*31) % 256)
			return [4]byte{v, v, v, byte(255 - y*11)}
		}), rgba8},
		{"greyalpha16", MakeColorMode(ColorGreyAlpha, 16), grey16, rgba16},
		{"rgba8", MakeColorMode(ColorRGBA, 8), colorful, rgba8},
		{"rgba16", MakeColorMode(ColorRGBA, 16), colorful16, rgba16},
	}
	for _, c := range cases {
		roundTrip(t, c.name, c.mode, w, h, 0, c.base, c.baseMode)
		roundTrip(t, c.name+"/adam7", c.mode, w, h, 1, c.base, c.baseMode)
	}
}

func TestRoundTripOddSizes(t *testing.T) {
	rgba8 := MakeColorMode(ColorRGBA, 8)
	dims := []struct{ w, h int }{{1, 1}, {1, 13}, {13, 1}, {2, 3}, {31, 2}}
	for _, d := range dims {
		img := rgbaImage(d.w, d.h, func(x, y int) [4]byte {
			return [4]byte{byte(x * 50), byte(y * 50), byte(x + y), 255}
		})
		for _, interlace := range []int{0, 1} {
			roundTrip(t, "rgba8", MakeColorMode(ColorRGBA, 8), d.w, d.h, interlace, img, rgba8)
			roundTrip(t, "grey1", MakeColorMode(ColorGrey, 1), d.w, d.h, interlace, rgbaImage(d.w, d.h, func(x, y int) [4]byte {
				v := byte(255 * ((x + y) % 2))
				return [4]byte{v, v, v, 255}
			}), rgba8)
		}
	}
}

// Encoding the same pixels interlaced and non-interlaced must decode to
// identical buffers.
func TestAdam7Equivalence(t *testing.T) {
	w, h := 21, 17
	img := rgbaImage(w, h, func(x, y int) [4]byte {
		return [4]byte{byte(x * 11), byte(y * 23), byte((x + y) * 5), byte(200 + x%55)}
	})

	var decoded [2][]byte
	for i, interlace := range []int{0, 1} {
		state := NewState()
		state.Encoder.AutoConvert = false
		state.InfoPNG.InterlaceMethod = interlace
		png, err := EncodeState(img, w, h, state)
		require.NoError(t, err)

		got, gw, gh, err := Decode(png)
		require.NoError(t, err)
		require.Equal(t, w, gw)
		require.Equal(t, h, gh)
		decoded[i] = got
	}
	require.Equal(t, decoded[0], decoded[1])
	require.Equal(t, img, decoded[0])
}

func TestSixteenBitGrey(t *testing.T) {
	w, h := 32, 32
	mode := MakeColorMode(ColorGrey, 16)
	raw := make([]byte, mode.RawSize(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint16(x*513 + y*7 + 0x1234)
			i := (y*w + x) * 2
			raw[i], raw[i+1] = byte(v>>8), byte(v)
		}
	}

	state := NewState()
	state.Encoder.AutoConvert = false
	state.InfoRaw = mode
	state.InfoPNG.Color = mode
	png, err := EncodeState(raw, w, h, state)
	require.NoError(t, err)

	d := NewState()
	d.InfoRaw = MakeColorMode(ColorRGBA, 16)
	got, _, _, err := DecodeState(png, d)
	require.NoError(t, err)
	require.Len(t, got, w*h*8)

	// Samples stay big-endian: the second output byte is the low byte
	// of the first grey sample.
	first := uint16(0x1234)
	require.Equal(t, byte(first>>8), got[0])
	require.Equal(t, byte(first), got[1])
	require.Equal(t, got[0], got[2]) // replicated to G and B
	require.Equal(t, byte(0xff), got[6])
}

func TestSinglePixelAutoConvert(t *testing.T) {
	png, err := Encode([]byte{0, 0, 255, 255}, 1, 1)
	require.NoError(t, err)

	d := NewState()
	got, w, h, err := DecodeState(png, d)
	require.NoError(t, err)
	require.Equal(t, 1, w)
	require.Equal(t, 1, h)
	require.Equal(t, []byte{0, 0, 255, 255}, got)
	require.Equal(t, ColorPalette, d.InfoPNG.Color.ColorType)
	require.Equal(t, 1, d.InfoPNG.Color.BitDepth)
}

func TestTransparentPixelKey(t *testing.T) {
	w, h := 20, 20
	k := 137
	img := rgbaImage(w, h, func(x, y int) [4]byte {
		i := y*w + x
		if i == k {
			return [4]byte{0, 0, 0, 0}
		}
		return [4]byte{byte(i & 255), byte((i>>8)*50 + 3), 10, 255}
	})

	state := NewState()
	png, err := EncodeState(img, w, h, state)
	require.NoError(t, err)
	require.Equal(t, ColorRGB, state.InfoPNG.Color.ColorType)
	require.True(t, state.InfoPNG.Color.KeyDefined)

	got, _, _, err := Decode(png)
	require.NoError(t, err)
	for i := 0; i < w*h; i++ {
		if i == k {
			require.Equal(t, byte(0), got[i*4+3], "pixel %d", i)
		} else {
			require.Equal(t, byte(255), got[i*4+3], "pixel %d", i)
		}
	}
}

// The standard library is the oracle for the full codec: it must decode
// what we encode, and we must decode what it encodes.
func TestStdlibOracle(t *testing.T) {
	w, h := 25, 19
	img := rgbaImage(w, h, func(x, y int) [4]byte {
		return [4]byte{byte(x * 9), byte(y * 13), byte(x ^ y), byte(100 + (x+y)%156)}
	})

	state := NewState()
	state.Encoder.AutoConvert = false
	ours, err := EncodeState(img, w, h, state)
	require.NoError(t, err)

	stdImg, err := stdpng.Decode(bytes.NewReader(ours))
	require.NoError(t, err)
	nrgba, ok := stdImg.(*image.NRGBA)
	require.True(t, ok)
	require.Equal(t, w, nrgba.Rect.Dx())
	require.Equal(t, h, nrgba.Rect.Dy())
	require.Equal(t, img, nrgba.Pix)

	var buf bytes.Buffer
	src := &image.NRGBA{Pix: append([]byte(nil), img...), Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	require.NoError(t, stdpng.Encode(&buf, src))
	got, gw, gh, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, w, gw)
	require.Equal(t, h, gh)
	require.Equal(t, img, got)
}

func TestDecodeRobustness(t *testing.T) {
	// Every single-byte corruption of a valid file must produce either
	// an error or an image, never a crash.
	w, h := 7, 7
	img := rgbaImage(w, h, func(x, y int) [4]byte {
		c := [][4]byte{{10, 20, 30, 255}, {200, 100, 0, 255}, {0, 0, 0, 255}, {255, 255, 255, 255}}
		return c[(x+2*y)%4]
	})
	png, err := Encode(img, w, h)
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(99))
	mutated := append([]byte(nil), png...)
	for i := range mutated {
		orig := mutated[i]
		variants := []byte{0, 255, ^orig, orig ^ byte(1 << rnd.Intn(8))}
		for _, v := range variants {
			mutated[i] = v
			Decode(mutated)
		}
		mutated[i] = orig
	}

	// Truncations at every length, too.
	for n := 0; n < len(png); n++ {
		Decode(png[:n])
	}
}
