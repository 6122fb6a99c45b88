package pngx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fumin/pngx/pngerr"
)

// rgbaImage builds an 8-bit RGBA buffer from a pixel generator.
func rgbaImage(w, h int, at func(x, y int) [4]byte) []byte {
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := at(x, y)
			copy(out[(y*w+x)*4:], px[:])
		}
	}
	return out
}

func TestScaleTo16(t *testing.T) {
	require.Equal(t, uint16(0), scaleTo16(0, 1))
	require.Equal(t, uint16(65535), scaleTo16(1, 1))
	require.Equal(t, uint16(21845), scaleTo16(1, 2))
	require.Equal(t, uint16(4369), scaleTo16(1, 4))
	require.Equal(t, uint16(257), scaleTo16(1, 8))
	require.Equal(t, uint16(65535), scaleTo16(255, 8))
	require.Equal(t, uint16(1234), scaleTo16(1234, 16))
}

func TestConvertRoundTrips(t *testing.T) {
	w, h := 6, 4
	rgba8 := MakeColorMode(ColorRGBA, 8)

	grey := rgbaImage(w, h, func(x, y int) [4]byte {
		v := byte((x + y*w) * 17 % 256)
		return [4]byte{v, v, v, 255}
	})
	fourColors := rgbaImage(w, h, func(x, y int) [4]byte {
		c := [][4]byte{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 128}, {9, 9, 9, 0}}
		return c[(x+y)%4]
	})
	colorful := rgbaImage(w, h, func(x, y int) [4]byte {
		return [4]byte{byte(x * 40), byte(y * 60), byte(x*y + 3), byte(255 - x)}
	})

	palette := MakeColorMode(ColorPalette, 2)
	for _, c := range [][4]byte{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 128}, {9, 9, 9, 0}} {
		require.NoError(t, palette.AddPaletteColor(c[0], c[1], c[2], c[3]))
	}

	cases := []struct {
		name string
		mode ColorMode
		img  []byte
	}{
		{"grey8", MakeColorMode(ColorGrey, 8), grey},
		{"greyalpha8", MakeColorMode(ColorGreyAlpha, 8), grey},
		{"palette2", palette, fourColors},
		{"rgb8", MakeColorMode(ColorRGB, 8), rgbaImage(w, h, func(x, y int) [4]byte {
			return [4]byte{byte(x * 40), byte(y * 60), byte(x*y + 3), 255}
		})},
		{"rgba8", MakeColorMode(ColorRGBA, 8), colorful},
	}
	for _, c := range cases {
		mid := make([]byte, c.mode.RawSize(w, h))
		require.NoError(t, Convert(mid, c.img, &c.mode, &rgba8, w, h), c.name)

		back := make([]byte, rgba8.RawSize(w, h))
		require.NoError(t, Convert(back, mid, &rgba8, &c.mode, w, h), c.name)
		require.Equal(t, c.img, back, c.name)
	}
}

func TestConvertPaletteOverflow(t *testing.T) {
	w, h := 2, 1
	rgba8 := MakeColorMode(ColorRGBA, 8)
	img := rgbaImage(w, h, func(x, y int) [4]byte {
		return [4]byte{byte(200 * x), 0, 0, 255}
	})

	palette := MakeColorMode(ColorPalette, 1)
	require.NoError(t, palette.AddPaletteColor(0, 0, 0, 255))

	out := make([]byte, palette.RawSize(w, h))
	err := Convert(out, img, &palette, &rgba8, w, h)
	require.Equal(t, uint(82), pngerr.CodeOf(err))
}

func TestConvertForcedGreyUsesMean(t *testing.T) {
	rgba8 := MakeColorMode(ColorRGBA, 8)
	grey8 := MakeColorMode(ColorGrey, 8)
	img := []byte{30, 60, 90, 255}

	out := make([]byte, 1)
	require.NoError(t, Convert(out, img, &grey8, &rgba8, 1, 1))
	require.Equal(t, byte(60), out[0])
}

func TestAutoChooseColor(t *testing.T) {
	rgba8 := MakeColorMode(ColorRGBA, 8)
	w, h := 20, 20

	manyColors := func(transparentAt int, translucent bool) []byte {
		return rgbaImage(w, h, func(x, y int) [4]byte {
			i := y*w + x
			if i == transparentAt {
				return [4]byte{0, 0, 0, 0}
			}
			a := byte(255)
			if translucent && i == 3 {
				a = 128
			}
			return [4]byte{byte(i & 255), byte((i>>8)*50 + 3), 10, a}
		})
	}

	cases := []struct {
		name      string
		img       []byte
		colorType ColorType
		bitDepth  int
		key       bool
	}{
		{"blackwhite", rgbaImage(w, h, func(x, y int) [4]byte {
			v := byte(255 * ((x + y) % 2))
			return [4]byte{v, v, v, 255}
		}), ColorGrey, 1, false},
		{"grey2", rgbaImage(w, h, func(x, y int) [4]byte {
			v := byte(85 * ((x + y) % 4))
			return [4]byte{v, v, v, 255}
		}), ColorGrey, 2, false},
		{"grey8", rgbaImage(w, h, func(x, y int) [4]byte {
			v := byte((x*31 + y*7) % 256)
			return [4]byte{v, v, v, 255}
		}), ColorGrey, 8, false},
		{"palette2", rgbaImage(w, h, func(x, y int) [4]byte {
			c := [][4]byte{{1, 2, 3, 255}, {4, 5, 6, 255}, {7, 8, 9, 128}}
			return c[(x+y)%3]
		}), ColorPalette, 2, false},
		{"rgbkey", manyColors(5, false), ColorRGB, 8, true},
		{"rgb", manyColors(-1, false), ColorRGB, 8, false},
		{"rgba", manyColors(5, true), ColorRGBA, 8, false},
	}
	for _, c := range cases {
		mode, err := AutoChooseColor(c.img, w, h, &rgba8)
		require.NoError(t, err, c.name)
		require.Equal(t, c.colorType, mode.ColorType, c.name)
		require.Equal(t, c.bitDepth, mode.BitDepth, c.name)
		require.Equal(t, c.key, mode.KeyDefined, c.name)
	}
}

func TestAutoChooseColorSinglePixel(t *testing.T) {
	// A single blue pixel becomes a one-entry palette at depth 1.
	rgba8 := MakeColorMode(ColorRGBA, 8)
	mode, err := AutoChooseColor([]byte{0, 0, 255, 255}, 1, 1, &rgba8)
	require.NoError(t, err)
	require.Equal(t, ColorPalette, mode.ColorType)
	require.Equal(t, 1, mode.BitDepth)
	require.Equal(t, 1, mode.PaletteSize())
	require.Equal(t, []byte{0, 0, 255, 255}, mode.Palette)
}

func TestAutoChooseColorGreyAlpha(t *testing.T) {
	// More than 256 distinct grey/alpha combinations rule the palette
	// out; all-grey pixels with translucency land in grey with alpha.
	w, h := 20, 20
	rgba8 := MakeColorMode(ColorRGBA, 8)
	img := rgbaImage(w, h, func(x, y int) [4]byte {
		i := y*w + x
		v := byte(i & 255)
		return [4]byte{v, v, v, byte(255 - i%97)}
	})
	mode, err := AutoChooseColor(img, w, h, &rgba8)
	require.NoError(t, err)
	require.Equal(t, ColorGreyAlpha, mode.ColorType)
	require.Equal(t, 8, mode.BitDepth)
}

func TestAutoChooseColorSixteenBit(t *testing.T) {
	rgba16 := MakeColorMode(ColorRGBA, 16)
	// One pixel whose high and low bytes differ needs 16 bits.
	img := []byte{
		0x12, 0x34, 0x12, 0x34, 0x12, 0x34, 0xff, 0xff,
	}
	mode, err := AutoChooseColor(img, 1, 1, &rgba16)
	require.NoError(t, err)
	require.Equal(t, ColorGrey, mode.ColorType)
	require.Equal(t, 16, mode.BitDepth)
}

func TestColorProfileKeyCollision(t *testing.T) {
	// An opaque pixel sharing the transparent pixel's color defeats
	// the color key.
	w, h := 20, 20
	rgba8 := MakeColorMode(ColorRGBA, 8)
	img := rgbaImage(w, h, func(x, y int) [4]byte {
		i := y*w + x
		switch i {
		case 0:
			return [4]byte{44, 55, 66, 0}
		case 1:
			return [4]byte{44, 55, 66, 255}
		default:
			return [4]byte{byte(i & 255), byte((i >> 8) * 90), 200, 255}
		}
	})
	p, err := ComputeColorProfile(img, w, h, &rgba8)
	require.NoError(t, err)
	require.True(t, p.Alpha)
	require.False(t, p.Key)

	mode, err := AutoChooseColor(img, w, h, &rgba8)
	require.NoError(t, err)
	require.Equal(t, ColorRGBA, mode.ColorType)
}
