package pngx

import "github.com/fumin/pngx/pngerr"

var errPaletteMissing = pngerr.New(82, "color not in palette while converting to palette mode")

// readBitsReversed reads n bits high bit first, the packing order of
// sub-byte PNG samples.
func readBitsReversed(bitPtr *int, data []byte, n int) int {
	v := 0
	for i := 0; i < n; i++ {
		v = v<<1 | int(readBitReversed(bitPtr, data))
	}
	return v
}

func setBitsReversed(bitPtr *int, data []byte, v, n int) {
	for i := n - 1; i >= 0; i-- {
		setBitReversed(bitPtr, data, byte(v>>i&1))
	}
}

// scaleTo16 expands a sample of the given depth to 16 bits such that the
// full range maps to the full range exactly.
func scaleTo16(v, depth int) uint16 {
	switch depth {
	case 16:
		return uint16(v)
	case 8:
		return uint16(v * 257)
	default:
		max := 1<<depth - 1
		return uint16(v * 65535 / max)
	}
}

// readPixel returns pixel (x, y) of in as 16-bit RGBA. Rows of in are
// padded to whole bytes.
func readPixel(in []byte, mode *ColorMode, lineBytes, x, y int) (r, g, b, a uint16, err error) {
	d := mode.BitDepth
	switch mode.ColorType {
	case ColorGrey:
		var v int
		if d < 8 {
			bitPos := y*lineBytes*8 + x*d
			v = readBitsReversed(&bitPos, in, d)
		} else if d == 8 {
			v = int(in[y*lineBytes+x])
		} else {
			i := y*lineBytes + x*2
			v = int(in[i])<<8 | int(in[i+1])
		}
		gr := scaleTo16(v, d)
		a = 65535
		if mode.KeyDefined && v == mode.KeyR {
			a = 0
		}
		return gr, gr, gr, a, nil
	case ColorRGB:
		var rv, gv, bv int
		if d == 8 {
			i := y*lineBytes + x*3
			rv, gv, bv = int(in[i]), int(in[i+1]), int(in[i+2])
		} else {
			i := y*lineBytes + x*6
			rv = int(in[i])<<8 | int(in[i+1])
			gv = int(in[i+2])<<8 | int(in[i+3])
			bv = int(in[i+4])<<8 | int(in[i+5])
		}
		a = 65535
		if mode.KeyDefined && rv == mode.KeyR && gv == mode.KeyG && bv == mode.KeyB {
			a = 0
		}
		return scaleTo16(rv, d), scaleTo16(gv, d), scaleTo16(bv, d), a, nil
	case ColorPalette:
		var index int
		if d < 8 {
			bitPos := y*lineBytes*8 + x*d
			index = readBitsReversed(&bitPos, in, d)
		} else {
			index = int(in[y*lineBytes+x])
		}
		if index >= mode.PaletteSize() {
			return 0, 0, 0, 0, errPaletteIndex
		}
		p := mode.Palette[index*4:]
		return uint16(p[0]) * 257, uint16(p[1]) * 257, uint16(p[2]) * 257, uint16(p[3]) * 257, nil
	case ColorGreyAlpha:
		var gv, av int
		if d == 8 {
			i := y*lineBytes + x*2
			gv, av = int(in[i]), int(in[i+1])
		} else {
			i := y*lineBytes + x*4
			gv = int(in[i])<<8 | int(in[i+1])
			av = int(in[i+2])<<8 | int(in[i+3])
		}
		gr := scaleTo16(gv, d)
		return gr, gr, gr, scaleTo16(av, d), nil
	default: // ColorRGBA
		if d == 8 {
			i := y*lineBytes + x*4
			return uint16(in[i]) * 257, uint16(in[i+1]) * 257, uint16(in[i+2]) * 257, uint16(in[i+3]) * 257, nil
		}
		i := y*lineBytes + x*8
		r = uint16(in[i])<<8 | uint16(in[i+1])
		g = uint16(in[i+2])<<8 | uint16(in[i+3])
		b = uint16(in[i+4])<<8 | uint16(in[i+5])
		a = uint16(in[i+6])<<8 | uint16(in[i+7])
		return r, g, b, a, nil
	}
}

// greySample folds RGB into one grey sample: the channel value when the
// pixel is already grey, the arithmetic mean otherwise. The mean is the
// lossy path a caller opts into by forcing a grey target mode.
func greySample(r, g, b uint16) int {
	if r == g && g == b {
		return int(r)
	}
	return (int(r) + int(g) + int(b)) / 3
}

// writePixel stores a 16-bit RGBA value as pixel (x, y) of out in the
// target mode. palMap maps packed 16-bit RGBA to palette indices.
func writePixel(out []byte, mode *ColorMode, lineBytes, x, y int, r, g, b, a uint16, palMap map[uint64]int) error {
	d := mode.BitDepth
	switch mode.ColorType {
	case ColorGrey:
		v := greySample(r, g, b)
		if mode.KeyDefined && a == 0 {
			v = mode.KeyR << (16 - d) // key is at the mode's depth
			if d == 16 {
				v = mode.KeyR
			}
		}
		switch {
		case d < 8:
			bitPos := y*lineBytes*8 + x*d
			setBitsReversed(&bitPos, out, v>>(16-d), d)
		case d == 8:
			out[y*lineBytes+x] = byte(v >> 8)
		default:
			i := y*lineBytes + x*2
			out[i], out[i+1] = byte(v>>8), byte(v)
		}
	case ColorRGB:
		rv, gv, bv := int(r), int(g), int(b)
		if mode.KeyDefined && a == 0 {
			if d == 8 {
				rv, gv, bv = mode.KeyR*257, mode.KeyG*257, mode.KeyB*257
			} else {
				rv, gv, bv = mode.KeyR, mode.KeyG, mode.KeyB
			}
		}
		if d == 8 {
			i := y*lineBytes + x*3
			out[i], out[i+1], out[i+2] = byte(rv>>8), byte(gv>>8), byte(bv>>8)
		} else {
			i := y*lineBytes + x*6
			out[i], out[i+1] = byte(rv>>8), byte(rv)
			out[i+2], out[i+3] = byte(gv>>8), byte(gv)
			out[i+4], out[i+5] = byte(bv>>8), byte(bv)
		}
	case ColorPalette:
		index, ok := palMap[packRGBA16(r, g, b, a)]
		if !ok {
			return errPaletteMissing
		}
		if d < 8 {
			bitPos := y*lineBytes*8 + x*d
			setBitsReversed(&bitPos, out, index, d)
		} else {
			out[y*lineBytes+x] = byte(index)
		}
	case ColorGreyAlpha:
		v := greySample(r, g, b)
		if d == 8 {
			i := y*lineBytes + x*2
			out[i], out[i+1] = byte(v>>8), byte(a>>8)
		} else {
			i := y*lineBytes + x*4
			out[i], out[i+1] = byte(v>>8), byte(v)
			out[i+2], out[i+3] = byte(a>>8), byte(a)
		}
	default: // ColorRGBA
		if d == 8 {
			i := y*lineBytes + x*4
			out[i], out[i+1], out[i+2], out[i+3] = byte(r>>8), byte(g>>8), byte(b>>8), byte(a>>8)
		} else {
			i := y*lineBytes + x*8
			out[i], out[i+1] = byte(r>>8), byte(r)
			out[i+2], out[i+3] = byte(g>>8), byte(g)
			out[i+4], out[i+5] = byte(b>>8), byte(b)
			out[i+6], out[i+7] = byte(a>>8), byte(a)
		}
	}
	return nil
}

func packRGBA16(r, g, b, a uint16) uint64 {
	return uint64(r)<<48 | uint64(g)<<32 | uint64(b)<<16 | uint64(a)
}

// Convert transcodes in from inMode to outMode. out must have
// outMode.RawSize(w, h) bytes. Conversions that cannot represent the
// input exactly (dropping alpha, folding color to grey) are performed
// lossily; only a missing palette color is an error.
func Convert(out, in []byte, outMode, inMode *ColorMode, w, h int) error {
	if err := inMode.Validate(); err != nil {
		return err
	}
	if err := outMode.Validate(); err != nil {
		return err
	}
	if inMode.Equal(outMode) {
		copy(out, in)
		return nil
	}

	var palMap map[uint64]int
	if outMode.ColorType == ColorPalette {
		palMap = make(map[uint64]int, outMode.PaletteSize())
		for i := 0; i < outMode.PaletteSize(); i++ {
			p := outMode.Palette[i*4:]
			k := packRGBA16(uint16(p[0])*257, uint16(p[1])*257, uint16(p[2])*257, uint16(p[3])*257)
			if _, ok := palMap[k]; !ok {
				palMap[k] = i
			}
		}
	}

	inLine := (w*inMode.BitsPerPixel() + 7) / 8
	outLine := (w*outMode.BitsPerPixel() + 7) / 8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a, err := readPixel(in, inMode, inLine, x, y)
			if err != nil {
				return err
			}
			if err := writePixel(out, outMode, outLine, x, y, r, g, b, a, palMap); err != nil {
				return err
			}
		}
	}
	return nil
}

// A ColorProfile summarizes one scan over an image: everything the
// encoder needs to pick the smallest lossless PNG color mode.
type ColorProfile struct {
	// Colored is set when any pixel has R, G and B unequal.
	Colored bool
	// Key is set when transparency is exactly one fully transparent
	// color, never used by an opaque pixel. KeyR, KeyG, KeyB are its
	// 16-bit components.
	Key              bool
	KeyR, KeyG, KeyB uint16
	// Alpha is set when transparency cannot be expressed by a key:
	// translucent pixels, or several transparent colors.
	Alpha bool
	// NumColors counts distinct pixel values up to 257; Palette holds
	// the first 256 of them as RGBA quadruplets, in scan order.
	NumColors int
	Palette   []byte
	// Bits is the smallest sample depth (1, 2, 4, 8 or 16) that holds
	// every sample exactly; it is at least 8 once any pixel is colored
	// or not fully opaque.
	Bits int
}

// requiredBits returns the smallest depth in {1,2,4,8} that represents
// the 8-bit sample exactly under PNG's range scaling.
func requiredBits(v byte) int {
	switch {
	case v == 0 || v == 255:
		return 1
	case v%85 == 0:
		return 2
	case v%17 == 0:
		return 4
	default:
		return 8
	}
}

// ComputeColorProfile scans the image once and summarizes it.
func ComputeColorProfile(in []byte, w, h int, mode *ColorMode) (*ColorProfile, error) {
	p := &ColorProfile{Bits: 1}
	lineBytes := (w*mode.BitsPerPixel() + 7) / 8
	seen := make(map[uint32]bool)
	sixteen := false

	var keyDefined bool
	var keyR, keyG, keyB uint16

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a, err := readPixel(in, mode, lineBytes, x, y)
			if err != nil {
				return nil, err
			}

			if !sixteen {
				for _, v := range [4]uint16{r, g, b, a} {
					if v>>8 != v&255 {
						sixteen = true
						p.Bits = 16
						p.NumColors = 257
						p.Palette = nil
						break
					}
				}
			}

			if r != g || g != b {
				p.Colored = true
				if !sixteen && p.Bits < 8 {
					p.Bits = 8
				}
			} else if !sixteen {
				if n := requiredBits(byte(r >> 8)); n > p.Bits {
					p.Bits = n
				}
			}

			if a != 65535 {
				if a == 0 {
					if !keyDefined {
						keyDefined = true
						keyR, keyG, keyB = r, g, b
					} else if r != keyR || g != keyG || b != keyB {
						p.Alpha = true
					}
				} else {
					p.Alpha = true
				}
				if !sixteen && p.Bits < 8 {
					p.Bits = 8
				}
			}

			if !sixteen && p.NumColors <= 256 {
				k := uint32(r>>8)<<24 | uint32(g>>8)<<16 | uint32(b>>8)<<8 | uint32(a>>8)
				if !seen[k] {
					seen[k] = true
					if p.NumColors < 256 {
						p.Palette = append(p.Palette, byte(r>>8), byte(g>>8), byte(b>>8), byte(a>>8))
					}
					p.NumColors++
				}
			}
		}
	}

	// A color key only works if no opaque pixel shares its color.
	if keyDefined && !p.Alpha {
		for y := 0; y < h && !p.Alpha; y++ {
			for x := 0; x < w; x++ {
				r, g, b, a, err := readPixel(in, mode, lineBytes, x, y)
				if err != nil {
					return nil, err
				}
				if a != 0 && r == keyR && g == keyG && b == keyB {
					p.Alpha = true
					break
				}
			}
		}
	}
	if keyDefined && !p.Alpha {
		p.Key = true
		p.KeyR, p.KeyG, p.KeyB = keyR, keyG, keyB
	}
	return p, nil
}

// AutoChooseColor picks the smallest PNG color mode that holds the image
// losslessly, by precedence: grey, palette, RGB with color key, grey
// with alpha, RGB, RGBA.
func AutoChooseColor(in []byte, w, h int, mode *ColorMode) (ColorMode, error) {
	p, err := ComputeColorProfile(in, w, h, mode)
	if err != nil {
		return ColorMode{}, err
	}

	wide := 8
	if p.Bits == 16 {
		wide = 16
	}
	hasTransparency := p.Alpha || p.Key

	switch {
	case !hasTransparency && !p.Colored:
		return MakeColorMode(ColorGrey, p.Bits), nil
	case p.NumColors <= 256 && p.Bits <= 8:
		depth := 8
		for _, d := range []int{1, 2, 4} {
			if p.NumColors <= 1<<d {
				depth = d
				break
			}
		}
		m := MakeColorMode(ColorPalette, depth)
		m.Palette = append([]byte(nil), p.Palette...)
		return m, nil
	case p.Key && !p.Alpha:
		m := MakeColorMode(ColorRGB, wide)
		m.KeyDefined = true
		if wide == 8 {
			m.KeyR, m.KeyG, m.KeyB = int(p.KeyR>>8), int(p.KeyG>>8), int(p.KeyB>>8)
		} else {
			m.KeyR, m.KeyG, m.KeyB = int(p.KeyR), int(p.KeyG), int(p.KeyB)
		}
		return m, nil
	case !p.Colored:
		return MakeColorMode(ColorGreyAlpha, wide), nil
	case !hasTransparency:
		return MakeColorMode(ColorRGB, wide), nil
	default:
		return MakeColorMode(ColorRGBA, wide), nil
	}
}
