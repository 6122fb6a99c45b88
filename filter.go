package pngx

import (
	"math"

	"github.com/fumin/pngx/flate"
	"github.com/fumin/pngx/pngerr"
)

// Filter type, as per the PNG spec.
const (
	ftNone    = 0
	ftSub     = 1
	ftUp      = 2
	ftAverage = 3
	ftPaeth   = 4
	nFilter   = 5
)

var (
	errFilterType        = pngerr.New(36, "invalid filter type in scanline")
	errPredefinedMissing = pngerr.New(88, "predefined filter strategy without per-scanline filters")
	errFilterStrategy    = pngerr.New(87, "unknown filter strategy")
)

// paethPredictor picks the neighbor closest to the linear prediction
// a+b-c; ties break in the order a, b, c.
func paethPredictor(a, b, c int) int {
	p := a + b - c
	pa, pb, pc := p-a, p-b, p-c
	if pa < 0 {
		pa = -pa
	}
	if pb < 0 {
		pb = -pb
	}
	if pc < 0 {
		pc = -pc
	}
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

// unfilterScanline reconstructs one scanline. precon is the
// reconstructed previous scanline, or nil for the first row. byteWidth
// is the number of bytes per pixel, 1 for sub-byte depths.
func unfilterScanline(recon, scanline, precon []byte, byteWidth int, filterType byte) error {
	up := func(i int) int {
		if precon == nil {
			return 0
		}
		return int(precon[i])
	}
	left := func(i int) int {
		if i < byteWidth {
			return 0
		}
		return int(recon[i-byteWidth])
	}
	upLeft := func(i int) int {
		if precon == nil || i < byteWidth {
			return 0
		}
		return int(precon[i-byteWidth])
	}

	switch filterType {
	case ftNone:
		copy(recon, scanline)
	case ftSub:
		for i := range scanline {
			recon[i] = scanline[i] + byte(left(i))
		}
	case ftUp:
		for i := range scanline {
			recon[i] = scanline[i] + byte(up(i))
		}
	case ftAverage:
		for i := range scanline {
			recon[i] = scanline[i] + byte((left(i)+up(i))/2)
		}
	case ftPaeth:
		for i := range scanline {
			recon[i] = scanline[i] + byte(paethPredictor(left(i), up(i), upLeft(i)))
		}
	default:
		return errFilterType
	}
	return nil
}

// unfilter reconstructs all scanlines of an image or interlace pass.
// in holds h scanlines each preceded by a filter type byte; out receives
// the h reconstructed scanlines.
func unfilter(out, in []byte, w, h, bpp int) error {
	byteWidth := (bpp + 7) / 8
	lineBytes := (w*bpp + 7) / 8

	var precon []byte
	for y := 0; y < h; y++ {
		inStart := y * (1 + lineBytes)
		outStart := y * lineBytes
		recon := out[outStart : outStart+lineBytes]
		err := unfilterScanline(recon, in[inStart+1:inStart+1+lineBytes], precon, byteWidth, in[inStart])
		if err != nil {
			return err
		}
		precon = recon
	}
	return nil
}

// filterScanline produces the filtered form of one scanline. prev is the
// unfiltered previous scanline, or nil for the first row.
func filterScanline(out, scanline, prev []byte, byteWidth int, filterType byte) {
	up := func(i int) int {
		if prev == nil {
			return 0
		}
		return int(prev[i])
	}
	left := func(i int) int {
		if i < byteWidth {
			return 0
		}
		return int(scanline[i-byteWidth])
	}
	upLeft := func(i int) int {
		if prev == nil || i < byteWidth {
			return 0
		}
		return int(prev[i-byteWidth])
	}

	switch filterType {
	case ftNone:
		copy(out, scanline)
	case ftSub:
		for i := range scanline {
			out[i] = scanline[i] - byte(left(i))
		}
	case ftUp:
		for i := range scanline {
			out[i] = scanline[i] - byte(up(i))
		}
	case ftAverage:
		for i := range scanline {
			out[i] = scanline[i] - byte((left(i)+up(i))/2)
		}
	case ftPaeth:
		for i := range scanline {
			out[i] = scanline[i] - byte(paethPredictor(left(i), up(i), upLeft(i)))
		}
	}
}

// filterSum scores a filtered scanline for the minsum heuristic: bytes
// are treated as signed and their absolute values summed.
func filterSum(line []byte) int {
	sum := 0
	for _, c := range line {
		if c < 128 {
			sum += int(c)
		} else {
			sum += 256 - int(c)
		}
	}
	return sum
}

// filterEntropy scores a filtered scanline by the Shannon entropy of its
// byte histogram.
func filterEntropy(line []byte) float64 {
	var count [256]int
	for _, c := range line {
		count[c]++
	}
	n := float64(len(line))
	e := 0.0
	for _, c := range count {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		e -= p * math.Log2(p)
	}
	return e
}

// bruteSettings are the deflate parameters used to score scanlines under
// the brute strategy. Fixed trees keep the trials cheap while still
// measuring real LZ77 compressibility.
func bruteSettings() flate.CompressSettings {
	s := flate.NewCompressSettings()
	s.BType = 1
	s.WindowSize = 8192
	s.NiceMatch = 32
	s.MaxChainLength = 32
	s.LazyMatching = false
	return s
}

// filterImage filters the h scanlines of in, prepending the chosen
// filter type byte to each. predefined supplies per-scanline types for
// FilterStrategyPredefined and must cover all h rows.
func filterImage(out, in []byte, w, h int, mode *ColorMode, settings *EncoderSettings, predefined []byte) error {
	bpp := mode.BitsPerPixel()
	byteWidth := (bpp + 7) / 8
	lineBytes := (w*bpp + 7) / 8

	strategy := settings.FilterStrategy
	if settings.FilterPaletteZero && (mode.ColorType == ColorPalette || mode.BitDepth < 8) {
		strategy = FilterStrategyZero
	}
	if strategy == FilterStrategyPredefined && len(predefined) < h {
		return errPredefinedMissing
	}

	var prev []byte
	trial := make([]byte, lineBytes)
	best := make([]byte, lineBytes)
	for y := 0; y < h; y++ {
		scanline := in[y*lineBytes : (y+1)*lineBytes]
		outLine := out[y*(1+lineBytes) : (y+1)*(1+lineBytes)]

		var filterType byte
		switch strategy {
		case FilterStrategyZero:
			filterType = ftNone
			filterScanline(best, scanline, prev, byteWidth, filterType)
		case FilterStrategyPredefined:
			filterType = predefined[y]
			if filterType >= nFilter {
				return errFilterType
			}
			filterScanline(best, scanline, prev, byteWidth, filterType)
		case FilterStrategyMinSum:
			bestSum := -1
			for ft := byte(0); ft < nFilter; ft++ {
				filterScanline(trial, scanline, prev, byteWidth, ft)
				if s := filterSum(trial); bestSum < 0 || s < bestSum {
					bestSum = s
					filterType = ft
					trial, best = best, trial
				}
			}
		case FilterStrategyEntropy:
			bestEntropy := math.Inf(1)
			for ft := byte(0); ft < nFilter; ft++ {
				filterScanline(trial, scanline, prev, byteWidth, ft)
				if e := filterEntropy(trial); e < bestEntropy {
					bestEntropy = e
					filterType = ft
					trial, best = best, trial
				}
			}
		case FilterStrategyBrute:
			bs := bruteSettings()
			bestSize := -1
			for ft := byte(0); ft < nFilter; ft++ {
				filterScanline(trial, scanline, prev, byteWidth, ft)
				packed, err := flate.Deflate(trial, &bs)
				if err != nil {
					return err
				}
				if bestSize < 0 || len(packed) < bestSize {
					bestSize = len(packed)
					filterType = ft
					trial, best = best, trial
				}
			}
		default:
			return errFilterStrategy
		}

		outLine[0] = filterType
		copy(outLine[1:], best)
		prev = scanline
	}
	return nil
}
