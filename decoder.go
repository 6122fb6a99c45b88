package pngx

import (
	"encoding/binary"

	"github.com/fumin/pngx/flate"
	"github.com/fumin/pngx/pngerr"
)

var (
	errIHDRLength      = pngerr.New(94, "IHDR chunk must have length 13")
	errCompressionByte = pngerr.New(32, "compression method must be 0")
	errFilterByte      = pngerr.New(33, "filter method must be 0")
	errInterlaceByte   = pngerr.New(34, "interlace method must be 0 or 1")
	errIDATSize        = pngerr.New(91, "decompressed IDAT size mismatches the image dimensions")
	errPLTELength      = pngerr.New(46, "PLTE length must be a nonzero multiple of 3")
	errTRNS            = pngerr.New(40, "tRNS chunk has the wrong size for the color type")
	errBKGD            = pngerr.New(41, "bKGD chunk has the wrong size for the color type")
	errTIMELength      = pngerr.New(42, "tIME chunk must have length 7")
	errPHYSLength      = pngerr.New(43, "pHYs chunk must have length 9")
	errTextNul         = pngerr.New(75, "text chunk without a null separator")
	errZTXtMethod      = pngerr.New(72, "zTXt compression method must be 0")
	errITXtHeader      = pngerr.New(73, "iTXt chunk is too short or has a bad compression method")
	errTextTooLarge    = pngerr.New(74, "text payload exceeds the configured maximum")
	errPaletteRequired = pngerr.New(49, "palette color type without a PLTE chunk")
)

// Decode reads a PNG byte stream and returns its pixels as 8-bit RGBA,
// four bytes per pixel.
func Decode(in []byte) (pix []byte, w, h int, err error) {
	return DecodeState(in, NewState())
}

// DecodeState reads a PNG byte stream under the given state. The pixels
// are converted to state.InfoRaw unless color conversion is disabled, in
// which case they stay in the PNG's own mode and InfoRaw is updated to
// describe it. Metadata lands in state.InfoPNG.
func DecodeState(in []byte, state *State) (pix []byte, w, h int, err error) {
	raw, w, h, err := decodePNG(in, state)
	if err != nil {
		return nil, 0, 0, err
	}

	pngMode := &state.InfoPNG.Color
	if !state.Decoder.ColorConvert || state.InfoRaw.Equal(pngMode) {
		state.InfoRaw = *pngMode
		state.InfoRaw.Palette = append([]byte(nil), pngMode.Palette...)
		return raw, w, h, nil
	}

	out := make([]byte, state.InfoRaw.RawSize(w, h))
	if err := Convert(out, raw, &state.InfoRaw, pngMode, w, h); err != nil {
		return nil, 0, 0, err
	}
	return out, w, h, nil
}

// Inspect parses the header of a PNG stream without decoding pixels.
func Inspect(in []byte) (w, h int, info *ImageInfo, err error) {
	info = &ImageInfo{}
	w, h, err = parseIHDR(in, info)
	if err != nil {
		return 0, 0, nil, err
	}
	return w, h, info, nil
}

// parseIHDR validates the signature and the IHDR chunk and fills in the
// header fields of info.
func parseIHDR(in []byte, info *ImageInfo) (w, h int, err error) {
	if len(in) < 8 || string(in[:8]) != pngHeader {
		return 0, 0, errSignature
	}
	ctype, data, _, err := parseChunkHeader(in, 8)
	if err != nil {
		return 0, 0, err
	}
	if ctype != "IHDR" {
		return 0, 0, errFirstNotIHDR
	}
	if len(data) != 13 {
		return 0, 0, errIHDRLength
	}

	w = int(binary.BigEndian.Uint32(data[0:4]))
	h = int(binary.BigEndian.Uint32(data[4:8]))
	if err := checkDimensions(w, h); err != nil {
		return 0, 0, err
	}
	info.Color = MakeColorMode(ColorType(data[9]), int(data[8]))
	info.CompressionMethod = int(data[10])
	info.FilterMethod = int(data[11])
	info.InterlaceMethod = int(data[12])
	if info.CompressionMethod != 0 {
		return 0, 0, errCompressionByte
	}
	if info.FilterMethod != 0 {
		return 0, 0, errFilterByte
	}
	if info.InterlaceMethod != 0 && info.InterlaceMethod != 1 {
		return 0, 0, errInterlaceByte
	}
	if err := info.Color.Validate(); err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func decodePNG(in []byte, state *State) (raw []byte, w, h int, err error) {
	info := &state.InfoPNG
	*info = ImageInfo{}
	w, h, err = parseIHDR(in, info)
	if err != nil {
		return nil, 0, 0, err
	}
	if !state.Decoder.IgnoreCrc && !chunkCRCOK(in, 8, 13) {
		return nil, 0, 0, errBadCrc
	}

	var idat []byte
	seenPLTE, seenIDAT, seenIEND, idatEnded := false, false, false, false
	unknownPos := posBeforePLTE

	off := 8 + 12 + 13
	for off < len(in) {
		ctype, data, next, err := parseChunkHeader(in, off)
		if err != nil {
			return nil, 0, 0, err
		}
		if !state.Decoder.IgnoreCrc && !chunkCRCOK(in, off, len(data)) {
			return nil, 0, 0, errBadCrc
		}

		switch ctype {
		case "IHDR":
			return nil, 0, 0, errOutOfOrderChunk
		case "PLTE":
			if seenPLTE || seenIDAT {
				return nil, 0, 0, errOutOfOrderChunk
			}
			if len(data) == 0 || len(data)%3 != 0 || len(data)/3 > 256 {
				return nil, 0, 0, errPLTELength
			}
			info.Color.Palette = nil
			for i := 0; i < len(data); i += 3 {
				if err := info.Color.AddPaletteColor(data[i], data[i+1], data[i+2], 255); err != nil {
					return nil, 0, 0, err
				}
			}
			seenPLTE = true
			unknownPos = posBeforeIDAT
		case "tRNS":
			if seenIDAT {
				return nil, 0, 0, errOutOfOrderChunk
			}
			if err := parseTRNS(data, &info.Color, seenPLTE); err != nil {
				return nil, 0, 0, err
			}
		case "bKGD":
			if seenIDAT {
				return nil, 0, 0, errOutOfOrderChunk
			}
			if err := parseBKGD(data, info); err != nil {
				return nil, 0, 0, err
			}
		case "tEXt":
			if state.Decoder.ReadTextChunks {
				if err := parseTEXt(data, info); err != nil {
					return nil, 0, 0, err
				}
			}
		case "zTXt":
			if state.Decoder.ReadTextChunks {
				if err := parseZTXt(data, info, &state.Decoder); err != nil {
					return nil, 0, 0, err
				}
			}
		case "iTXt":
			if state.Decoder.ReadTextChunks {
				if err := parseITXt(data, info, &state.Decoder); err != nil {
					return nil, 0, 0, err
				}
			}
		case "tIME":
			if err := parseTIME(data, info); err != nil {
				return nil, 0, 0, err
			}
		case "pHYs":
			if seenIDAT {
				return nil, 0, 0, errOutOfOrderChunk
			}
			if err := parsePHYS(data, info); err != nil {
				return nil, 0, 0, err
			}
		case "IDAT":
			if idatEnded {
				return nil, 0, 0, errOutOfOrderChunk
			}
			idat = append(idat, data...)
			seenIDAT = true
			unknownPos = posAfterIDAT
		case "IEND":
			seenIEND = true
		default:
			if isCriticalChunk(ctype) {
				return nil, 0, 0, errUnknownCritical
			}
			if state.Decoder.RememberUnknownChunks {
				info.UnknownChunks[unknownPos] = append(info.UnknownChunks[unknownPos], in[off:next]...)
			}
		}

		if ctype != "IDAT" && seenIDAT {
			idatEnded = true
		}
		if seenIEND {
			break
		}
		off = next
	}
	if !seenIEND {
		return nil, 0, 0, errMissingIEND
	}
	if info.Color.ColorType == ColorPalette && !seenPLTE {
		return nil, 0, 0, errPaletteRequired
	}

	scanlines, err := flate.ZlibDecompress(idat, &state.Decoder.Zlib)
	if err != nil {
		return nil, 0, 0, err
	}

	bpp := info.Color.BitsPerPixel()
	if len(scanlines) != expectedScanlineSize(w, h, bpp, info.InterlaceMethod) {
		return nil, 0, 0, errIDATSize
	}

	raw = make([]byte, info.Color.RawSize(w, h))
	if err := postProcessScanlines(raw, scanlines, w, h, info); err != nil {
		return nil, 0, 0, err
	}
	return raw, w, h, nil
}

// expectedScanlineSize returns the exact size the inflated IDAT stream
// must have: every scanline of every pass carries one filter byte and is
// padded to a whole byte.
func expectedScanlineSize(w, h, bpp, interlace int) int {
	if interlace == 0 {
		return h * (1 + (w*bpp+7)/8)
	}
	p := adam7PassValues(w, h, bpp)
	return p.filterStart[7]
}

// postProcessScanlines turns the inflated filtered scanlines into the
// raw pixel buffer: unfilter each (pass) scanline, and for interlaced
// images reassemble the seven passes into the linear image.
func postProcessScanlines(out, in []byte, w, h int, info *ImageInfo) error {
	bpp := info.Color.BitsPerPixel()
	if info.InterlaceMethod == 0 {
		return unfilter(out, in, w, h, bpp)
	}

	p := adam7PassValues(w, h, bpp)
	padded := make([]byte, p.paddedStart[7])
	for i := 0; i < 7; i++ {
		if p.w[i] == 0 || p.h[i] == 0 {
			continue
		}
		err := unfilter(padded[p.paddedStart[i]:p.paddedStart[i+1]], in[p.filterStart[i]:p.filterStart[i+1]], p.w[i], p.h[i], bpp)
		if err != nil {
			return err
		}
	}

	if bpp < 8 {
		tight := make([]byte, p.start[7])
		for i := 0; i < 7; i++ {
			if p.w[i] == 0 || p.h[i] == 0 {
				continue
			}
			removePaddingBits(tight[p.start[i]:], padded[p.paddedStart[i]:], p.w[i]*bpp, 8*((p.w[i]*bpp+7)/8), p.h[i])
		}
		adam7Deinterlace(out, tight, w, h, bpp)
		return nil
	}
	adam7Deinterlace(out, padded, w, h, bpp)
	return nil
}

func parseTRNS(data []byte, mode *ColorMode, seenPLTE bool) error {
	switch mode.ColorType {
	case ColorPalette:
		if !seenPLTE {
			return errOutOfOrderChunk
		}
		if len(data) > mode.PaletteSize() {
			return errTRNS
		}
		for i, a := range data {
			mode.Palette[i*4+3] = a
		}
	case ColorGrey:
		if len(data) != 2 {
			return errTRNS
		}
		mode.KeyDefined = true
		mode.KeyR = int(binary.BigEndian.Uint16(data))
		mode.KeyG, mode.KeyB = mode.KeyR, mode.KeyR
	case ColorRGB:
		if len(data) != 6 {
			return errTRNS
		}
		mode.KeyDefined = true
		mode.KeyR = int(binary.BigEndian.Uint16(data[0:2]))
		mode.KeyG = int(binary.BigEndian.Uint16(data[2:4]))
		mode.KeyB = int(binary.BigEndian.Uint16(data[4:6]))
	default:
		return errTRNS
	}
	return nil
}

func parseBKGD(data []byte, info *ImageInfo) error {
	switch info.Color.ColorType {
	case ColorPalette:
		if len(data) != 1 {
			return errBKGD
		}
		if int(data[0]) >= info.Color.PaletteSize() {
			return errBackgroundIx
		}
		info.BackgroundDefined = true
		info.BackgroundR = int(data[0])
		info.BackgroundG, info.BackgroundB = int(data[0]), int(data[0])
	case ColorGrey, ColorGreyAlpha:
		if len(data) != 2 {
			return errBKGD
		}
		info.BackgroundDefined = true
		info.BackgroundR = int(binary.BigEndian.Uint16(data))
		info.BackgroundG, info.BackgroundB = info.BackgroundR, info.BackgroundR
	default:
		if len(data) != 6 {
			return errBKGD
		}
		info.BackgroundDefined = true
		info.BackgroundR = int(binary.BigEndian.Uint16(data[0:2]))
		info.BackgroundG = int(binary.BigEndian.Uint16(data[2:4]))
		info.BackgroundB = int(binary.BigEndian.Uint16(data[4:6]))
	}
	return nil
}

// splitNul splits data at its first zero byte.
func splitNul(data []byte) (before, after []byte, ok bool) {
	for i, c := range data {
		if c == 0 {
			return data[:i], data[i+1:], true
		}
	}
	return nil, nil, false
}

func parseTEXt(data []byte, info *ImageInfo) error {
	key, value, ok := splitNul(data)
	if !ok {
		return errTextNul
	}
	if err := checkTextKey(string(key)); err != nil {
		return err
	}
	info.Texts = append(info.Texts, Text{Key: string(key), Value: string(value)})
	return nil
}

func parseZTXt(data []byte, info *ImageInfo, settings *DecoderSettings) error {
	key, rest, ok := splitNul(data)
	if !ok {
		return errTextNul
	}
	if err := checkTextKey(string(key)); err != nil {
		return err
	}
	if len(rest) < 1 || rest[0] != 0 {
		return errZTXtMethod
	}
	value, err := flate.ZlibDecompress(rest[1:], &settings.Zlib)
	if err != nil {
		return err
	}
	if len(value) > settings.MaxTextSize {
		return errTextTooLarge
	}
	info.Texts = append(info.Texts, Text{Key: string(key), Value: string(value)})
	return nil
}

func parseITXt(data []byte, info *ImageInfo, settings *DecoderSettings) error {
	key, rest, ok := splitNul(data)
	if !ok {
		return errTextNul
	}
	if err := checkTextKey(string(key)); err != nil {
		return err
	}
	if len(rest) < 2 {
		return errITXtHeader
	}
	compressed := rest[0]
	method := rest[1]
	if compressed > 1 || method != 0 {
		return errITXtHeader
	}
	lang, rest, ok := splitNul(rest[2:])
	if !ok {
		return errTextNul
	}
	if err := checkLangTag(string(lang)); err != nil {
		return err
	}
	transKey, rest, ok := splitNul(rest)
	if !ok {
		return errTextNul
	}
	value := rest
	if compressed == 1 {
		var err error
		value, err = flate.ZlibDecompress(rest, &settings.Zlib)
		if err != nil {
			return err
		}
	}
	if len(value) > settings.MaxTextSize {
		return errTextTooLarge
	}
	info.ITexts = append(info.ITexts, IText{
		Key:      string(key),
		LangTag:  string(lang),
		TransKey: string(transKey),
		Value:    string(value),
	})
	return nil
}

func parseTIME(data []byte, info *ImageInfo) error {
	if len(data) != 7 {
		return errTIMELength
	}
	info.TimeDefined = true
	info.Time = ModTime{
		Year:   int(binary.BigEndian.Uint16(data[0:2])),
		Month:  int(data[2]),
		Day:    int(data[3]),
		Hour:   int(data[4]),
		Minute: int(data[5]),
		Second: int(data[6]),
	}
	return nil
}

func parsePHYS(data []byte, info *ImageInfo) error {
	if len(data) != 9 {
		return errPHYSLength
	}
	info.PhysDefined = true
	info.PhysX = int(binary.BigEndian.Uint32(data[0:4]))
	info.PhysY = int(binary.BigEndian.Uint32(data[4:8]))
	info.PhysUnit = int(data[8])
	return nil
}
