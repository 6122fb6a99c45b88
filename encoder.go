package pngx

import (
	"bytes"
	"encoding/binary"

	"github.com/fumin/pngx/flate"
	"github.com/fumin/pngx/pngerr"
)

var (
	errEmptyPalette = pngerr.New(68, "cannot encode palette color type with an empty palette")
	errRawTooSmall  = pngerr.New(84, "pixel buffer is smaller than the dimensions require")
)

// Encode writes 8-bit RGBA pixels, four bytes per pixel, as a PNG byte
// stream, auto-picking the smallest color mode that holds the image.
func Encode(pix []byte, w, h int) ([]byte, error) {
	return EncodeState(pix, w, h, NewState())
}

// EncodeState encodes the pixels described by state.InfoRaw into a PNG
// stream. With auto-convert enabled the chosen PNG color mode is written
// back to state.InfoPNG.Color; otherwise state.InfoPNG is used as given,
// including its ancillary chunks.
func EncodeState(pix []byte, w, h int, state *State) ([]byte, error) {
	if err := checkDimensions(w, h); err != nil {
		return nil, err
	}
	if err := state.InfoRaw.Validate(); err != nil {
		return nil, err
	}
	if len(pix) < state.InfoRaw.RawSize(w, h) {
		return nil, errRawTooSmall
	}

	info := &state.InfoPNG
	if state.Encoder.AutoConvert {
		chosen, err := AutoChooseColor(pix, w, h, &state.InfoRaw)
		if err != nil {
			return nil, err
		}
		info.Color = chosen
	}
	mode := &info.Color
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if mode.ColorType == ColorPalette && mode.PaletteSize() == 0 {
		return nil, errEmptyPalette
	}

	raw := pix
	if !mode.Equal(&state.InfoRaw) {
		raw = make([]byte, mode.RawSize(w, h))
		if err := Convert(raw, pix, mode, &state.InfoRaw, w, h); err != nil {
			return nil, err
		}
	}

	filtered, err := preProcessScanlines(raw, w, h, info, &state.Encoder)
	if err != nil {
		return nil, err
	}
	compressed, err := flate.ZlibCompress(filtered, &state.Encoder.Zlib)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(pngHeader)
	writeIHDR(&buf, w, h, mode, info.InterlaceMethod)
	buf.Write(info.UnknownChunks[posBeforePLTE])
	if mode.ColorType == ColorPalette || ((mode.ColorType == ColorRGB || mode.ColorType == ColorRGBA) && mode.PaletteSize() > 0) {
		writePLTE(&buf, mode)
	}
	writeTRNS(&buf, mode)
	if info.BackgroundDefined {
		writeBKGD(&buf, info)
	}
	if info.PhysDefined {
		writePHYS(&buf, info)
	}
	buf.Write(info.UnknownChunks[posBeforeIDAT])
	makeChunk(&buf, "IDAT", compressed)
	if info.TimeDefined {
		writeTIME(&buf, info)
	}
	if err := writeTexts(&buf, info, &state.Encoder); err != nil {
		return nil, err
	}
	buf.Write(info.UnknownChunks[posAfterIDAT])
	makeChunk(&buf, "IEND", nil)
	return buf.Bytes(), nil
}

// preProcessScanlines mirrors the decoder's post-processing: interlace
// when requested, pad sub-byte scanlines to whole bytes, and filter
// every scanline with its chosen filter type byte in front.
func preProcessScanlines(raw []byte, w, h int, info *ImageInfo, settings *EncoderSettings) ([]byte, error) {
	mode := &info.Color
	bpp := mode.BitsPerPixel()

	if info.InterlaceMethod == 0 {
		lineBytes := (w*bpp + 7) / 8
		out := make([]byte, h*(1+lineBytes))
		if err := filterImage(out, raw, w, h, mode, settings, settings.PredefinedFilters); err != nil {
			return nil, err
		}
		return out, nil
	}

	p := adam7PassValues(w, h, bpp)
	tight := make([]byte, p.start[7])
	adam7Interlace(tight, raw, w, h, bpp)

	out := make([]byte, p.filterStart[7])
	predefined := settings.PredefinedFilters
	for i := 0; i < 7; i++ {
		if p.w[i] == 0 || p.h[i] == 0 {
			continue
		}
		lineBytes := (p.w[i]*bpp + 7) / 8
		pass := tight[p.start[i]:p.start[i+1]]
		if bpp < 8 {
			padded := make([]byte, p.h[i]*lineBytes)
			addPaddingBits(padded, pass, 8*lineBytes, p.w[i]*bpp, p.h[i])
			pass = padded
		}
		err := filterImage(out[p.filterStart[i]:p.filterStart[i+1]], pass, p.w[i], p.h[i], mode, settings, predefined)
		if err != nil {
			return nil, err
		}
		if len(predefined) >= p.h[i] {
			predefined = predefined[p.h[i]:]
		}
	}
	return out, nil
}

func writeIHDR(buf *bytes.Buffer, w, h int, mode *ColorMode, interlace int) {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], uint32(w))
	binary.BigEndian.PutUint32(data[4:8], uint32(h))
	data[8] = byte(mode.BitDepth)
	data[9] = byte(mode.ColorType)
	data[10] = 0 // compression method
	data[11] = 0 // filter method
	data[12] = byte(interlace)
	makeChunk(buf, "IHDR", data)
}

func writePLTE(buf *bytes.Buffer, mode *ColorMode) {
	data := make([]byte, 0, mode.PaletteSize()*3)
	for i := 0; i < mode.PaletteSize(); i++ {
		p := mode.Palette[i*4:]
		data = append(data, p[0], p[1], p[2])
	}
	makeChunk(buf, "PLTE", data)
}

// writeTRNS emits transparency when the mode carries any: per-index
// alpha for palettes (trimmed to the last non-opaque entry), the color
// key otherwise.
func writeTRNS(buf *bytes.Buffer, mode *ColorMode) {
	switch mode.ColorType {
	case ColorPalette:
		amount := mode.PaletteSize()
		for amount > 0 && mode.Palette[(amount-1)*4+3] == 255 {
			amount--
		}
		if amount == 0 {
			return
		}
		data := make([]byte, amount)
		for i := range data {
			data[i] = mode.Palette[i*4+3]
		}
		makeChunk(buf, "tRNS", data)
	case ColorGrey:
		if !mode.KeyDefined {
			return
		}
		data := make([]byte, 2)
		binary.BigEndian.PutUint16(data, uint16(mode.KeyR))
		makeChunk(buf, "tRNS", data)
	case ColorRGB:
		if !mode.KeyDefined {
			return
		}
		data := make([]byte, 6)
		binary.BigEndian.PutUint16(data[0:2], uint16(mode.KeyR))
		binary.BigEndian.PutUint16(data[2:4], uint16(mode.KeyG))
		binary.BigEndian.PutUint16(data[4:6], uint16(mode.KeyB))
		makeChunk(buf, "tRNS", data)
	}
}

func writeBKGD(buf *bytes.Buffer, info *ImageInfo) {
	switch info.Color.ColorType {
	case ColorPalette:
		makeChunk(buf, "bKGD", []byte{byte(info.BackgroundR)})
	case ColorGrey, ColorGreyAlpha:
		data := make([]byte, 2)
		binary.BigEndian.PutUint16(data, uint16(info.BackgroundR))
		makeChunk(buf, "bKGD", data)
	default:
		data := make([]byte, 6)
		binary.BigEndian.PutUint16(data[0:2], uint16(info.BackgroundR))
		binary.BigEndian.PutUint16(data[2:4], uint16(info.BackgroundG))
		binary.BigEndian.PutUint16(data[4:6], uint16(info.BackgroundB))
		makeChunk(buf, "bKGD", data)
	}
}

func writePHYS(buf *bytes.Buffer, info *ImageInfo) {
	data := make([]byte, 9)
	binary.BigEndian.PutUint32(data[0:4], uint32(info.PhysX))
	binary.BigEndian.PutUint32(data[4:8], uint32(info.PhysY))
	data[8] = byte(info.PhysUnit)
	makeChunk(buf, "pHYs", data)
}

func writeTIME(buf *bytes.Buffer, info *ImageInfo) {
	data := make([]byte, 7)
	binary.BigEndian.PutUint16(data[0:2], uint16(info.Time.Year))
	data[2] = byte(info.Time.Month)
	data[3] = byte(info.Time.Day)
	data[4] = byte(info.Time.Hour)
	data[5] = byte(info.Time.Minute)
	data[6] = byte(info.Time.Second)
	makeChunk(buf, "tIME", data)
}

func writeTexts(buf *bytes.Buffer, info *ImageInfo, settings *EncoderSettings) error {
	for _, t := range info.Texts {
		if err := checkTextKey(t.Key); err != nil {
			return err
		}
		if settings.TextCompression {
			compressed, err := flate.ZlibCompress([]byte(t.Value), &settings.Zlib)
			if err != nil {
				return err
			}
			data := make([]byte, 0, len(t.Key)+2+len(compressed))
			data = append(data, t.Key...)
			data = append(data, 0, 0) // separator, compression method
			data = append(data, compressed...)
			makeChunk(buf, "zTXt", data)
			continue
		}
		data := make([]byte, 0, len(t.Key)+1+len(t.Value))
		data = append(data, t.Key...)
		data = append(data, 0)
		data = append(data, t.Value...)
		makeChunk(buf, "tEXt", data)
	}

	if settings.AddID {
		data := []byte("Software\x00pngx")
		makeChunk(buf, "tEXt", data)
	}

	for _, t := range info.ITexts {
		if err := checkTextKey(t.Key); err != nil {
			return err
		}
		if err := checkLangTag(t.LangTag); err != nil {
			return err
		}
		var data []byte
		data = append(data, t.Key...)
		data = append(data, 0)
		if settings.TextCompression {
			data = append(data, 1, 0)
		} else {
			data = append(data, 0, 0)
		}
		data = append(data, t.LangTag...)
		data = append(data, 0)
		data = append(data, t.TransKey...)
		data = append(data, 0)
		if settings.TextCompression {
			compressed, err := flate.ZlibCompress([]byte(t.Value), &settings.Zlib)
			if err != nil {
				return err
			}
			data = append(data, compressed...)
		} else {
			data = append(data, t.Value...)
		}
		makeChunk(buf, "iTXt", data)
	}
	return nil
}
