package pngx

import "github.com/fumin/pngx/flate"

// idatPayload concatenates the IDAT payloads of a PNG stream without
// verifying CRCs: inspection should work on files a strict decode would
// reject.
func idatPayload(in []byte) ([]byte, error) {
	chunks, err := InspectChunks(in)
	if err != nil {
		return nil, err
	}
	var idat []byte
	for _, c := range chunks {
		if c.Type == "IDAT" {
			idat = append(idat, in[c.Offset+8:c.Offset+8+c.Length]...)
		}
	}
	return idat, nil
}

// InspectFilters returns the filter type byte of every scanline, one
// slice per interlace pass: a single slice for non-interlaced images,
// seven for Adam7.
func InspectFilters(in []byte) ([][]byte, error) {
	w, h, info, err := Inspect(in)
	if err != nil {
		return nil, err
	}
	idat, err := idatPayload(in)
	if err != nil {
		return nil, err
	}
	settings := flate.NewDecompressSettings()
	settings.IgnoreAdler32 = true
	scanlines, err := flate.ZlibDecompress(idat, &settings)
	if err != nil {
		return nil, err
	}

	bpp := info.Color.BitsPerPixel()
	if len(scanlines) != expectedScanlineSize(w, h, bpp, info.InterlaceMethod) {
		return nil, errIDATSize
	}

	if info.InterlaceMethod == 0 {
		lineBytes := (w*bpp + 7) / 8
		filters := make([]byte, h)
		for y := 0; y < h; y++ {
			filters[y] = scanlines[y*(1+lineBytes)]
		}
		return [][]byte{filters}, nil
	}

	p := adam7PassValues(w, h, bpp)
	out := make([][]byte, 7)
	for i := 0; i < 7; i++ {
		if p.w[i] == 0 || p.h[i] == 0 {
			out[i] = []byte{}
			continue
		}
		lineBytes := (p.w[i]*bpp + 7) / 8
		filters := make([]byte, p.h[i])
		for y := 0; y < p.h[i]; y++ {
			filters[y] = scanlines[p.filterStart[i]+y*(1+lineBytes)]
		}
		out[i] = filters
	}
	return out, nil
}

// InspectZlib reports the zlib block structure of the image data: one
// ZlibBlockInfo per deflate block of the concatenated IDAT stream.
func InspectZlib(in []byte) ([]flate.ZlibBlockInfo, error) {
	idat, err := idatPayload(in)
	if err != nil {
		return nil, err
	}
	return flate.ExtractZlibInfo(idat)
}
