package pngx

import "github.com/fumin/pngx/pngerr"

var (
	errTextKeyword  = pngerr.New(89, "text chunk keyword must be 1-79 bytes")
	errTextSpacing  = pngerr.New(97, "text chunk keyword has leading, trailing or consecutive spaces")
	errLangTag      = pngerr.New(96, "invalid language tag in iTXt chunk")
	errBackgroundIx = pngerr.New(103, "background palette index out of bounds")
)

// A Text is one tEXt or zTXt entry: a Latin-1 keyword and its string.
type Text struct {
	Key   string
	Value string
}

// An IText is one iTXt entry: an international text chunk with a
// language tag and a translated keyword.
type IText struct {
	Key      string
	LangTag  string
	TransKey string
	Value    string
}

// A ModTime is the UTC time of last modification stored in a tIME chunk.
type ModTime struct {
	Year                             int
	Month, Day, Hour, Minute, Second int
}

// Position classes for unknown chunks: the decoder remembers where an
// unknown chunk sat relative to PLTE and IDAT, and the encoder puts it
// back there.
const (
	posBeforePLTE = 0
	posBeforeIDAT = 1
	posAfterIDAT  = 2
)

// ImageInfo holds everything about a PNG image besides the pixels: the
// stream's color mode, interlacing, and the ancillary metadata chunks.
type ImageInfo struct {
	Color ColorMode

	// Always 0 in valid files.
	CompressionMethod int
	FilterMethod      int

	// 0 for none, 1 for Adam7.
	InterlaceMethod int

	// bKGD. For palette images BackgroundR holds the palette index.
	BackgroundDefined                     bool
	BackgroundR, BackgroundG, BackgroundB int

	Texts  []Text
	ITexts []IText

	// tIME.
	TimeDefined bool
	Time        ModTime

	// pHYs.
	PhysDefined  bool
	PhysX, PhysY int
	PhysUnit     int

	// Unknown ancillary chunks, raw and framed, grouped by position
	// class: before PLTE, between PLTE and IDAT, after IDAT.
	UnknownChunks [3][]byte
}

// AddText appends a tEXt/zTXt entry after validating the keyword.
func (n *ImageInfo) AddText(key, value string) error {
	if err := checkTextKey(key); err != nil {
		return err
	}
	n.Texts = append(n.Texts, Text{Key: key, Value: value})
	return nil
}

// AddIText appends an iTXt entry after validating keyword and tag.
func (n *ImageInfo) AddIText(key, langTag, transKey, value string) error {
	if err := checkTextKey(key); err != nil {
		return err
	}
	if err := checkLangTag(langTag); err != nil {
		return err
	}
	n.ITexts = append(n.ITexts, IText{Key: key, LangTag: langTag, TransKey: transKey, Value: value})
	return nil
}

// checkTextKey enforces the PNG keyword rules: 1-79 printable Latin-1
// bytes, no leading/trailing/consecutive spaces.
func checkTextKey(key string) error {
	if len(key) < 1 || len(key) > 79 {
		return errTextKeyword
	}
	if key[0] == ' ' || key[len(key)-1] == ' ' {
		return errTextSpacing
	}
	prevSpace := false
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == ' ' {
			if prevSpace {
				return errTextSpacing
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		if c < 32 || (c > 126 && c < 161) {
			return errTextKeyword
		}
	}
	return nil
}

// checkLangTag validates the RFC 3066 subset PNG allows: dash-separated
// groups of 1-8 ASCII letters or digits. The empty tag is valid.
func checkLangTag(tag string) error {
	if tag == "" {
		return nil
	}
	groupLen := 0
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if c == '-' {
			if groupLen == 0 {
				return errLangTag
			}
			groupLen = 0
			continue
		}
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return errLangTag
		}
		groupLen++
		if groupLen > 8 {
			return errLangTag
		}
	}
	if groupLen == 0 {
		return errLangTag
	}
	return nil
}
