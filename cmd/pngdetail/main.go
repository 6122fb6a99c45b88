// Command pngdetail prints information about a PNG file: its header and
// color mode, the chunks it contains, the filter type of every scanline,
// and the zlib block structure of its image data.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fumin/pngx"
	"github.com/fumin/pngx/pngerr"
)

var errFileOpen = pngerr.New(78, "failed to open file for reading")

var colorTypeNames = map[pngx.ColorType]string{
	pngx.ColorGrey:      "grey",
	pngx.ColorRGB:       "rgb",
	pngx.ColorPalette:   "palette",
	pngx.ColorGreyAlpha: "grey with alpha",
	pngx.ColorRGBA:      "rgba",
}

type options struct {
	showInfo    bool
	showChunks  bool
	showFilters bool
	showZlib    bool
	showBlocks  bool
	showPalette bool
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var opts options
	cmd := &cobra.Command{
		Use:   "pngdetail [flags] file.png",
		Short: "Show information about a PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0], &opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.showInfo, "info", "i", false, "show header and color mode info")
	cmd.Flags().BoolVarP(&opts.showChunks, "chunks", "c", false, "show chunk names and lengths")
	cmd.Flags().BoolVarP(&opts.showFilters, "filters", "f", false, "show the filter type of each scanline")
	cmd.Flags().BoolVarP(&opts.showZlib, "zlib", "z", false, "show zlib stream summary")
	cmd.Flags().BoolVarP(&opts.showBlocks, "blocks", "b", false, "show per-block zlib details")
	cmd.Flags().BoolVarP(&opts.showPalette, "palette", "p", false, "show the palette")

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Uint("code", pngerr.CodeOf(err)).Msg("pngdetail failed")
		os.Exit(1)
	}
}

func run(fname string, opts *options) error {
	buf, err := os.ReadFile(fname)
	if err != nil {
		log.Error().Err(err).Str("file", fname).Msg("read failed")
		return errFileOpen
	}

	w, h, _, err := pngx.Inspect(buf)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %dx%d, %d bytes\n", fname, w, h, len(buf))

	if opts.showInfo || opts.showPalette {
		if err := printInfo(buf, opts); err != nil {
			return err
		}
	}
	if opts.showChunks {
		if err := printChunks(buf); err != nil {
			return err
		}
	}
	if opts.showFilters {
		if err := printFilters(buf); err != nil {
			return err
		}
	}
	if opts.showZlib || opts.showBlocks {
		if err := printZlib(buf, opts); err != nil {
			return err
		}
	}
	return nil
}

func printInfo(buf []byte, opts *options) error {
	// Palette and transparency only come from the full chunk walk.
	state := pngx.NewState()
	state.Decoder.ColorConvert = false
	state.Decoder.RememberUnknownChunks = true
	if _, _, _, err := pngx.DecodeState(buf, state); err != nil {
		return err
	}
	color := &state.InfoPNG.Color

	fmt.Printf("Color type: %d (%s)\n", color.ColorType, colorTypeNames[color.ColorType])
	fmt.Printf("Bit depth: %d\n", color.BitDepth)
	fmt.Printf("Bits per pixel: %d\n", color.BitsPerPixel())
	fmt.Printf("Interlace method: %d\n", state.InfoPNG.InterlaceMethod)
	fmt.Printf("Palette size: %d\n", color.PaletteSize())
	if color.KeyDefined {
		fmt.Printf("Color key: %d %d %d\n", color.KeyR, color.KeyG, color.KeyB)
	}
	for _, t := range state.InfoPNG.Texts {
		fmt.Printf("Text: %s: %s\n", t.Key, t.Value)
	}
	for _, t := range state.InfoPNG.ITexts {
		fmt.Printf("Text: %s, %s, %s: %s\n", t.Key, t.LangTag, t.TransKey, t.Value)
	}
	if state.InfoPNG.TimeDefined {
		tm := state.InfoPNG.Time
		fmt.Printf("Time: %04d-%02d-%02d %02d:%02d:%02d\n", tm.Year, tm.Month, tm.Day, tm.Hour, tm.Minute, tm.Second)
	}
	if state.InfoPNG.PhysDefined {
		fmt.Printf("Physical: %d x %d, unit %d\n", state.InfoPNG.PhysX, state.InfoPNG.PhysY, state.InfoPNG.PhysUnit)
	}

	if opts.showPalette && color.PaletteSize() > 0 {
		var sb strings.Builder
		for i := 0; i < color.PaletteSize(); i++ {
			p := color.Palette[i*4:]
			fmt.Fprintf(&sb, "#%02x%02x%02x%02x ", p[0], p[1], p[2], p[3])
		}
		fmt.Printf("Palette colors: %s\n", strings.TrimSpace(sb.String()))
	}
	return nil
}

func printChunks(buf []byte) error {
	chunks, err := pngx.InspectChunks(buf)
	if err != nil {
		return err
	}
	fmt.Println("Chunks (type: offset, length):")
	for _, c := range chunks {
		fmt.Printf(" %s: %d, %d\n", c.Type, c.Offset, c.Length)
	}
	return nil
}

func printFilters(buf []byte) error {
	passes, err := pngx.InspectFilters(buf)
	if err != nil {
		return err
	}
	if len(passes) == 1 {
		fmt.Printf("Filter types: %s\n", filterString(passes[0]))
		return nil
	}
	fmt.Println("Filter types (Adam7 interlaced):")
	for i, pass := range passes {
		fmt.Printf(" Pass %d: %s\n", i+1, filterString(pass))
	}
	return nil
}

func filterString(filters []byte) string {
	var sb strings.Builder
	for _, f := range filters {
		fmt.Fprintf(&sb, "%d", f)
	}
	return sb.String()
}

func printZlib(buf []byte, opts *options) error {
	blocks, err := pngx.InspectZlib(buf)
	if err != nil {
		return err
	}

	if opts.showZlib {
		compressed, uncompressed := 0, 0
		for _, b := range blocks {
			compressed += b.CompressedBits / 8
			uncompressed += b.UncompressedBytes
		}
		fmt.Printf("Compressed size: %d\n", compressed)
		fmt.Printf("Uncompressed size: %d\n", uncompressed)
		fmt.Printf("Amount of zlib blocks: %d\n", len(blocks))
		if len(blocks) > 1 {
			fmt.Print("Block sizes (compressed): ")
			for _, b := range blocks {
				fmt.Printf("%d ", b.CompressedBits/8)
			}
			fmt.Println()
			fmt.Print("Block sizes (uncompressed): ")
			for _, b := range blocks {
				fmt.Printf("%d ", b.UncompressedBytes)
			}
			fmt.Println()
		}
	}

	if opts.showBlocks {
		for i, b := range blocks {
			fmt.Printf("Zlib block %d:\n", i)
			fmt.Printf(" block type: %d\n", b.BType)
			fmt.Printf(" block compressed: %d bytes (%d bits)\n", b.CompressedBits/8, b.CompressedBits)
			fmt.Printf(" block uncompressed: %d bytes\n", b.UncompressedBytes)
			if b.BType == 2 {
				fmt.Printf(" tree bits: %d\n", b.TreeBits)
				fmt.Printf(" HLIT: %d, HDIST: %d, HCLEN: %d\n", b.HLit, b.HDist, b.HCLen)
			}
			fmt.Printf(" symbols: %d\n", len(b.Symbols))
		}
	}
	return nil
}
