// Package pngx implements a PNG image decoder and encoder operating on
// in-memory byte buffers. Decoding and re-encoding is bit-faithful: all
// color types and bit depths, Adam7 interlacing, ancillary metadata and
// unknown chunks survive a round trip. The embedded DEFLATE/zlib engine
// lives in the flate subpackage.
package pngx
