// Package pngerr defines the numeric error codes shared by the PNG codec
// and its embedded DEFLATE engine. Every failure surfaced by the library
// is an *Error; CodeOf recovers the code from a plain error value.
package pngerr

import (
	"errors"
	"strconv"
)

// An Error pairs a stable numeric code with a human-readable reason.
type Error struct {
	Code uint
	Text string
}

func (e *Error) Error() string {
	return "pngx: error " + strconv.FormatUint(uint64(e.Code), 10) + ": " + e.Text
}

// New returns an error with the given code and text.
func New(code uint, text string) *Error {
	return &Error{Code: code, Text: text}
}

// CodeOf returns the numeric code carried by err. It returns 0 for a nil
// error and ^uint(0) for errors that did not originate in this library.
func CodeOf(err error) uint {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ^uint(0)
}
