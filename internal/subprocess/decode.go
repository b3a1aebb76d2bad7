// Package subprocess drives the external tools renders depend on: project
// builders such as Sphinx or PreTeXt and single-file converters such as
// pandoc. Child output is decoded incrementally so build progress can be
// pushed to viewers chunk by chunk, whatever encoding garbage or newline
// convention the tool emits.
package subprocess

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// NewDecoder returns the decode chain applied to all child-process output:
// UTF-8 validation with backslash-escape fallback, then universal-newline
// folding. The chain is incremental; a rune or \r\n pair split across two
// reads decodes the same as it would in one.
func NewDecoder() transform.Transformer {
	return transform.Chain(utf8Escaper{}, &newlineFolder{})
}

// Decode runs b through a fresh decode chain in one shot. Used for output
// collected in full (stderr, non-streamed stdout).
func Decode(b []byte) string {
	out, _, err := transform.Bytes(NewDecoder(), b)
	if err != nil {
		// The chain has no failure modes beyond buffer sizing, which
		// transform.Bytes manages. Fall back to raw bytes regardless.
		return string(b)
	}
	return string(out)
}

// utf8Escaper passes valid UTF-8 through untouched and rewrites each
// invalid byte as a \xNN escape, matching Python's backslashreplace error
// handler so build logs stay readable instead of filling with U+FFFD.
type utf8Escaper struct{}

func (utf8Escaper) Reset() {}

func (utf8Escaper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}

		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				// Possibly a rune cut off by the read boundary; wait
				// for more input.
				return nDst, nSrc, transform.ErrShortSrc
			}
			esc := fmt.Sprintf(`\x%02x`, c)
			if nDst+len(esc) > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += copy(dst[nDst:], esc)
			nSrc++
			continue
		}

		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
		nSrc += size
	}

	return nDst, nSrc, nil
}

// newlineFolder translates \r\n and bare \r to \n. A \r at the end of a
// read is held back until the next read shows whether a \n follows; EOF
// flushes a held \r as \n.
type newlineFolder struct {
	pendingCR bool
}

func (t *newlineFolder) Reset() {
	t.pendingCR = false
}

func (t *newlineFolder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if t.pendingCR {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = '\n'
			nDst++
			t.pendingCR = false
			if src[nSrc] == '\n' {
				nSrc++
			}
			continue
		}

		c := src[nSrc]
		if c == '\r' {
			if nSrc == len(src)-1 && !atEOF {
				t.pendingCR = true
				nSrc++
				continue
			}
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = '\n'
			nDst++
			nSrc++
			if nSrc < len(src) && src[nSrc] == '\n' {
				nSrc++
			}
			continue
		}

		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = c
		nDst++
		nSrc++
	}

	if atEOF && t.pendingCR {
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = '\n'
		nDst++
		t.pendingCR = false
	}

	return nDst, nSrc, nil
}
