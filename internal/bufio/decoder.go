package bufio

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// incrementalDecoder wraps a golang.org/x/text/encoding.Decoder so that a
// multibyte sequence split across two Read calls decodes correctly: the
// transform.Decoder carries its partial-rune state between calls, the
// same requirement the spec places on ReadAllChars.
type incrementalDecoder struct {
	enc     encoding.Encoding
	dec     transform.Transformer
	pending []byte
}

func newIncrementalDecoder(enc encoding.Encoding) *incrementalDecoder {
	return &incrementalDecoder{enc: enc, dec: enc.NewDecoder()}
}

// decodeAll decodes a complete, self-contained byte slice (used by
// ReadString/ReadNullTerminatedString, which always have the full value
// buffered before decoding).
func (d *incrementalDecoder) decodeAll(b []byte) (string, error) {
	out, _, err := transform.Bytes(d.enc.NewDecoder(), b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// decodeIncremental feeds the next chunk of raw bytes through the
// stateful decoder. atEOF must be true only for the final chunk of the
// overall value.
func (d *incrementalDecoder) decodeIncremental(chunk []byte, atEOF bool) (string, error) {
	src := append(d.pending, chunk...)
	dst := make([]byte, len(src)*4+16)

	nDst, nSrc, err := d.dec.Transform(dst, src, atEOF)
	if err == transform.ErrShortSrc && !atEOF {
		d.pending = append([]byte(nil), src[nSrc:]...)
		return string(dst[:nDst]), nil
	}
	if err != nil {
		return "", err
	}
	d.pending = d.pending[:0]
	return string(dst[:nDst]), nil
}
