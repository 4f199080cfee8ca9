package widget

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// chunkDecoder turns a sequence of byte chunks into text. An incomplete multi-byte sequence at the end of a
// chunk is kept until the next chunk completes it, so a character split by the transport never turns into
// a replacement character.
type chunkDecoder struct {
	t       transform.Transformer
	pending []byte
}

func newChunkDecoder() *chunkDecoder {
	return &chunkDecoder{t: unicode.UTF8.NewDecoder()}
}

// decode decodes chunk, prefixed by the bytes held back from the previous call. With atEOF set, held back
// bytes that never formed a full character are emitted as replacement characters.
func (d *chunkDecoder) decode(chunk []byte, atEOF bool) string {
	src := make([]byte, 0, len(d.pending)+len(chunk))
	src = append(src, d.pending...)
	src = append(src, chunk...)
	d.pending = nil

	// Every invalid byte may grow to a three byte replacement character.
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]

		switch err {
		case nil:
			return string(out)
		case transform.ErrShortSrc:
			d.pending = append(d.pending, src...)
			return string(out)
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
		default:
			// The UTF-8 decoder only reports short buffers, anything else is emitted as is.
			return string(append(out, src...))
		}
	}
}
