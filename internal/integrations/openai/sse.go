package openai

import (
	"bufio"
	"bytes"
	"io"
)

// sseDecoder reads server-sent events off a response body. Only the `data:`
// field is of interest here; event names and ids are not used by the
// completions stream.
type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReaderSize(r, 16*1024)}
}

// Next returns the next event's data payload. Multiple `data:` lines within
// one event are joined with `\n`, per the SSE format. Comment lines and
// unknown fields are skipped. Returns io.EOF when the body ends, after
// flushing any data accumulated before the close.
func (d *sseDecoder) Next() ([]byte, error) {
	var data [][]byte
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				data = appendDataLine(data, line)
			}
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(data) == 0 {
				continue
			}
			return bytes.Join(data, []byte("\n")), nil
		}
		if line[0] == ':' {
			continue
		}
		data = appendDataLine(data, line)
	}
}

func appendDataLine(dst [][]byte, line []byte) [][]byte {
	val, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return dst
	}
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return append(dst, append([]byte(nil), val...))
}
