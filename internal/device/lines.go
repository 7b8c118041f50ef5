package device

import (
	"bytes"
	"strings"
)

// MaxLineSize bounds a single line from the device. Longer lines are dropped
// up to the next newline.
const MaxLineSize = 4096

type lineSplitter struct {
	buf      []byte
	limit    int
	overflow bool
}

func newLineSplitter(limit int) *lineSplitter {
	if limit <= 0 {
		limit = MaxLineSize
	}
	return &lineSplitter{limit: limit}
}

// feed consumes a chunk and calls emit for every complete, non-empty line
// with surrounding whitespace removed.
func (s *lineSplitter) feed(chunk []byte, emit func(string)) {
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx == -1 {
			s.append(chunk)
			return
		}

		s.append(chunk[:idx])
		if !s.overflow {
			if line := strings.TrimSpace(string(s.buf)); line != "" {
				emit(line)
			}
		}
		s.buf = s.buf[:0]
		s.overflow = false
		chunk = chunk[idx+1:]
	}
}

func (s *lineSplitter) append(b []byte) {
	if s.overflow {
		return
	}
	s.buf = append(s.buf, b...)
	if len(s.buf) > s.limit {
		s.buf = s.buf[:0]
		s.overflow = true
	}
}
