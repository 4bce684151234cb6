package tail

import (
	"bytes"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// lineBuffer accumulates bytes read from one file and splits them into
// complete lines on '\n', per spec.md §4.3. A trailing partial line is
// retained across Feed calls and is never flushed — a half-written log
// record is never a metric event. Not safe for concurrent use; owned by
// exactly one FileWatcher goroutine.
type lineBuffer struct {
	path string
	log  *slog.Logger
	buf  []byte
}

func newLineBuffer(path string, log *slog.Logger) *lineBuffer {
	return &lineBuffer{path: path, log: log, buf: nil}
}

// feed appends data and invokes emit once per complete line, newline (and
// any preceding carriage return) stripped. Bytes that fail UTF-8
// validation within a line are dropped and a warning is logged; the rest
// of the line is still delivered.
func (b *lineBuffer) feed(data []byte, emit func(line string)) {
	b.buf = append(b.buf, data...)

	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		raw := bytes.TrimSuffix(b.buf[:i], []byte("\r"))
		b.buf = b.buf[i+1:]
		emit(b.sanitize(raw))
	}
}

// sanitize returns raw decoded as UTF-8, dropping any invalid byte
// sequences and logging a warning when it had to.
func (b *lineBuffer) sanitize(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	b.log.Warn("dropped invalid UTF-8 bytes in line", "path", b.path)
	return strings.ToValidUTF8(string(raw), "")
}
