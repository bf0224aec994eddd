package process

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
)

// maxPartial bounds a line that never sees a newline.
const maxPartial = 64 * 1024

// lineWriter splits a process stream into lines, keeps a bounded tail of them
// and fires onMatch once for the first line matching pattern. It never blocks,
// so the child keeps writing after readiness without filling its pipe.
type lineWriter struct {
	mu      sync.Mutex
	stream  Stream
	partial []byte
	tail    []string
	limit   int

	pattern *regexp.Regexp
	onMatch func()
	matched bool
	onLine  func(Stream, string)
}

func newLineWriter(stream Stream, limit int, pattern *regexp.Regexp, onMatch func(), onLine func(Stream, string)) *lineWriter {
	return &lineWriter{
		stream:  stream,
		limit:   limit,
		pattern: pattern,
		onMatch: onMatch,
		onLine:  onLine,
	}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.line(string(bytes.TrimRight(w.partial[:i], "\r")))
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) > maxPartial {
		w.line(string(w.partial))
		w.partial = nil
	}
	return len(p), nil
}

// flush emits a trailing line that had no newline. Called once the stream is
// closed.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.line(string(bytes.TrimRight(w.partial, "\r")))
		w.partial = nil
	}
}

func (w *lineWriter) line(text string) {
	if len(w.tail) == w.limit && w.limit > 0 {
		copy(w.tail, w.tail[1:])
		w.tail = w.tail[:len(w.tail)-1]
	}
	if w.limit > 0 {
		w.tail = append(w.tail, text)
	}
	if w.onLine != nil {
		w.onLine(w.stream, text)
	}
	if !w.matched && w.pattern != nil && w.pattern.MatchString(text) {
		w.matched = true
		w.onMatch()
	}
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.tail, "\n")
}
