package agent

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Control lines read from the scheduler.
const (
	lineClose = "CLOSE"
	lineEnd   = "END"
)

// lineWriter serializes protocol lines from the dispatch loop and the
// heartbeat goroutine onto the scheduler's stdout.
type lineWriter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

func (l *lineWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.w, format+"\n", args...); err != nil && l.err == nil {
		l.err = err
	}
}

// Err returns the first write error.
func (l *lineWriter) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *lineWriter) Version(v string) { l.printf("VERSION: %s", v) }

func (l *lineWriter) OK() { l.printf("OK") }

// Heart reports liveness. processed is the cumulative number of uploads
// processed since the agent started, not a delta since the previous
// heartbeat, so successive HEART lines never decrease.
func (l *lineWriter) Heart(processed int64, alive bool) {
	flag := 0
	if alive {
		flag = 1
	}
	l.printf("HEART: %d %d", processed, flag)
}

func (l *lineWriter) Bye(code int) { l.printf("BYE %d", code) }

// isControlLine reports whether line asks the agent to stop.
func isControlLine(line string) bool {
	line = strings.TrimSpace(line)
	return line == lineClose || line == lineEnd
}

// ParseUploadID reads the leading integer of line the way the scheduler's
// peers always have: leading blanks are skipped, an optional sign and the
// following digits are used, and anything else (including overflow) yields
// 0. Callers ignore non-positive results.
func ParseUploadID(line string) int64 {
	s := strings.TrimLeft(line, " \t\r\n\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	id, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
