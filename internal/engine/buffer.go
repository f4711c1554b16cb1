package engine

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aristath/nodemanager/internal/log"
	logruslog "github.com/aristath/nodemanager/internal/log/logrus"
)

// logBuffer is an item's append-only log. Every complete line is handed to
// onLine as it is written.
type logBuffer struct {
	mu      sync.Mutex
	buf     strings.Builder
	partial []byte
	onLine  func(line string)
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.buf.Write(p)
	b.partial = append(b.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(b.partial[:i]))
		b.partial = b.partial[i+1:]
	}
	onLine := b.onLine
	b.mu.Unlock()

	if onLine != nil {
		for _, line := range lines {
			onLine(line)
		}
	}
	return len(p), nil
}

// Raw appends line verbatim.
func (b *logBuffer) Raw(line string) {
	_, _ = b.Write([]byte(line + "\n"))
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) Lines() []string {
	text := strings.TrimSuffix(b.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func (b *logBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
	b.partial = nil
}

// lineFormatter renders entries as "LEVEL: message", followed by any fields.
type lineFormatter struct{}

func (lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(strings.ToUpper(entry.Level.String()))
	b.WriteString(": ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// itemSink is the task.Sink handed to an item's tasks.
type itemSink struct {
	log.Logger
	buf *logBuffer
}

func (s itemSink) Raw(line string) { s.buf.Raw(line) }

func newItemSink(buf *logBuffer, debug bool) itemSink {
	l := logrus.New()
	l.SetOutput(buf)
	l.SetFormatter(lineFormatter{})
	l.SetLevel(logrus.InfoLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return itemSink{
		Logger: logruslog.NewLogrus(logrus.NewEntry(l)),
		buf:    buf,
	}
}
