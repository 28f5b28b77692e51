package memorywriter

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// This is a helper package that keeps a detailed log in bounded memory.
// The first lines after start are pinned, everything after that rotates;
// the whole buffer can be exported on the status page.

// hardcoded maximum line length, to keep memory usage predictable
const maxLineLength = 500

type MemoryWriter struct {
	mutex      sync.Mutex
	lineLimit  int
	lines      [][]byte // rotating lines, including newlines
	startLimit int
	startLines [][]byte // pinned lines from process start
	startTime  time.Time
	stampLines bool
	tee        io.Writer // optional verbose output
}

// New creates a MemoryWriter that rotates after lineLimit lines, keeping
// the first startLimit lines forever. When tee is non-nil, every line is
// also written there (used for verbose mode).
func New(lineLimit, startLimit int, stampLines bool, tee io.Writer) (*MemoryWriter, error) {
	if lineLimit <= 0 || startLimit < 0 {
		return nil, errors.New("memorywriter: nonsense line limits")
	}
	return &MemoryWriter{
		lineLimit:  lineLimit,
		lines:      make([][]byte, 0, lineLimit),
		startLimit: startLimit,
		startLines: make([][]byte, 0, startLimit),
		startTime:  time.Now(),
		stampLines: stampLines,
		tee:        tee,
	}, nil
}

// Log writes one line. Errors are swallowed; logging must never take
// the caller down.
func (m *MemoryWriter) Log(s string) {
	_, err := m.Write([]byte(s + "\n"))
	if err != nil {
		fmt.Println(err)
	}
}

func (m *MemoryWriter) Write(p []byte) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if len(p) > maxLineLength {
		p = p[:maxLineLength]
	}

	line := make([]byte, 0, len(p)+32)
	if m.stampLines {
		now := time.Now()
		elapsed := now.Sub(m.startTime)
		line = fmt.Appendf(line, "[%.6f : %s] ", elapsed.Seconds(), now.Format("15:04:05"))
	}
	line = append(line, p...)

	if len(m.startLines) < m.startLimit {
		m.startLines = append(m.startLines, line)
	} else {
		for len(m.lines) >= m.lineLimit {
			m.lines = m.lines[1:]
		}
		m.lines = append(m.lines, line)
	}

	if m.tee != nil {
		if _, err := m.tee.Write(line); err != nil {
			fmt.Println(err)
		}
	}
	return len(p), nil
}

// writeTo exports the remembered lines, newest first, with an arbitrary
// header on top (version info and similar).
func (m *MemoryWriter) writeTo(header string, w io.Writer) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}
	for i := len(m.lines) - 1; i >= 0; i-- {
		if _, err := w.Write(m.lines[i]); err != nil {
			return err
		}
	}
	// gap between the rotating part and the pinned start
	if _, err := w.Write([]byte("...\n")); err != nil {
		return err
	}
	for i := len(m.startLines) - 1; i >= 0; i-- {
		if _, err := w.Write(m.startLines[i]); err != nil {
			return err
		}
	}
	return nil
}

// String exports the log as a string.
func (m *MemoryWriter) String(header string) (string, error) {
	var b bytes.Buffer
	if err := m.writeTo(header, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Gzip exports the log as gzip bytes.
func (m *MemoryWriter) Gzip(header string) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	gw.Name = "log.txt"
	if err := m.writeTo(header, gw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
