// Package perflog appends one timing sample per served file to a log file.
package perflog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Format selects the on-disk record encoding.
type Format string

const (
	// FormatText writes "FILE: <path> SIZE: <n> TIME: <seconds> sec" lines.
	FormatText Format = "text"
	// FormatBinary writes varint length-prefixed protobuf records.
	FormatBinary Format = "binary"
)

var ErrUnknownFormat = errors.New("unknown perf log format")

// Record field numbers of the binary encoding
const (
	fieldPath      protowire.Number = 1
	fieldSize      protowire.Number = 2
	fieldElapsedNs protowire.Number = 3
	fieldUnixNano  protowire.Number = 4
	fieldPID       protowire.Number = 5
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatBinary:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Sample is one decoded record.
type Sample struct {
	Path    string
	Size    int64
	Elapsed time.Duration
	Time    time.Time
	PID     int
}

// Log is an append-only perf log shared by every worker of a process.
// Several processes may append to the same file; each record is written
// with a single write on an O_APPEND descriptor.
type Log struct {
	mu     sync.Mutex
	f      *os.File
	format Format
	pid    int
	buf    []byte
}

// Open opens (creating if needed) the log at path for appending.
func Open(path string, format Format) (*Log, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open perf log: %w", err)
	}
	return &Log{
		f:      f,
		format: format,
		pid:    os.Getpid(),
		buf:    make([]byte, 0, 256),
	}, nil
}

// Record appends one sample. It is a no-op on a nil or closed log; write
// failures are dropped.
func (l *Log) Record(path string, size int64, elapsed time.Duration) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}

	b := l.buf[:0]
	switch l.format {
	case FormatBinary:
		b = appendBinary(b, path, size, elapsed, time.Now().UnixNano(), l.pid)
	default:
		b = AppendText(b, path, size, elapsed)
	}
	l.f.Write(b)
	l.buf = b
}

// Close closes the underlying file. Later calls to Record are no-ops.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// AppendText appends the text form of a sample, newline included.
func AppendText(b []byte, path string, size int64, elapsed time.Duration) []byte {
	b = append(b, "FILE: "...)
	b = append(b, path...)
	b = append(b, " SIZE: "...)
	b = strconv.AppendInt(b, size, 10)
	b = append(b, " TIME: "...)
	b = strconv.AppendFloat(b, elapsed.Seconds(), 'f', 4, 64)
	b = append(b, " sec\n"...)
	return b
}

func appendBinary(b []byte, path string, size int64, elapsed time.Duration, unixNano int64, pid int) []byte {
	var msg [128]byte
	m := msg[:0]
	m = protowire.AppendTag(m, fieldPath, protowire.BytesType)
	m = protowire.AppendString(m, path)
	m = protowire.AppendTag(m, fieldSize, protowire.VarintType)
	m = protowire.AppendVarint(m, uint64(size))
	m = protowire.AppendTag(m, fieldElapsedNs, protowire.VarintType)
	m = protowire.AppendVarint(m, uint64(elapsed))
	m = protowire.AppendTag(m, fieldUnixNano, protowire.VarintType)
	m = protowire.AppendVarint(m, uint64(unixNano))
	m = protowire.AppendTag(m, fieldPID, protowire.VarintType)
	m = protowire.AppendVarint(m, uint64(pid))

	b = protowire.AppendBytes(b, m)
	return b
}

// ReadBinary decodes every record of a binary perf log.
func ReadBinary(r io.Reader) ([]Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for len(data) > 0 {
		msg, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return samples, fmt.Errorf("perf log record %d: %w", len(samples), protowire.ParseError(n))
		}
		data = data[n:]

		s, err := decodeSample(msg)
		if err != nil {
			return samples, fmt.Errorf("perf log record %d: %w", len(samples), err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func decodeSample(msg []byte) (Sample, error) {
	var s Sample
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		msg = msg[n:]

		if typ == protowire.BytesType && num == fieldPath {
			v, n := protowire.ConsumeString(msg)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			s.Path = v
			msg = msg[n:]
			continue
		}
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			msg = msg[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(msg)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		msg = msg[n:]
		switch num {
		case fieldSize:
			s.Size = int64(v)
		case fieldElapsedNs:
			s.Elapsed = time.Duration(v)
		case fieldUnixNano:
			s.Time = time.Unix(0, int64(v))
		case fieldPID:
			s.PID = int(v)
		}
	}
	return s, nil
}
