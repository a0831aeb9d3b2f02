// Package sendfile transmits files to connections, using the kernel's
// zero-copy path where the platform and the connection allow it.
package sendfile

import (
	"io"
	"net"
	"os"
)

// maxChunk bounds a single sendfile call
const maxChunk = 1 << 30

// SendFile writes the first count bytes of f to conn and returns the number
// of bytes written. A file shorter than count ends with io.ErrUnexpectedEOF.
//
// Connections without a raw descriptor fall back to a buffered copy.
func SendFile(conn net.Conn, f *os.File, count int64) (int64, error) {
	if count <= 0 {
		return 0, nil
	}
	if n, handled, err := sendFile(conn, f, count); handled {
		return n, err
	}
	return copyFile(conn, f, count)
}

func copyFile(w io.Writer, f *os.File, count int64) (int64, error) {
	n, err := io.Copy(w, io.NewSectionReader(f, 0, count))
	if err == nil && n < count {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
