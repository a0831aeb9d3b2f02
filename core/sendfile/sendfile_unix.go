//go:build linux || darwin || freebsd || dragonfly

package sendfile

import (
	"io"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sendFile runs unix.Sendfile on the connection's descriptor, parking on
// the runtime netpoller whenever the socket buffer is full. handled is
// false when conn exposes no descriptor.
func sendFile(conn net.Conn, f *os.File, count int64) (written int64, handled bool, err error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, false, nil
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, false, nil
	}
	fc, err := f.SyscallConn()
	if err != nil {
		return 0, true, err
	}

	var serr error
	cerr := fc.Control(func(ffd uintptr) {
		werr := rc.Write(func(cfd uintptr) bool {
			for written < count {
				chunk := count - written
				if chunk > maxChunk {
					chunk = maxChunk
				}
				// Some platforms do not advance the offset, so pass a fresh one.
				off := written
				n, err := unix.Sendfile(int(cfd), int(ffd), &off, int(chunk))
				if n > 0 {
					written += int64(n)
				}
				switch {
				case err == unix.EAGAIN:
					return false
				case err == unix.EINTR:
					continue
				case err != nil:
					serr = os.NewSyscallError("sendfile", err)
					return true
				case n == 0:
					serr = io.ErrUnexpectedEOF
					return true
				}
			}
			return true
		})
		if serr == nil {
			serr = werr
		}
	})
	if serr == nil {
		serr = cerr
	}
	return written, true, serr
}
