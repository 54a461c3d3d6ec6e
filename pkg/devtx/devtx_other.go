//go:build !linux

package devtx

import (
	"net"

	"github.com/higebu/netfd"

	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// RawFD extracts the underlying file descriptor of conn; portable
// across every platform netfd supports.
func RawFD(conn net.Conn) int {
	return netfd.GetFdFromConn(conn)
}

// SetPriority is unimplemented outside Linux: SO_PRIORITY is a
// Linux-specific socket option with no portable equivalent, mirroring
// the teacher's tcpinfo_other.go returning ErrNotImplemented for
// platforms lacking a real syscall backend.
func SetPriority(conn net.Conn, priority int) error {
	return ttserr.New(ttserr.Invalid, "devtx.SetPriority is only implemented on linux")
}

// RawSend is unimplemented outside Linux; see SetPriority.
func RawSend(conn net.Conn, b []byte) (int, error) {
	return 0, ttserr.New(ttserr.Invalid, "devtx.RawSend is only implemented on linux")
}
