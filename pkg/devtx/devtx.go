//go:build linux

// Package devtx adapts a raw net.PacketConn/net.UDPConn into the file
// descriptor form socket options need, for the out-of-band TRDP egress
// path that bypasses the TT send loop entirely (best-effort traffic
// that never goes through a Scheduler). Grounded on the teacher's
// pkg/exporter.TCPInfoCollector.Add, the pack's only use of
// github.com/higebu/netfd to pull a raw fd out of a net.Conn.
//
// SO_PRIORITY is Linux-specific, so this implementation is built only
// on linux; see devtx_other.go for the portable stub, matching the
// pkg/clock split (clock_linux.go / clock_other.go) and the teacher's
// tcpinfo_other.go ErrNotImplemented idiom.
package devtx

import (
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"

	"github.com/ttswitch/ttcore/pkg/ttserr"
)

// RawFD extracts the underlying file descriptor of conn, the way
// NewTCPInfoCollector did to call getsockopt(TCP_INFO) on it. Here
// it's used so a caller can set socket options (SO_PRIORITY,
// SO_TXTIME) on the egress socket before best-effort TRDP frames reach
// it; the TT scheduler's own send path never touches this.
func RawFD(conn net.Conn) int {
	return netfd.GetFdFromConn(conn)
}

// SetPriority sets SO_PRIORITY on conn's socket, the same lever
// real-time Ethernet stacks use to keep best-effort traffic out of a
// TT device queue's strict-priority band.
func SetPriority(conn net.Conn, priority int) error {
	fd := RawFD(conn)
	if fd < 0 {
		return ttserr.New(ttserr.Invalid, "conn has no extractable file descriptor")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, priority); err != nil {
		return ttserr.Newf(ttserr.Invalid, "setsockopt(SO_PRIORITY): %v", err)
	}
	return nil
}

// RawSend is a minimal raw write: it writes b directly to conn's file
// descriptor, bypassing the Go runtime's net.Conn.Write path. Device
// transmit primitives proper are out of scope (spec §1). Its signature
// differs from scheduler.SendFunc, so using it as a Scheduler's send
// collaborator takes a wrapper; nothing in this module wires it up.
func RawSend(conn net.Conn, b []byte) (int, error) {
	fd := RawFD(conn)
	if fd < 0 {
		return 0, ttserr.New(ttserr.Invalid, "conn has no extractable file descriptor")
	}
	n, err := unix.Write(fd, b)
	if err != nil {
		return n, ttserr.Newf(ttserr.Invalid, "write(2): %v", err)
	}
	return n, nil
}
