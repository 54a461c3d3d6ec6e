// Package ttcodec implements the TT framing codec (component C3): the
// push/pop of a fixed-length TT shim between the Ethernet header and
// the original IP payload, and classification of ingress frames as TT,
// TRDP, or Other. It is ported from the Linux datapath's push_tt/pop_tt
// and is_tt_packet/is_trdp_packet (original_source/datapath/tt.c),
// which insert or remove the shim in place rather than touching the IP
// datagram that follows it.
package ttcodec

import (
	"encoding/binary"

	"github.com/ttswitch/ttcore/pkg/frame"
	"github.com/ttswitch/ttcore/pkg/ttserr"
)

const (
	// EtherTypeTT is the EtherType carried by TT-framed traffic.
	// ETH_P_TT in the source datapath has no IANA-assigned value; this
	// mirrors the experimental/local-use range the source reserves it from.
	EtherTypeTT uint16 = 0x88b6
	// EtherTypeIPv4 is the EtherType restored on tt_to_trdp.
	EtherTypeIPv4 uint16 = 0x0800
	// EtherTypeOffset is the byte offset of EtherType within a 14-byte
	// (untagged) Ethernet header.
	EtherTypeOffset = 12
	// DefaultMacLen is the untagged Ethernet header length (DA+SA+EtherType).
	DefaultMacLen = 14

	// TTUDPPort is the UDP destination port that marks a TRDP frame.
	TTUDPPort uint16 = 17224

	// TTHeaderLen is the fixed TT shim length: flow_id (2B) + length (2B).
	TTHeaderLen = 4
	// CRCLen is the length of the Ethernet frame check sequence, excluded
	// from the shim's length field (see DESIGN.md Open Question (a)).
	CRCLen = 4

	ipProtoUDP      = 17
	udpHeaderLen    = 8
	ipv4MinIHLBytes = 20
)

// Class classifies an ingress frame.
type Class int

const (
	Other Class = iota
	TT
	TRDP
)

func (c Class) String() string {
	switch c {
	case TT:
		return "TT"
	case TRDP:
		return "TRDP"
	default:
		return "Other"
	}
}

// etherType reads the EtherType of a frame whose live window begins
// with an (at least) 14-byte Ethernet header.
func etherType(f *frame.Frame) (uint16, bool) {
	b := f.Bytes()
	if len(b) < EtherTypeOffset+2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[EtherTypeOffset : EtherTypeOffset+2]), true
}

// ipv4UDPPayloadOffset locates the UDP payload within a frame whose
// live window is [Ethernet header][IPv4 header][UDP header][payload],
// returning the byte offset from the start of the live window, or ok=false
// if the frame is too short or isn't IPv4/UDP.
func ipv4UDPPayloadOffset(f *frame.Frame) (offset int, dstPort uint16, ok bool) {
	b := f.Bytes()
	macLen := f.MacLen()
	if len(b) < macLen+ipv4MinIHLBytes {
		return 0, 0, false
	}
	ipHdr := b[macLen:]
	version := ipHdr[0] >> 4
	if version != 4 {
		return 0, 0, false
	}
	ihl := int(ipHdr[0]&0x0f) * 4
	if ihl < ipv4MinIHLBytes || len(b) < macLen+ihl+udpHeaderLen {
		return 0, 0, false
	}
	if ipHdr[9] != ipProtoUDP {
		return 0, 0, false
	}
	udpHdr := b[macLen+ihl:]
	dstPort = binary.BigEndian.Uint16(udpHdr[2:4])
	return macLen + ihl + udpHeaderLen, dstPort, true
}

// Classify implements classify_ingress: TT iff the EtherType is
// EtherTypeTT; TRDP iff the frame is IPv4/UDP with a UDP destination
// port of TTUDPPort; Other otherwise.
func Classify(f *frame.Frame) Class {
	if et, ok := etherType(f); ok && et == EtherTypeTT {
		return TT
	}
	if _, dstPort, ok := ipv4UDPPayloadOffset(f); ok && dstPort == TTUDPPort {
		return TRDP
	}
	return Other
}

// TRDPToTT converts a TRDP frame (classified by Classify as TRDP) into a
// TT frame in place: it reads the flow id from the first two bytes of
// the UDP payload, grows head-room by TTHeaderLen, shifts the Ethernet
// header forward to the new front, overwrites the EtherType, and writes
// the shim. The IPv4/UDP header and payload that followed the Ethernet
// header are left untouched, immediately after the shim.
func TRDPToTT(f *frame.Frame) error {
	payloadOffset, _, ok := ipv4UDPPayloadOffset(f)
	if !ok {
		return ttserr.New(ttserr.Invalid, "frame is not a classifiable TRDP frame")
	}
	b := f.Bytes()
	if len(b) < payloadOffset+2 {
		return ttserr.New(ttserr.Invalid, "UDP payload too short to carry a flow id")
	}
	flowID := binary.BigEndian.Uint16(b[payloadOffset : payloadOffset+2])
	origLen := f.Len()
	macLen := f.MacLen()

	if err := f.PushFront(TTHeaderLen); err != nil {
		return err
	}

	nb := f.Bytes()
	// Shift the Ethernet header from its old position (TTHeaderLen bytes
	// into the grown window) down to the new front; everything after it
	// (the IPv4 datagram) is already where it needs to end up.
	copy(nb[:macLen], nb[TTHeaderLen:TTHeaderLen+macLen])
	binary.BigEndian.PutUint16(nb[EtherTypeOffset:EtherTypeOffset+2], EtherTypeTT)
	binary.BigEndian.PutUint16(nb[macLen:macLen+2], flowID)
	binary.BigEndian.PutUint16(nb[macLen+2:macLen+4], uint16(origLen-CRCLen))
	return nil
}

// TTToTRDP converts a TT frame back into its original TRDP form in
// place: it shifts the Ethernet header back over the shim, pulls the
// shim off the front, and restores the IPv4 EtherType.
func TTToTRDP(f *frame.Frame) error {
	if err := f.EnsureWritable(); err != nil {
		return err
	}
	macLen := f.MacLen()
	b := f.Bytes()
	if len(b) < macLen+TTHeaderLen {
		return ttserr.New(ttserr.Invalid, "frame too short to carry a TT shim")
	}
	copy(b[TTHeaderLen:TTHeaderLen+macLen], b[:macLen])
	f.PullFront(TTHeaderLen)
	nb := f.Bytes()
	binary.BigEndian.PutUint16(nb[EtherTypeOffset:EtherTypeOffset+2], EtherTypeIPv4)
	return nil
}

// ShimFlowID reads the flow id out of a frame already classified as TT.
func ShimFlowID(f *frame.Frame) (uint16, bool) {
	b := f.MacHeader()
	macLen := len(b)
	full := f.Bytes()
	if len(full) < macLen+2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(full[macLen : macLen+2]), true
}
