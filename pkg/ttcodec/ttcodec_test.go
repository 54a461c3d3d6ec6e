package ttcodec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ttswitch/ttcore/pkg/frame"
)

// buildTRDPFrame constructs a minimal Ethernet+IPv4+UDP frame carrying
// flowID as the first two bytes of the UDP payload, as produced by a
// TRDP talker.
func buildTRDPFrame(flowID uint16, extraPayload []byte, headroom int) *frame.Frame {
	eth := make([]byte, 14)
	binary.BigEndian.PutUint16(eth[12:14], EtherTypeIPv4)

	ip := make([]byte, 20)
	ip[0] = 0x45 // version 4, IHL 5
	ip[9] = ipProtoUDP

	udpPayload := make([]byte, 2+len(extraPayload))
	binary.BigEndian.PutUint16(udpPayload[0:2], flowID)
	copy(udpPayload[2:], extraPayload)

	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[2:4], TTUDPPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(8+len(udpPayload)))

	var buf bytes.Buffer
	buf.Write(eth)
	buf.Write(ip)
	buf.Write(udp)
	buf.Write(udpPayload)

	return frame.New(14, buf.Bytes(), headroom)
}

func TestClassify(t *testing.T) {
	trdp := buildTRDPFrame(42, []byte("hello"), 0)
	if got := Classify(trdp); got != TRDP {
		t.Fatalf("Classify(trdp) = %v, want TRDP", got)
	}

	other := buildTRDPFrame(42, []byte("hello"), 0)
	other.Bytes()[14+9] = 6 // flip IP proto to TCP
	if got := Classify(other); got != Other {
		t.Fatalf("Classify(non-udp) = %v, want Other", got)
	}

	_ = TRDPToTT(trdp)
	if got := Classify(trdp); got != TT {
		t.Fatalf("Classify(tt) = %v, want TT", got)
	}
}

func TestTRDPToTTThenBackRoundTrips(t *testing.T) {
	const flowID = 0x1234
	payload := []byte("time-triggered payload data")
	orig := buildTRDPFrame(flowID, payload, 0)
	origBytes := append([]byte(nil), orig.Bytes()...)

	// Real conversion needs head-room; PushFront will grow it on demand,
	// but build with spare room too, mirroring a realistic skb_cow_head.
	withRoom := buildTRDPFrame(flowID, payload, TTHeaderLen+8)

	if err := TRDPToTT(withRoom); err != nil {
		t.Fatalf("TRDPToTT: %v", err)
	}
	if got := Classify(withRoom); got != TT {
		t.Fatalf("Classify after TRDPToTT = %v, want TT", got)
	}
	gotFlowID, ok := ShimFlowID(withRoom)
	if !ok || gotFlowID != flowID {
		t.Fatalf("ShimFlowID = (%d, %v), want (%d, true)", gotFlowID, ok, flowID)
	}

	if err := TTToTRDP(withRoom); err != nil {
		t.Fatalf("TTToTRDP: %v", err)
	}
	if got := Classify(withRoom); got != TRDP {
		t.Fatalf("Classify after round trip = %v, want TRDP", got)
	}
	if !bytes.Equal(withRoom.Bytes(), origBytes) {
		t.Fatalf("round trip bytes = %x, want %x", withRoom.Bytes(), origBytes)
	}
}

func TestTRDPToTTLengthExcludesCRC(t *testing.T) {
	const flowID = 7
	payload := []byte("xyz")
	f := buildTRDPFrame(flowID, payload, TTHeaderLen)
	origLen := f.Len()

	if err := TRDPToTT(f); err != nil {
		t.Fatalf("TRDPToTT: %v", err)
	}
	b := f.Bytes()
	shimLen := binary.BigEndian.Uint16(b[f.MacLen()+2 : f.MacLen()+4])
	if int(shimLen) != origLen-CRCLen {
		t.Fatalf("shim length = %d, want %d", shimLen, origLen-CRCLen)
	}
}

func TestTTToTRDPSucceedsOnSharedButPrivatizableFrame(t *testing.T) {
	f := buildTRDPFrame(3, []byte("a"), TTHeaderLen)
	if err := TRDPToTT(f); err != nil {
		t.Fatalf("TRDPToTT: %v", err)
	}
	shared := f.Share()
	if err := TTToTRDP(shared); err != nil {
		t.Fatalf("TTToTRDP on a shared-but-privatizable frame should succeed, got: %v", err)
	}
}

func TestTTToTRDPNotWritableWhenPrivatizationFails(t *testing.T) {
	oversized := make([]byte, frame.MaxAlloc+1)
	binary.BigEndian.PutUint16(oversized[12:14], EtherTypeTT)
	f := frame.New(14, oversized, 0)
	shared := f.Share()

	err := TTToTRDP(shared)
	if err == nil {
		t.Fatal("expected NotWritable error for an oversized shared frame")
	}
}
