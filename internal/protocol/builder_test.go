package protocol

import (
	"bytes"
	"testing"
)

func TestBuildFramedPrefixesLength(t *testing.T) {
	b := NewPacketBuilder()
	b.WriteVarInt(0).WriteString("abc")
	framed := b.BuildFramed()

	r := bytes.NewReader(framed)
	n, err := ReadVarInt(r)
	if err != nil {
		t.Fatal(err)
	}
	if int(n) != b.Len() || r.Len() != b.Len() {
		t.Fatalf("length prefix %d, body %d, builder %d", n, r.Len(), b.Len())
	}
}

func TestBuildStatusResponse(t *testing.T) {
	const body = `{"version":{"name":"1.20.4","protocol":765}}`
	r := bytes.NewReader(BuildStatusResponse(body))

	length, _ := ReadVarInt(r)
	if int(length) != r.Len() {
		t.Fatalf("length %d, remaining %d", length, r.Len())
	}
	id, _ := ReadVarInt(r)
	if id != PktStatusResponse {
		t.Fatalf("packet id %d", id)
	}
	got, err := ReadString(r)
	if err != nil || got != body {
		t.Fatalf("payload %q, %v", got, err)
	}
}

func TestBuildPongResponse(t *testing.T) {
	data := BuildPongResponse(0x0102030405060708)
	want := []byte{0x09, 0x01, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	if !bytes.Equal(data, want) {
		t.Fatalf("got %x, want %x", data, want)
	}
}

func TestBuildHandshake(t *testing.T) {
	r := bytes.NewReader(BuildHandshake(765, "localhost", 25565, StateStatus))

	ReadVarInt(r) // length
	if id, _ := ReadVarInt(r); id != PktHandshake {
		t.Fatalf("packet id %d", id)
	}
	proto, _ := ReadVarInt(r)
	addr, _ := ReadString(r)
	port, _ := ReadUint16(r)
	next, _ := ReadVarInt(r)
	if proto != 765 || addr != "localhost" || port != 25565 || next != StateStatus {
		t.Fatalf("got %d %q %d %d", proto, addr, port, next)
	}
	if r.Len() != 0 {
		t.Fatalf("%d trailing bytes", r.Len())
	}
}
