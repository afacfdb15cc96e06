package codec

import (
	"testing"
)

func TestUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	PutUint32(buf, 0xdeadbeef)
	if got := Uint32(buf); got != 0xdeadbeef {
		t.Fatalf("got %#x, want %#x", got, 0xdeadbeef)
	}
	// little-endian: least significant byte first
	if buf[0] != 0xef || buf[3] != 0xde {
		t.Fatalf("PutUint32 did not write little-endian bytes: %x", buf)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 1 << 20, 1<<32 - 1}
	for _, v := range cases {
		buf := AppendVarint(nil, v)
		got, n, err := ReadVarint(buf)
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("got %d, want %d", got, v)
		}
		if n != len(buf) {
			t.Fatalf("ReadVarint consumed %d bytes, want %d", n, len(buf))
		}
	}
}

func TestVarintSingleByteForSmallValues(t *testing.T) {
	buf := AppendVarint(nil, 100)
	if len(buf) != 1 {
		t.Fatalf("expected a 1-byte encoding for 100, got %d bytes", len(buf))
	}
}

func TestReadVarintTooLong(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, _, err := ReadVarint(buf)
	if err != ErrVarintTooLong {
		t.Fatalf("got %v, want ErrVarintTooLong", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	buf := AppendString(nil, "hello, fibers")
	s, n, err := ReadString(buf)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if s != "hello, fibers" {
		t.Fatalf("got %q", s)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
}

func TestReadStringTruncated(t *testing.T) {
	buf := AppendString(nil, "hello")
	_, _, err := ReadString(buf[:2])
	if err == nil {
		t.Fatal("expected an error reading a truncated string")
	}
}
