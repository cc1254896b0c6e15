package secretbox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

var rawKey = bytes.Repeat([]byte{7}, 32)

func TestParseKeyFormats(t *testing.T) {
	for _, k := range []string{
		base64.StdEncoding.EncodeToString(rawKey),
		base64.RawStdEncoding.EncodeToString(rawKey),
		hex.EncodeToString(rawKey),
		string(rawKey),
	} {
		got, err := ParseKey(k)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", k, err)
		}
		if !bytes.Equal(got, rawKey) {
			t.Fatalf("ParseKey(%q) decoded to wrong key", k)
		}
	}
	if _, err := ParseKey("too-short"); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := ParseKey(""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestSealOpen(t *testing.T) {
	box, err := New(hex.EncodeToString(rawKey))
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := box.Seal([]byte("pkce-verifier"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(sealed, []byte("pkce-verifier")) {
		t.Fatalf("plaintext visible in sealed output")
	}
	pt, err := box.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "pkce-verifier" {
		t.Fatalf("got %q", pt)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := box.Open(sealed); err != ErrOpen {
		t.Fatalf("tampered open: got %v, want ErrOpen", err)
	}
	if _, err := box.Open([]byte("x")); err != ErrOpen {
		t.Fatalf("short open: got %v, want ErrOpen", err)
	}
}

func TestDifferentKeysDoNotOpen(t *testing.T) {
	a, _ := New(hex.EncodeToString(rawKey))
	b, _ := New(hex.EncodeToString(bytes.Repeat([]byte{9}, 32)))
	sealed, err := a.Seal([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Open(sealed); err != ErrOpen {
		t.Fatalf("got %v, want ErrOpen", err)
	}
}
