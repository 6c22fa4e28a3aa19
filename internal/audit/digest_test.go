package audit

import (
	"strings"
	"testing"
)

// FIPS 180-4 test vectors (NIST examples).
func TestDigestVectors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq",
			"248d6a61d20638b8e5c026930c3e6039a33ce45964ff2167f6ecedd419db06c1"},
	}

	for _, tc := range cases {
		got := Digest(tc.in)
		if got != tc.want {
			t.Errorf("Digest(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestDigestShape(t *testing.T) {
	got := Digest("track record")
	if len(got) != 64 {
		t.Fatalf("digest length = %d, want 64", len(got))
	}
	if got != strings.ToLower(got) {
		t.Errorf("digest must be lowercase: %s", got)
	}
	if !IsHex64(got) {
		t.Errorf("IsHex64 rejected a real digest: %s", got)
	}
}

func TestIsHex64(t *testing.T) {
	if !IsHex64(GenesisHash) {
		t.Error("genesis hash should be valid hex64")
	}
	for _, bad := range []string{"", "00", strings.Repeat("0", 63), strings.Repeat("0", 65),
		strings.Repeat("G", 64), strings.ToUpper(Digest("x"))} {
		if IsHex64(bad) {
			t.Errorf("IsHex64(%q) should be false", bad)
		}
	}
}
