package workunit

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/silentarmy/stratum-miner/pkg/errors"
)

func validNotify() (nVersion, prevHash, merkleRoot, reserved, nTime, nBits string) {
	return "04000000",
		strings.Repeat("ab", 32),
		strings.Repeat("cd", 32),
		strings.Repeat("0", 64),
		"5a000000",
		"1d00ffff"
}

func TestNewHeaderPrefix(t *testing.T) {
	t.Run("valid fields assemble 108 bytes", func(t *testing.T) {
		nVersion, prevHash, merkleRoot, reserved, nTime, nBits := validNotify()
		prefix, err := NewHeaderPrefix(nVersion, prevHash, merkleRoot, reserved, nTime, nBits)
		if err != nil {
			t.Fatalf("NewHeaderPrefix() error = %v", err)
		}
		if len(prefix) != HeaderPrefixLen {
			t.Errorf("len(prefix) = %d, want %d", len(prefix), HeaderPrefixLen)
		}
	})

	t.Run("wrong nVersion is rejected", func(t *testing.T) {
		_, prevHash, merkleRoot, reserved, nTime, nBits := validNotify()
		_, err := NewHeaderPrefix("01000000", prevHash, merkleRoot, reserved, nTime, nBits)
		if !errors.IsType(err, errors.ErrorTypeProtocol) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})

	t.Run("nonzero hashReserved is rejected", func(t *testing.T) {
		nVersion, prevHash, merkleRoot, _, nTime, nBits := validNotify()
		bad := strings.Repeat("1", 64)
		_, err := NewHeaderPrefix(nVersion, prevHash, merkleRoot, bad, nTime, nBits)
		if err == nil {
			t.Error("expected error for nonzero hashReserved")
		}
	})

	t.Run("wrong length hashes are rejected", func(t *testing.T) {
		nVersion, _, merkleRoot, reserved, nTime, nBits := validNotify()
		_, err := NewHeaderPrefix(nVersion, "ab", merkleRoot, reserved, nTime, nBits)
		if err == nil {
			t.Error("expected error for short hashPrevBlock")
		}
	})
}

func TestParseNonceLeft(t *testing.T) {
	tests := []struct {
		name    string
		hexStr  string
		wantLen int
		wantErr bool
		fatal   bool
	}{
		{name: "one byte", hexStr: "0a", wantLen: 1},
		{name: "exactly 17 bytes accepted", hexStr: strings.Repeat("ab", 17), wantLen: 17},
		{name: "18 bytes is fatal", hexStr: strings.Repeat("ab", 18), wantErr: true, fatal: true},
		{name: "empty is rejected", hexStr: "", wantErr: true},
		{name: "non-hex is rejected", hexStr: "zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNonceLeft(tt.hexStr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNonceLeft() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if tt.fatal && !errors.IsType(err, errors.ErrorTypeFatal) {
					t.Errorf("expected fatal error, got %v", err)
				}
				return
			}
			if len(got) != tt.wantLen {
				t.Errorf("len(got) = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestReverseTarget(t *testing.T) {
	wireBytes := make([]byte, 32)
	for i := range wireBytes {
		wireBytes[i] = byte(i)
	}
	wireHex := hex.EncodeToString(wireBytes)

	got, err := ReverseTarget(wireHex)
	if err != nil {
		t.Fatalf("ReverseTarget() error = %v", err)
	}
	for i := 0; i < 32; i++ {
		if got[i] != wireBytes[31-i] {
			t.Errorf("got[%d] = %x, want %x", i, got[i], wireBytes[31-i])
		}
	}

	// Round trip: reversing twice restores the original order.
	roundTripHex := hex.EncodeToString(reverseBytes(got[:]))
	if roundTripHex != wireHex {
		t.Errorf("round trip = %s, want %s", roundTripHex, wireHex)
	}
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

func TestReverseTarget_TooLong(t *testing.T) {
	_, err := ReverseTarget(strings.Repeat("ab", 40))
	if err == nil {
		t.Error("expected error for oversized target")
	}
}
