/*-------------------------------------------------------------------------
 *
 * otp_test.go
 *    Tests for one-time code issuance and verification
 *
 *-------------------------------------------------------------------------
 */

package otp

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	code, err := Generate(DefaultLength)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(code) != DefaultLength {
		t.Errorf("Generate() length = %d, want %d", len(code), DefaultLength)
	}
	for _, c := range code {
		if !strings.ContainsRune(alphabet, c) {
			t.Errorf("Generate() produced character %q outside alphabet", c)
		}
	}
}

func TestGenerateDefaultsLength(t *testing.T) {
	code, err := Generate(0)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(code) != DefaultLength {
		t.Errorf("Generate(0) length = %d, want %d", len(code), DefaultLength)
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := Generate(DefaultLength)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		seen[code] = true
	}
	/* 50 draws from a 36^6 space colliding down to a handful of values
	 * would mean a broken random source */
	if len(seen) < 45 {
		t.Errorf("Generate() produced only %d distinct codes out of 50", len(seen))
	}
}

func TestHashAndVerify(t *testing.T) {
	code, err := Generate(DefaultLength)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	hash, err := Hash(code)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == code {
		t.Error("Hash() returned the code in the clear")
	}

	if !Verify(code, hash) {
		t.Error("Verify() rejected the correct code")
	}
	if Verify("WRONG1", hash) {
		t.Error("Verify() accepted a wrong code")
	}
	if Verify(strings.ToLower(code), hash) && code != strings.ToLower(code) {
		t.Error("Verify() accepted a case-mangled code")
	}
}

func TestHashSalted(t *testing.T) {
	h1, err := Hash("ABC123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	h2, err := Hash("ABC123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if h1 == h2 {
		t.Error("Hash() produced identical hashes for two calls, expected salting")
	}
}
