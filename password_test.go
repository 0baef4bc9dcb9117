package initd

import (
	"errors"
	"strings"
	"testing"
)

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		pass, secure := generatePassword()
		if !secure {
			t.Fatal("secure random source unavailable")
		}
		if len(pass) != PasswordLength {
			t.Fatalf("length = %d, want %d", len(pass), PasswordLength)
		}
		for _, c := range pass {
			if !strings.ContainsRune(passwordCharset, c) {
				t.Fatalf("password %q contains %q outside the charset", pass, c)
			}
		}
		if seen[pass] {
			t.Fatalf("password %q generated twice", pass)
		}
		seen[pass] = true
	}
}

func TestGenerateSalt(t *testing.T) {
	salt, secure := generateSalt()
	if !secure {
		t.Fatal("secure random source unavailable")
	}
	if len(salt) != SaltLength {
		t.Fatalf("length = %d, want %d", len(salt), SaltLength)
	}
	for _, c := range salt {
		if !strings.ContainsRune(saltCharset, c) {
			t.Fatalf("salt %q contains %q outside the charset", salt, c)
		}
	}
}

func TestRandomStringDegradedSource(t *testing.T) {
	// A failing reader must fall back to the time+pid-seeded generator
	// and report the degraded path.
	pass, secure := randomString(failingReader{}, passwordCharset, PasswordLength)
	if secure {
		t.Error("secure = true, want degraded")
	}
	if len(pass) != PasswordLength {
		t.Errorf("length = %d, want %d", len(pass), PasswordLength)
	}
	for _, c := range pass {
		if !strings.ContainsRune(passwordCharset, c) {
			t.Errorf("password %q contains %q outside the charset", pass, c)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("random source unavailable")
}
