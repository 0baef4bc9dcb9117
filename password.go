package initd

import (
	"crypto/rand"
	"io"
	mrand "math/rand/v2"
	"os"
	"time"
)

// randomString draws n characters from charset using the secure random
// source. The boolean is false when crypto/rand was unavailable and the
// degraded time+pid-seeded generator was used instead; callers must
// surface that condition, not treat it as equivalent.
func randomString(src io.Reader, charset string, n int) (string, bool) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		rng := mrand.New(mrand.NewPCG(uint64(time.Now().UnixNano()), uint64(os.Getpid())))
		for i := range buf {
			buf[i] = charset[rng.IntN(len(charset))]
		}
		return string(buf), false
	}
	for i := range buf {
		buf[i] = charset[int(buf[i])%len(charset)]
	}
	return string(buf), true
}

// generatePassword returns a PasswordLength alphanumeric password
func generatePassword() (string, bool) {
	return randomString(rand.Reader, passwordCharset, PasswordLength)
}

// generateSalt returns a SaltLength crypt salt (without the $6$ prefix)
func generateSalt() (string, bool) {
	return randomString(rand.Reader, saltCharset, SaltLength)
}
