package initd

import (
	"path/filepath"
	"testing"
)

// BenchmarkGeneratePassword measures credential auto-generation
func BenchmarkGeneratePassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, secure := generatePassword(); !secure {
			b.Fatal("secure random source unavailable")
		}
	}
}

// BenchmarkHtpasswdEntry measures the SHA-512-crypt hash that dominates
// materialization time
func BenchmarkHtpasswdEntry(b *testing.B) {
	m := NewMaterializer(WithArtifactPaths(
		filepath.Join(b.TempDir(), "mqtt-credentials.json"),
		filepath.Join(b.TempDir(), "htpasswd"),
		filepath.Join(b.TempDir(), "app-config.json"),
	))
	pair := CredentialPair{Username: "admin", Password: "benchpass1234567"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.htpasswdEntry(pair)
	}
}

// BenchmarkResolve measures full credential resolution with both
// domains supplied by the environment
func BenchmarkResolve(b *testing.B) {
	r := NewResolver(
		WithSecretsPath(filepath.Join(b.TempDir(), "secrets.conf")),
		WithLookupEnv(func(string) (string, bool) { return "user:pass", true }),
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Resolve()
	}
}
