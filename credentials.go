package initd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Domain identifies one of the two independent authentication surfaces
type Domain int

// Credential domains
const (
	// DomainMQTT is the message-broker protocol login
	DomainMQTT Domain = iota
	// DomainHTTP is HTTP basic auth for the admin interface
	DomainHTTP
)

// EnvVar returns the well-known variable name for the domain. The same
// key is recognized in the mounted secrets file.
func (d Domain) EnvVar() string {
	if d == DomainMQTT {
		return EnvMQTTCredentials
	}
	return EnvHTTPCredentials
}

// Label returns the operator-facing name used in the warning banner
func (d Domain) Label() string {
	if d == DomainMQTT {
		return "MQTT"
	}
	return "HTTP Basic Auth"
}

// CredentialSource records which tier supplied a domain's credentials
type CredentialSource int

// Credential source tiers, lowest priority first
const (
	// SourceAutoGenerated means no operator-supplied value was found and
	// a random password was generated
	SourceAutoGenerated CredentialSource = iota
	// SourceMountedFile means the mounted secrets file supplied the value
	SourceMountedFile
	// SourceEnvironment means an environment variable supplied the value
	SourceEnvironment
)

// String returns the source name for logging
func (s CredentialSource) String() string {
	switch s {
	case SourceEnvironment:
		return "environment"
	case SourceMountedFile:
		return "mounted file"
	default:
		return "auto-generated"
	}
}

// CredentialPair is one username/password pair
type CredentialPair struct {
	Username string
	Password string
}

// ResolvedCredentials holds the effective pair for each domain plus the
// tier that supplied it. Built once at startup and immutable afterward;
// never persisted beyond the current run.
type ResolvedCredentials struct {
	MQTT       CredentialPair
	HTTP       CredentialPair
	MQTTSource CredentialSource
	HTTPSource CredentialSource
}

// Pair returns the effective pair for the given domain
func (r *ResolvedCredentials) Pair(d Domain) CredentialPair {
	if d == DomainMQTT {
		return r.MQTT
	}
	return r.HTTP
}

// Resolver determines effective credentials for both domains from the
// layered sources: environment, mounted secrets file, auto-generation.
type Resolver struct {
	// SecretsPath is the mounted secrets file location
	SecretsPath string

	// LookupEnv is the environment accessor (os.LookupEnv by default)
	LookupEnv func(string) (string, bool)

	// LogSources additionally logs environment-sourced credentials.
	// Off by default: the distroless image resolves env silently, and
	// log-inspection tests depend on the asymmetry.
	LogSources bool

	// Diag is the raw diagnostic stream for the warning banner and
	// source lines, whose exact wording is externally asserted
	Diag io.Writer

	// Log is the structured logger for everything else
	Log zerolog.Logger

	secretsLoaded bool
	secrets       map[string]string
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithSecretsPath sets the mounted secrets file location
func WithSecretsPath(path string) ResolverOption {
	return func(r *Resolver) {
		r.SecretsPath = path
	}
}

// WithLookupEnv sets the environment accessor
func WithLookupEnv(fn func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) {
		r.LookupEnv = fn
	}
}

// WithSourceLogging enables the "environment variables" source line for
// env-resolved domains (used by the non-distroless image)
func WithSourceLogging(on bool) ResolverOption {
	return func(r *Resolver) {
		r.LogSources = on
	}
}

// WithResolverDiagnostics sets the raw diagnostic stream
func WithResolverDiagnostics(w io.Writer) ResolverOption {
	return func(r *Resolver) {
		r.Diag = w
	}
}

// WithResolverLogger sets the structured logger
func WithResolverLogger(log zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.Log = log
	}
}

// NewResolver creates a Resolver with default settings
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		SecretsPath: DefaultSecretsPath,
		LookupEnv:   os.LookupEnv,
		Diag:        os.Stderr,
		Log:         NewLogger(os.Stderr, ""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the effective credentials for both domains. It never
// fails: the auto-generation tier always yields a usable pair.
func (r *Resolver) Resolve() *ResolvedCredentials {
	rc := &ResolvedCredentials{}
	rc.MQTT, rc.MQTTSource = r.resolveDomain(DomainMQTT)
	rc.HTTP, rc.HTTPSource = r.resolveDomain(DomainHTTP)
	return rc
}

// resolveDomain walks the tiers for a single domain. A present but
// malformed value (no ":") is treated as absent and falls through.
func (r *Resolver) resolveDomain(d Domain) (CredentialPair, CredentialSource) {
	if v, ok := r.LookupEnv(d.EnvVar()); ok {
		if user, pass, ok := splitCredential(v); ok {
			if r.LogSources {
				fmt.Fprintf(r.Diag, "%s: loaded from environment variables\n", d.EnvVar())
			}
			return CredentialPair{Username: user, Password: pass}, SourceEnvironment
		}
	}

	if v, ok := r.mountedValue(d); ok {
		if user, pass, ok := splitCredential(v); ok {
			fmt.Fprintf(r.Diag, "%s: loaded from mounted config (%s)\n", d.EnvVar(), r.SecretsPath)
			return CredentialPair{Username: user, Password: pass}, SourceMountedFile
		}
	}

	pass, secure := generatePassword()
	if !secure {
		r.Log.Warn().Msg("secure random source unavailable; generated password uses a time-seeded fallback")
	}
	r.printBanner(d, pass)
	return CredentialPair{Username: DefaultUsername, Password: pass}, SourceAutoGenerated
}

// mountedValue returns the raw secrets-file value for the domain. The
// file is read at most once per run; a missing or unreadable file is not
// an error and simply yields no values.
func (r *Resolver) mountedValue(d Domain) (string, bool) {
	if !r.secretsLoaded {
		r.secretsLoaded = true
		r.secrets = loadSecretsFile(r.SecretsPath)
	}
	v, ok := r.secrets[d.EnvVar()]
	return v, ok
}

// secretsParser parses the mounted KEY=VALUE secrets file for koanf.
// Only lines whose first non-blank character is '#' are comments;
// everything after the first '=' is the value, verbatim, so passwords
// may contain '#', spaces, or quotes. A dotenv parser would strip
// inline comments from unquoted values and truncate such passwords.
type secretsParser struct{}

// Unmarshal implements koanf.Parser
func (secretsParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if t := strings.TrimSpace(line); t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

// Marshal implements koanf.Parser. The secrets file is never written.
func (secretsParser) Marshal(map[string]interface{}) ([]byte, error) {
	return nil, errors.New("marshaling secrets is not supported")
}

// loadSecretsFile parses the mounted KEY=VALUE file. Blank lines and
// #-prefixed lines are ignored; the last occurrence of a key wins. Only
// the two credential keys are retained.
func loadSecretsFile(path string) map[string]string {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), secretsParser{}); err != nil {
		return nil
	}
	secrets := make(map[string]string, 2)
	for _, key := range []string{EnvMQTTCredentials, EnvHTTPCredentials} {
		if k.Exists(key) {
			secrets[key] = k.String(key)
		}
	}
	return secrets
}

// splitCredential splits a user:pass value on the first colon. ok is
// false when the value has no colon at all.
func splitCredential(v string) (user, pass string, ok bool) {
	user, pass, ok = strings.Cut(v, ":")
	return user, pass, ok
}

// printBanner emits the delimited auto-generation warning, password
// included in plaintext. The operator captures it from the container
// logs; at first boot there is no other channel.
func (r *Resolver) printBanner(d Domain, password string) {
	fmt.Fprintln(r.Diag, "==============================================")
	fmt.Fprintf(r.Diag, "WARNING: No %s credentials found!\n", d.EnvVar())
	fmt.Fprintf(r.Diag, "Auto-generated credentials for %s:\n", d.Label())
	fmt.Fprintf(r.Diag, "  Username: %s\n", DefaultUsername)
	fmt.Fprintf(r.Diag, "  Password: %s\n", password)
	fmt.Fprintln(r.Diag, "==============================================")
}
