package initd

import (
	"os"

	"github.com/GehirnInc/crypt/sha512_crypt"
	json "github.com/goccy/go-json"
	"github.com/google/renameio/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// brokerCredentials is the JSON blob the browser-based MQTT client reads
type brokerCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// appConfig is the branding blob assembled from environment variables
type appConfig struct {
	Version string `json:"version"`
	Title   string `json:"title"`
	Logo    string `json:"logo"`
	Favicon string `json:"favicon"`
}

// Materializer writes resolved credentials into the on-disk artifacts
// the subordinate services expect. All three writes are atomic whole-file
// replacements; the artifacts are regenerated on every boot before any
// reader exists.
type Materializer struct {
	// MQTTCredentialsPath receives the broker-credential JSON blob
	MQTTCredentialsPath string
	// HtpasswdPath receives the HTTP basic auth password file
	HtpasswdPath string
	// AppConfigPath receives the branding JSON blob
	AppConfigPath string
	// Log is the structured logger
	Log zerolog.Logger
}

// MaterializerOption configures a Materializer
type MaterializerOption func(*Materializer)

// WithArtifactPaths overrides the three artifact locations
func WithArtifactPaths(mqttCredentials, htpasswd, appConfig string) MaterializerOption {
	return func(m *Materializer) {
		m.MQTTCredentialsPath = mqttCredentials
		m.HtpasswdPath = htpasswd
		m.AppConfigPath = appConfig
	}
}

// WithMaterializerLogger sets the structured logger
func WithMaterializerLogger(log zerolog.Logger) MaterializerOption {
	return func(m *Materializer) {
		m.Log = log
	}
}

// NewMaterializer creates a Materializer with the appliance's fixed paths
func NewMaterializer(opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		MQTTCredentialsPath: DefaultMQTTCredentialsPath,
		HtpasswdPath:        DefaultHtpasswdPath,
		AppConfigPath:       DefaultAppConfigPath,
		Log:                 NewLogger(os.Stderr, ""),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize writes all three artifacts. Any write failure is fatal to
// startup; a hashing failure is not (see htpasswdEntry).
func (m *Materializer) Materialize(creds *ResolvedCredentials) error {
	blob, err := json.Marshal(brokerCredentials{
		Username: creds.MQTT.Username,
		Password: creds.MQTT.Password,
	})
	if err != nil {
		return &OpError{Op: OpMaterialize, Path: m.MQTTCredentialsPath, Err: err}
	}
	if err := renameio.WriteFile(m.MQTTCredentialsPath, blob, ArtifactMode); err != nil {
		return &OpError{Op: OpMaterialize, Path: m.MQTTCredentialsPath, Err: err}
	}

	entry := m.htpasswdEntry(creds.HTTP)
	if err := renameio.WriteFile(m.HtpasswdPath, []byte(entry), ArtifactMode); err != nil {
		return &OpError{Op: OpMaterialize, Path: m.HtpasswdPath, Err: err}
	}

	blob, err = json.Marshal(m.brandingConfig())
	if err != nil {
		return &OpError{Op: OpMaterialize, Path: m.AppConfigPath, Err: err}
	}
	if err := renameio.WriteFile(m.AppConfigPath, blob, ArtifactMode); err != nil {
		return &OpError{Op: OpMaterialize, Path: m.AppConfigPath, Err: err}
	}

	return nil
}

// htpasswdEntry produces "user:hash\n" using SHA-512-crypt with a random
// salt. On hash failure it writes a {PLAIN}-prefixed entry instead;
// nginx does not support that scheme, so auth fails closed rather than
// the supervisor dying.
func (m *Materializer) htpasswdEntry(p CredentialPair) string {
	salt, secure := generateSalt()
	if !secure {
		m.Log.Warn().Msg("secure random source unavailable; crypt salt uses a time-seeded fallback")
	}
	hash, err := sha512_crypt.New().Generate([]byte(p.Password), []byte("$6$"+salt))
	if err != nil {
		m.Log.Error().Err(&OpError{Op: OpMaterialize, Path: m.HtpasswdPath, Err: ErrHashFailed}).
			Msg("writing fail-closed htpasswd entry")
		return p.Username + ":{PLAIN}" + p.Password + "\n"
	}
	return p.Username + ":" + hash + "\n"
}

// brandingConfig assembles the app-config blob from the four optional
// branding variables, each defaulting to the empty string.
func (m *Materializer) brandingConfig() appConfig {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		m.Log.Warn().Err(err).Msg("reading branding environment")
	}
	return appConfig{
		Version: k.String(EnvAppVersion),
		Title:   k.String(EnvAppTitle),
		Logo:    k.String(EnvAppLogo),
		Favicon: k.String(EnvAppFavicon),
	}
}
