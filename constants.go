package initd

import (
	"io/fs"
	"time"
)

// Environment variable names for the two credential domains. Values are
// formatted user:pass; the same keys are recognized in the mounted
// secrets file.
const (
	// EnvHTTPCredentials configures HTTP basic auth for the admin interface
	EnvHTTPCredentials = "MQBASE_USER"
	// EnvMQTTCredentials configures the MQTT broker login
	EnvMQTTCredentials = "MQBASE_MQTT_USER"
	// EnvLogSources enables credential-source logging for environment-sourced
	// credentials (the non-distroless image sets this)
	EnvLogSources = "MQBASE_LOG_SOURCES"
)

// Branding environment variables consumed by the app-config artifact.
// Lowercase names are part of the container interface.
const (
	EnvAppVersion = "version"
	EnvAppTitle   = "title"
	EnvAppLogo    = "logo"
	EnvAppFavicon = "favicon"
)

// Fixed filesystem paths of the appliance
const (
	// DefaultSecretsPath is the mounted secrets file (optional)
	DefaultSecretsPath = "/mosquitto/config/secrets.conf"

	// DefaultMQTTCredentialsPath receives the broker-credential JSON blob
	// consumed by the browser client
	DefaultMQTTCredentialsPath = "/tmp/mqtt-credentials.json"

	// DefaultHtpasswdPath receives the HTTP basic auth password file
	DefaultHtpasswdPath = "/tmp/htpasswd"

	// DefaultAppConfigPath receives the branding/app-config JSON blob
	DefaultAppConfigPath = "/tmp/app-config.json"

	// DefaultDynsecSourcePath is the read-only access-control database
	// baked into the image
	DefaultDynsecSourcePath = "/mosquitto/config/dynsec.json"

	// DefaultDynsecSeedPath is the writable location the access-control
	// database is seeded into on first boot (never overwritten)
	DefaultDynsecSeedPath = "/mosquitto/data/dynsec.json"

	// DefaultBrokerLogPath is the mosquitto log file, which must exist
	// and be world-writable before the broker starts unprivileged
	DefaultBrokerLogPath = "/mosquitto/log/mosquitto.log"
)

// prepDirs are created (best effort) before any subordinate starts.
// Order matters: parents precede children.
var prepDirs = []string{
	"/var/log/nginx",
	"/run",
	"/tmp/nginx_client_body",
	"/tmp/nginx_proxy",
	"/mosquitto/data",
	"/mosquitto/data/dbs",
	"/mosquitto/data/dbs/default",
	"/mosquitto/data/metastore",
	"/mosquitto/log",
}

// relaxDirs are re-chmodded even when they already exist, since the
// image may ship them read-only
var relaxDirs = []string{
	"/mosquitto/data",
	"/mosquitto/log",
}

// sqldDataFiles are the database files sqld creates under its data
// directory. They are made world-read-write after the settling delay so
// mosquitto, running as nobody, can open them concurrently.
var sqldDataFiles = []string{
	"/mosquitto/data/dbs/default/data",
	"/mosquitto/data/dbs/default/data-shm",
	"/mosquitto/data/dbs/default/data-wal",
	"/mosquitto/data/dbs/default/.sentinel",
	"/mosquitto/data/dbs/default/stats.json",
	"/mosquitto/data/dbs/default/wallog",
}

// Credential generation parameters
const (
	// DefaultUsername is used when a domain's credentials are auto-generated
	DefaultUsername = "admin"

	// PasswordLength is the length of auto-generated passwords
	PasswordLength = 16

	// SaltLength is the length of the SHA-512-crypt salt
	SaltLength = 16

	// passwordCharset is the alphabet for generated passwords
	passwordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// saltCharset is the alphabet for crypt salts
	saltCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789./"
)

// Supervisor timing defaults
const (
	// DefaultSettleDelay is the pause after starting sqld, before its
	// data files are relaxed and mosquitto is started
	DefaultSettleDelay = 2 * time.Second

	// DefaultReadyTimeout bounds the wait for sqld's on-disk layout
	// after the settling delay
	DefaultReadyTimeout = 10 * time.Second

	// DefaultPollInterval is the monitoring loop cadence
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultKillTimeout is how long shutdown waits for a SIGTERM'd
	// child before escalating to SIGKILL
	DefaultKillTimeout = 10 * time.Second
)

// File modes
const (
	// DirMode is the permission for prepared directories; subordinates
	// run under a different, less-privileged identity
	DirMode fs.FileMode = 0o777

	// SharedFileMode is the permission for files shared across
	// differently-privileged processes
	SharedFileMode fs.FileMode = 0o666

	// ArtifactMode is the permission for materialized secret artifacts
	ArtifactMode fs.FileMode = 0o644
)
