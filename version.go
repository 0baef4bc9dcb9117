package initd

// Version is the current version of the mqbase-init supervisor
const Version = "1.0.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Pipeline describes the supervised process pipeline
	Pipeline string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:  Version,
		Pipeline: "nginx/sqld/mosquitto",
	}
}
