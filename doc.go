// Package initd implements the process supervisor used as the entrypoint
// of the mqbase appliance container. It runs as PID 1 and owns three
// subordinate processes: nginx (reverse proxy and static server), sqld
// (HTTP-fronted embedded database server), and mosquitto (MQTT broker).
//
// Startup proceeds in a fixed order. Credentials for the two auth domains
// (MQTT login, HTTP basic auth) are resolved from layered sources, the
// on-disk secret artifacts the services consume are written, required
// directories and files are prepared, and the three processes are
// launched with a settling delay after sqld so its database layout exists
// before mosquitto opens the same files.
//
//	sup := initd.New()
//	if err := sup.Run(context.Background()); err != nil {
//	    os.Exit(1)
//	}
//
// # Credential resolution
//
// Each domain is resolved independently through three tiers, highest
// priority first:
//
//   - environment variable (MQBASE_MQTT_USER / MQBASE_USER), value
//     formatted user:pass
//   - mounted secrets file (/mosquitto/config/secrets.conf), KEY=VALUE
//     lines with the same two keys
//   - auto-generation, with the password printed to the diagnostic
//     stream so the operator can capture it at first boot
//
// A value without a ":" separator is treated as absent and falls through
// to the next tier.
//
// # Supervision
//
// There is no restart policy. The first subordinate to exit, for any
// reason, brings the whole session down: every remaining child is sent
// SIGTERM and reaped, then the supervisor itself exits. SIGTERM or SIGINT
// delivered to the supervisor triggers the same coordinated shutdown. A
// crashed session is restarted by the container orchestrator, not from
// inside.
package initd
