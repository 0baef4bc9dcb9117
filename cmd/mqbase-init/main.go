// Command mqbase-init is the container entrypoint for the mqbase
// appliance. It resolves credentials, writes secret artifacts, prepares
// the filesystem, then launches and supervises nginx, sqld and
// mosquitto. The process exits 0 after a clean, signal-initiated
// shutdown and 1 when startup fails or a subordinate dies.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mqbase/initd"
)

func main() {
	var (
		logEnvSource = flag.Bool("log-env-source", false,
			"log a source line when credentials come from environment variables")
		logLevel = flag.String("log-level", "info", "log level: debug, info, warn, error")
		version  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		info := initd.GetVersion()
		fmt.Printf("mqbase-init %s (%s)\n", info.Version, info.Pipeline)
		return
	}

	// The non-distroless image flips this via environment instead of a flag.
	if os.Getenv(initd.EnvLogSources) == "1" {
		*logEnvSource = true
	}

	log := initd.NewLogger(os.Stderr, *logLevel)

	sup := initd.New(
		initd.WithResolver(initd.NewResolver(
			initd.WithSourceLogging(*logEnvSource),
			initd.WithResolverLogger(log),
		)),
		initd.WithMaterializer(initd.NewMaterializer(
			initd.WithMaterializerLogger(log),
		)),
		initd.WithPreparer(initd.NewPreparer(
			initd.WithPreparerLogger(log),
		)),
		initd.WithLogger(log),
	)

	if err := sup.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("supervisor terminated")
		os.Exit(1)
	}
}
