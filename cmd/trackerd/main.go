// Command trackerd runs the ADS-B/Mode S tracker service: it ingests
// Beast/SBS/raw feeds, maintains the shared aircraft registry, and serves
// traces, snapshots, and the gRPC stream apiserver publishes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/flightdeck/trackerd/internal/app"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/version"
)

var (
	serviceConfigFile = flag.String("config", "", "Path to JSON service topology config (listeners/connectors/dirs); defaults built in if unset")
	tuningConfigFile  = flag.String("tuning", "", "Path to JSON tracker tuning config; defaults built in if unset")
	debugAddr         = flag.String("debug-addr", "", "Override the debug/admin HTTP listen address")
	grpcAddr          = flag.String("grpc-addr", "", "Override the gRPC stream listen address")
	versionFlag       = flag.Bool("version", false, "Print version information and exit")
	versionShort      = flag.Bool("v", false, "Print version information and exit (shorthand)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *versionFlag || *versionShort {
		fmt.Printf("trackerd v%s (git SHA: %s)\n", version.Version, version.GitSHA)
		os.Exit(0)
	}

	cfg, err := loadServiceConfig(*serviceConfigFile)
	if err != nil {
		log.Fatalf("failed to load service config: %v", err)
	}
	if *debugAddr != "" {
		cfg.DebugAddr = *debugAddr
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}

	tuning, err := loadTuningConfig(*tuningConfigFile)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	log.Printf("trackerd v%s (git SHA: %s) starting", version.Version, version.GitSHA)

	a, err := app.New(cfg, tuning)
	if err != nil {
		log.Fatalf("failed to initialise app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("trackerd exited with error: %v", err)
	}
}

func loadServiceConfig(path string) (*config.ServiceConfig, error) {
	if path == "" {
		return config.DefaultServiceConfig(), nil
	}
	return config.LoadServiceConfig(path)
}

func loadTuningConfig(path string) (*config.TrackerConfig, error) {
	if path == "" {
		return config.DefaultTrackerConfig(), nil
	}
	return config.LoadTrackerConfig(path)
}
