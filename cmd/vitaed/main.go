// Command vitaed runs the vitae processing daemon in the foreground.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"vitae/internal/config"
	"vitae/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ~/.config/vitae/config.toml)")
	logLevel := flag.String("log-level", "", "override configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vitaed: load config: %v\n", err)
		os.Exit(1)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "vitaed: %v\n", err)
		os.Exit(1)
	}
}
