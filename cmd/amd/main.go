// amd is the application-manager daemon (spec §4.9 / §6): it runs the
// Orchestrator's full bring-up sequence and then blocks until a fatal
// signal asks it to shut down, grounded on cmd/bblfshd/main.go's
// flag-driven bootstrap and graceful-shutdown idiom.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/appkit/amd/internal/orchestrator"
)

var (
	version = "undefined"

	configPath *string
	logLevel   *string
	logFormat  *string

	cmd *flag.FlagSet
)

func init() {
	cmd = flag.NewFlagSet("amd", flag.ExitOnError)
	configPath = cmd.String("config", "/opt/am/config.yaml", "path to the amd configuration file.")
	logLevel = cmd.String("log-level", "info", "log level: panic, fatal, error, warning, info, debug.")
	logFormat = cmd.String("log-format", "text", "format of the logs: text or json.")
	cmd.Parse(os.Args[1:])

	buildLogger()
}

func buildLogger() {
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Errorf("invalid log level %q: %s", *logLevel, err)
		os.Exit(1)
	}
	logrus.SetLevel(level)

	if *logFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{})
	}
}

func main() {
	logrus.Infof("amd version: %s", version)

	o, err := orchestrator.Start(*configPath)
	if err != nil {
		logrus.Errorf("error starting orchestrator: %s", err)
		os.Exit(1)
	}

	handleGracefullyShutdown(o)
	select {}
}

func handleGracefullyShutdown(o *orchestrator.Orchestrator) {
	gracefulStop := make(chan os.Signal, 1)
	signal.Notify(gracefulStop, syscall.SIGTERM)
	signal.Notify(gracefulStop, syscall.SIGINT)
	go func() {
		sig := <-gracefulStop
		logrus.Warningf("signal received %+v", sig)
		logrus.Warning("shutting down")
		o.Shutdown()
		os.Exit(0)
	}()
}
