// Command worker is the HTTP responder run by the OS service manager
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/pflag"
	"github.com/stone-age-io/svcctl/internal/config"
	"github.com/stone-age-io/svcctl/internal/lifecycle"
	"github.com/stone-age-io/svcctl/internal/logging"
	"github.com/stone-age-io/svcctl/internal/worker"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	fs := pflag.NewFlagSet("worker", pflag.ExitOnError)
	configPath := fs.String("config", config.GetDefaultConfigPath(), "path to configuration file")
	fs.Int("port", 0, "port to listen on (overrides PORT and the config file)")
	fs.String("level", "", "log level (debug, info, warn, error)")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}

	var console io.Writer
	if service.Interactive() {
		console = os.Stdout
	}

	logger, logFile, err := logging.NewWorker(cfg.Worker.LogFile, cfg.Logging, console)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting worker",
		zap.String("version", version),
		zap.String("service", cfg.Service.Name),
		zap.String("config", cfg.Path))

	daemon := worker.New(worker.OptionsFromConfig(cfg), logger)
	program := worker.NewProgram(daemon, logger, func(code int) {
		_ = logFile.Close()
		os.Exit(code)
	})

	svc, err := service.New(program, lifecycle.DescriptorFromConfig(cfg).ServiceConfig())
	if err != nil {
		logger.Error("Failed to create service", zap.Error(err))
		_ = logFile.Close()
		os.Exit(1)
	}

	if err := svc.Run(); err != nil {
		logger.Error("Worker exited with error", zap.Error(err))
		_ = logger.Sync()
		_ = logFile.Close()
		os.Exit(1)
	}

	logger.Info("Exiting process", zap.Int("exit_code", 0))
	_ = logger.Sync()
	_ = logFile.Close()
}
