// Command tailbot runs the sports tail-end trading bot. It loads and
// validates configuration, wires dependencies and runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/tailbot/internal/app"
	"github.com/alanyoungcy/tailbot/internal/config"
	"github.com/alanyoungcy/tailbot/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	sealTo := flag.String("seal-keystore", "", "encrypt wallet.private_key with wallet.keystore_password into this file and exit")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if *sealTo != "" {
		if err := sealKeystore(*sealTo, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "seal keystore: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("tailbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("config", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	err = application.Run(ctx)
	application.Close()
	if err != nil {
		logger.Error("tailbot exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("tailbot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func sealKeystore(path string, cfg *config.Config) error {
	if cfg.Wallet.PrivateKey == "" || cfg.Wallet.KeystorePassword == "" {
		return fmt.Errorf("wallet.private_key and wallet.keystore_password must both be set")
	}
	if err := crypto.WriteKeystore(path, cfg.Wallet.PrivateKey, cfg.Wallet.KeystorePassword); err != nil {
		return err
	}
	signer, err := crypto.NewSigner(cfg.Wallet.PrivateKey, cfg.Polymarket.ChainID)
	if err != nil {
		return err
	}
	fmt.Printf("keystore written to %s for %s\n", path, signer.Address().Hex())
	return nil
}
