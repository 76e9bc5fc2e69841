package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/guarzo/mystuff/common"
	"github.com/guarzo/mystuff/common/config"
	"github.com/guarzo/mystuff/common/logging"
	"github.com/guarzo/mystuff/modules/api"
	"github.com/guarzo/mystuff/modules/mystuff"
	"github.com/guarzo/mystuff/modules/oauth"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	envFile := flag.String("env", ".env", "optional .env file loaded before the configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config '%s': %v\n", *configPath, err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Error().Err(err).Msg("mystuff failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	provider := oauth.NewProvider(oauth.Settings{
		TokenURL:     cfg.Auth.TokenURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Scopes:       cfg.Auth.Scopes,
		RefreshToken: cfg.Auth.RefreshToken,
	})
	sink := common.LogEventSink{Logger: logging.Component("events")}

	factory, err := api.NewFactory(*cfg, provider, sink, common.NewCacheStore())
	if err != nil {
		return err
	}
	defer factory.Close()

	log.Info().Str("backend", factory.BaseURL()).Msg("listing items")

	items, err := mystuff.NewItemService(factory.NewClient()).ListItems(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		lastUsed := "never"
		if !item.LastUsed.IsZero() {
			lastUsed = item.LastUsed.Format("2006-01-02")
		}
		fmt.Fprintf(out, "%5d  %-30s x%-4d %-20s %s\n", item.ID, item.Name, item.Amount, item.Location, lastUsed)
	}
	return nil
}
