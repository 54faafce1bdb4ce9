// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/chatlink/chat/discord"
	"github.com/hashicorp/chatlink/config"
	"github.com/hashicorp/chatlink/csrf"
	"github.com/hashicorp/chatlink/linking"
	"github.com/hashicorp/chatlink/linkstore"
	"github.com/hashicorp/chatlink/oidc"
	"github.com/hashicorp/chatlink/server"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ErrStartupFailure is returned when chatlink can't be wired together.
var ErrStartupFailure = errors.New("startup failure")

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot and the http server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const op = "serve"
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("%s: %s: %w", op, err, ErrStartupFailure)
			}
			logger := cfg.Logger(cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			return a.run(ctx)
		},
	}
}

// app is a fully wired chatlink.
type app struct {
	logger   hclog.Logger
	store    *linkstore.MemoryStore
	bot      *discord.Bot
	provider *oidc.Provider
	server   *server.Server
}

func newApp(cfg *config.Config, logger hclog.Logger) (*app, error) {
	const op = "newApp"
	startupErr := func(err error) error {
		return fmt.Errorf("%s: %s: %w", op, err, ErrStartupFailure)
	}

	store := linkstore.NewMemoryStore(
		linkstore.WithTTL(cfg.Server.LinkTTL),
		linkstore.WithLogger(logger.Named("linkstore")),
	)
	commands, err := linking.NewCommandHandler(store, cfg.Server.BaseURL,
		linking.WithLogger(logger.Named("command")),
	)
	if err != nil {
		return nil, startupErr(err)
	}
	bot, err := discord.NewBot(cfg.Discord.BotToken, cfg.Discord.ApplicationID, commands,
		discord.WithGuildID(cfg.Discord.GuildID),
		discord.WithCommandName(cfg.Discord.CommandName),
		discord.WithRemoveCommandOnShutdown(cfg.Discord.RemoveCommandOnShutdown),
		discord.WithLogger(logger.Named("discord")),
	)
	if err != nil {
		return nil, startupErr(err)
	}

	pc, err := cfg.ProviderConfig()
	if err != nil {
		return nil, startupErr(err)
	}
	provider, err := oidc.NewProvider(pc)
	if err != nil {
		return nil, startupErr(err)
	}
	guard, err := csrf.NewGuard([]byte(cfg.Server.CookieSecret), csrf.WithSecure(cfg.Server.Production))
	if err != nil {
		provider.Done()
		return nil, startupErr(err)
	}
	resolver, err := linking.NewResolver(store, guard, provider, bot,
		linking.WithLogger(logger.Named("resolver")),
		linking.WithExchangeTimeout(cfg.OIDC.RequestTimeout),
		linking.WithDeliveryTimeout(cfg.Server.DeliveryTimeout),
	)
	if err != nil {
		provider.Done()
		return nil, startupErr(err)
	}
	srv, err := server.New(cfg.Server.ListenAddr, resolver,
		server.WithLogger(logger.Named("http")),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)
	if err != nil {
		provider.Done()
		return nil, startupErr(err)
	}
	return &app{
		logger:   logger,
		store:    store,
		bot:      bot,
		provider: provider,
		server:   srv,
	}, nil
}

// run serves until ctx is done or a component fails, then stops everything.
func (a *app) run(ctx context.Context) error {
	defer a.provider.Done()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.store.Start()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.store.Stop()
		return nil
	})
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	g.Go(func() error {
		return a.bot.Run(ctx)
	})
	a.logger.Info("chatlink started", "version", version)
	if err := g.Wait(); err != nil {
		a.logger.Error("chatlink stopped", "error", err)
		return err
	}
	a.logger.Info("chatlink stopped")
	return nil
}
