package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gamemaster/internal"
	"gamemaster/internal/ai"
	"gamemaster/internal/api"
	"gamemaster/internal/bot"
	"gamemaster/internal/initialization"
	"gamemaster/internal/logger"
	"gamemaster/internal/security"
)

func main() {
	// Create a cancellable context to manage shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Infof("Shutdown signal received, exiting...")
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		logger.CloseLogFile()
		os.Exit(1)
	}
	logger.CloseLogFile()
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "gamemaster",
		Short:         "An AI Game Master for role-playing campaigns",
		Version:       internal.APP_VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.HiddenDefaultCmd = true
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file (default $CONFIG_PATH or "+internal.DEFAULT_CONFIG_PATH+")")

	root.AddCommand(
		newServeCommand(&configPath),
		newAskCommand(&configPath),
		newHashTokenCommand(),
	)
	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, and the IRC front end when configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := initialization.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			app, err := initialization.Initialize(ctx, cfg)
			if err != nil {
				return err
			}

			server := api.New(app.Driver, app.Client, app.Roles, app.Persona, api.Options{
				Address:   cfg.HTTP.Address,
				TokenHash: cfg.APITokenHash,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx)
			})
			if cfg.IRCEnabled() {
				transcript := logger.NewTranscript(filepath.Join(cfg.LogDir, "campaigns"))
				defer transcript.Close()

				g.Go(func() error {
					return bot.New(cfg.IRC, app.Driver, transcript).Run(gctx)
				})
			}
			return g.Wait()
		},
	}
}

func newAskCommand(configPath *string) *cobra.Command {
	var threadID string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message to the Game Master and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := initialization.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			app, err := initialization.Initialize(ctx, cfg)
			if err != nil {
				return err
			}

			msg := strings.Join(args, " ")
			var reply ai.Reply
			if threadID != "" {
				reply, err = app.Driver.Continue(ctx, threadID, msg)
			} else {
				reply, err = app.Driver.Ask(ctx, msg)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), reply.Message)
			logger.Infof("Thread: %s", reply.ThreadID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "continue an existing thread instead of starting a new one")
	return cmd
}

func newHashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the argon2id hash to use as api_token_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := security.GenerateHash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
