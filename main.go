package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/jonashiltl/captcha-solver/internal/config"
	"github.com/jonashiltl/captcha-solver/internal/consumer"
	"github.com/jonashiltl/captcha-solver/internal/nocaptcha"
	"github.com/jonashiltl/captcha-solver/internal/proxy"
	"github.com/jonashiltl/captcha-solver/internal/runner"
	"github.com/jonashiltl/captcha-solver/internal/storage"
	"github.com/spf13/cobra"
)

var (
	apiKey string
	apiURL string
	cfg    config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "captcha-solver",
		Short: "Solve hCaptcha image challenges with nocaptchaai",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if apiKey != "" {
				cfg.Key = apiKey
			}
			if apiURL != "" {
				cfg.URL = apiURL
			}
			setDefaultLogger(&cfg)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "K", "", "API key (or set API_KEY env var)")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "U", "", "Solve endpoint (or set API_URL env var)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSolveCmd())
	rootCmd.AddCommand(newBalanceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Solve the captcha of every queued page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, err := createClient(&cfg)
			if err != nil {
				return err
			}

			consumer, err := createConsumer(&cfg)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}
			defer consumer.Close()

			storage, err := createStorage(&cfg)
			if err != nil {
				return fmt.Errorf("failed to create storage: %w", err)
			}
			defer storage.Close()

			run, err := runner.NewRunner(ctx, runnerOptions(&cfg, client, consumer, storage, cancel))
			if err != nil {
				return fmt.Errorf("failed to create runner: %w", err)
			}
			defer run.Close()

			errCh := make(chan error, 1)
			go func() {
				errCh <- run.Start()
			}()

			select {
			case <-ctx.Done():
				slog.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("exited with error", internal.ErrAttr(err))
					return err
				}
			}
			return nil
		},
	}
}

func newSolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve <url>",
		Short: "Open a page and solve its captcha",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, err := createClient(&cfg)
			if err != nil {
				return err
			}

			consumer, err := createConsumer(&cfg)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}
			defer consumer.Close()

			run, err := runner.NewRunner(ctx, runnerOptions(&cfg, client, consumer, nil, cancel))
			if err != nil {
				return fmt.Errorf("failed to create runner: %w", err)
			}
			defer run.Close()

			solved, err := run.SolveURL(args[0])
			if err != nil {
				return err
			}
			if !solved {
				return runner.ErrNoBalance
			}
			slog.Info("captcha solved", slog.String("url", args[0]))
			return nil
		},
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the quota left on the API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient(&cfg)
			if err != nil {
				return err
			}

			balance, err := client.Balance(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get balance: %w", err)
			}
			out, _ := json.MarshalIndent(balance, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func createClient(cfg *config.Config) (*nocaptcha.Client, error) {
	client, err := nocaptcha.New(cfg.Key, cfg.URL,
		nocaptcha.WithPollInterval(cfg.APIPollInterval),
		nocaptcha.WithPollTimeout(cfg.APIPollTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create solving client: %w", err)
	}
	return client, nil
}

func runnerOptions(cfg *config.Config, client *nocaptcha.Client, consumer consumer.Consumer, storage storage.Storage, cancel context.CancelFunc) runner.Options {
	return runner.Options{
		Client:   client,
		Consumer: consumer,
		Storage:  storage,
		Proxies: proxy.NewProxyManager(proxy.Options{
			Proxies:  cfg.Proxies,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPW,
		}),
		SeedURLs:            cfg.SeedURLs,
		PollInterval:        cfg.PollInterval,
		Workers:             cfg.Workers,
		MaxRounds:           cfg.MaxRounds,
		SolveTimeout:        cfg.SolveTimeout,
		Headless:            cfg.Headless,
		PlaywrightDriverDir: cfg.PlaywrightDriverDir,
		Cancel:              cancel,
	}
}

func createConsumer(cfg *config.Config) (consumer.Consumer, error) {
	if len(cfg.OpensearchAddresses) > 0 {
		return consumer.NewOpensearchConsumer(
			consumer.WithAddresses(cfg.OpensearchAddresses),
			consumer.WithUsername(cfg.OpensearchUsername),
			consumer.WithPassword(cfg.OpensearchPassword),
			consumer.TrustTLS(),
		)
	}

	slog.Info("printing round reports to stdout")
	return consumer.NewStdoutConsumer(), nil
}

func createStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.PostgresURL != "" {
		return storage.NewPGStorage(storage.PGOptions{
			DatabaseURL: cfg.PostgresURL,
		})
	}

	slog.Info("queueing pages in memory")
	return storage.NewMemoryStorage(), nil
}

func setDefaultLogger(cfg *config.Config) {
	level := cfg.LogLevel.ToSlog()
	logger := internal.SetDefaultLogger(level, cfg.LogFile)
	logger.Info(fmt.Sprintf("using log level %s", level))
}
