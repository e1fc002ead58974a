package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvidales/codbot/internal/core"
	"github.com/dvidales/codbot/internal/gateway"
	"github.com/dvidales/codbot/internal/logger"
	"github.com/dvidales/codbot/internal/stats"
	"github.com/dvidales/codbot/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the codbot polling loop",
		Long:  "Start the codbot main process: poll Telegram for updates and dispatch commands and feeds",
		Run: func(cmd *cobra.Command, args []string) {
			config, err := core.LoadConfig(configFile)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			fmt.Printf("Starting codbot with config: %s\n", configFile)
			fmt.Printf("Poll timeout: %ds\n", config.Telegram.PollTimeoutSeconds)

			logConfig := logger.Config{
				Level:        config.Logging.Level,
				File:         config.Logging.File,
				MaxSize:      config.Logging.MaxSize,
				MaxBackups:   config.Logging.MaxBackups,
				MaxAge:       config.Logging.MaxAge,
				Compress:     config.Logging.Compress,
				EnableStdout: config.Logging.EnableStdout,
			}
			if err := logger.InitLogger(logConfig); err != nil {
				log.Fatalf("Failed to initialize logger: %v", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"log_level":   config.Logging.Level,
			}).Info("logger-initialized")

			accounts, err := store.Open(config.Database.DSN)
			if err != nil {
				log.Fatalf("Failed to open account store: %v", err)
			}

			// Seed the bootstrap account so the bot is usable before anyone
			// signs up.
			if _, err := accounts.EnsureAccount(config.Cod.User, config.Cod.Password, 0, 0); err != nil {
				log.Fatalf("Failed to ensure bootstrap account: %v", err)
			}

			gw, err := gateway.New(config.Telegram.Token)
			if err != nil {
				log.Fatalf("Failed to connect to Telegram: %v", err)
			}

			statsFactory := func(user, password string) (core.StatsClient, error) {
				client, err := stats.NewClient(user, password)
				if err != nil {
					return nil, err
				}
				if err := client.Login(context.Background()); err != nil {
					return nil, err
				}
				return client, nil
			}

			mux := core.NewMultiplexer(gw, accounts, statsFactory)
			engine := core.NewEngine(gw, mux, config.Telegram.PollTimeoutSeconds, config.Telegram.WebhookURL)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			engineErrChan := make(chan error, 1)
			go func() {
				fmt.Println("codbot engine starting, press Ctrl+C to stop")
				engineErrChan <- engine.Run(ctx)
			}()

			select {
			case sig := <-sigChan:
				log.Printf("Received signal: %v, shutting down gracefully...", sig)
				cancel()
				<-engineErrChan
			case err := <-engineErrChan:
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Fatalf("Engine error: %v", err)
				}
			}

			log.Println("codbot stopped")
		},
	}
)

func init() {
	startCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
}
