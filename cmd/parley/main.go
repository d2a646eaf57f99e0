package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parley-chat/parley/pkg/chatsync"
	"github.com/parley-chat/parley/pkg/chatsync/api"
)

var (
	flagConfig   string
	flagAPIURL   string
	flagWSURL    string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Headless messaging client built on the chatsync engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return setupLogging()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and log roster, timeline and presence updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, eng *chatsync.Engine) error {
			log.Info().Int("chats", len(eng.Roster().Chats())).Msg("connected, watching for updates")
			<-ctx.Done()
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one message to a chat and wait for confirmation",
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, _ := cmd.Flags().GetString("chat")
		text, _ := cmd.Flags().GetString("text")
		if chatID == "" || text == "" {
			return errors.New("both --chat and --text are required")
		}
		return withEngine(cmd.Context(), func(ctx context.Context, eng *chatsync.Engine) error {
			if err := eng.SelectChat(ctx, chatID); err != nil {
				return err
			}
			msg, err := eng.SendMessage(ctx, text)
			if err != nil {
				return err
			}
			log.Info().Str("message_id", msg.ID).Str("chat_id", chatID).Msg("message confirmed")
			return nil
		})
	},
}

func setupLogging() error {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return err
	}
	levelStr := cfg.LogLevel
	if flagLogLevel != "" {
		levelStr = flagLogLevel
	}
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", levelStr)
	}
	zerolog.SetGlobalLevel(level)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return nil
}

// withEngine builds the backend client, the websocket transport and the
// engine, starts everything, runs fn, and tears down on signal or
// completion.
func withEngine(parent context.Context, fn func(ctx context.Context, eng *chatsync.Engine) error) error {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagAPIURL != "" {
		cfg.APIURL = flagAPIURL
	}
	if flagWSURL != "" {
		cfg.WSURL = flagWSURL
	}

	header := http.Header{}
	if cfg.SessionToken != "" {
		header.Set("Authorization", "Bearer "+cfg.SessionToken)
	}

	backend, err := api.New(api.Config{BaseURL: cfg.APIURL, Header: header})
	if err != nil {
		return err
	}
	transport, err := chatsync.NewWSTransport(chatsync.WSTransportConfig{URL: cfg.WSURL, Header: header})
	if err != nil {
		return err
	}
	eng, err := chatsync.NewEngine(chatsync.EngineConfig{Backend: backend, Transport: transport})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		_ = eng.Close()
		return err
	}
	defer func() { _ = eng.Close() }()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, topic := range []string{chatsync.TopicRoster, chatsync.TopicTimeline, chatsync.TopicPresence} {
		eg.Go(logUpdates(egCtx, eng, topic))
	}
	eg.Go(func() error { return fn(egCtx, eng) })

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logUpdates drains one notification topic and logs each store update.
func logUpdates(ctx context.Context, eng *chatsync.Engine, topic string) func() error {
	return func() error {
		ch, err := eng.Notifier().Updates(ctx, topic)
		if err != nil {
			return errors.Wrapf(err, "subscribe %s", topic)
		}
		for msg := range ch {
			u, err := chatsync.DecodeUpdate(msg)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("undecodable store update")
				continue
			}
			log.Info().Str("topic", topic).Str("reason", u.Reason).Str("chat_id", u.ChatID).Msg("store update")
		}
		return nil
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "backend API base URL")
	rootCmd.PersistentFlags().StringVar(&flagWSURL, "ws-url", "", "backend websocket URL")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "zerolog level (trace..error)")

	sendCmd.Flags().String("chat", "", "chat id to send into")
	sendCmd.Flags().String("text", "", "message text")

	rootCmd.AddCommand(watchCmd, sendCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("parley failed")
	}
}
