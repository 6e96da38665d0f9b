package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/3r0ha/morpheus-project/internal/backend"
	"github.com/3r0ha/morpheus-project/internal/bridge"
	"github.com/3r0ha/morpheus-project/internal/configutil"
	"github.com/3r0ha/morpheus-project/internal/dialogue"
	"github.com/3r0ha/morpheus-project/internal/healthcheck"
	"github.com/3r0ha/morpheus-project/internal/logutil"
	"github.com/3r0ha/morpheus-project/internal/pushchan"
	"github.com/3r0ha/morpheus-project/internal/session"
	"github.com/3r0ha/morpheus-project/internal/telegram"
)

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot and the backend push channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, ok := configutil.RequiredString(configutil.FlagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if !ok {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or %s_TELEGRAM_BOT_TOKEN)", envPrefix)
			}
			backendBase, ok := configutil.RequiredString(configutil.FlagOrViperString(cmd, "backend-base-url", "backend.base_url"))
			if !ok {
				return fmt.Errorf("missing backend.base_url (set via --backend-base-url or %s_BACKEND_BASE_URL)", envPrefix)
			}
			pushSecret, ok := configutil.RequiredString(configutil.FlagOrViperString(cmd, "push-secret", "push.secret"))
			if !ok {
				return fmt.Errorf("missing push.secret (set via --push-secret or %s_PUSH_SECRET)", envPrefix)
			}

			pushURL := strings.TrimSpace(configutil.FlagOrViperString(cmd, "push-url", "push.url"))
			if pushURL == "" {
				derived, err := derivePushURL(backendBase)
				if err != nil {
					return fmt.Errorf("derive push url from backend.base_url: %w", err)
				}
				pushURL = derived
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api := telegram.NewAPI(nil, configutil.FlagOrViperString(cmd, "telegram-base-url", "telegram.base_url"), token)
			me, err := api.GetMe(runCtx)
			if err != nil {
				return fmt.Errorf("telegram getMe: %w", err)
			}

			client, err := backend.New(backend.Options{
				BaseURL: backendBase,
				Logger:  logger,
			})
			if err != nil {
				return err
			}

			store := session.NewStore()
			handler, err := dialogue.NewHandler(dialogue.Options{
				Backend:   client,
				Responder: api,
				Store:     store,
				Logger:    logger,
				AppURL:    configutil.FlagOrViperString(cmd, "web-app-url", "web.app_url"),
			})
			if err != nil {
				return err
			}

			push, err := pushchan.New(pushchan.Options{
				URL:    pushURL,
				Secret: pushSecret,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			runtime, err := bridge.New(bridge.Options{
				Source:         api,
				Sender:         api,
				Handler:        handler,
				Push:           push,
				Logger:         logger,
				PollTimeout:    configutil.FlagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout"),
				MaxConcurrency: configutil.FlagOrViperInt(cmd, "max-concurrency", "bot.max_concurrency"),
			})
			if err != nil {
				return err
			}

			if listen, ok := configutil.RequiredString(configutil.FlagOrViperString(cmd, "health-listen", "health.listen")); ok {
				health, err := healthcheck.New(healthcheck.Options{
					Listen: listen,
					Push:   push,
					Logger: logger,
				})
				if err != nil {
					return err
				}
				go func() {
					if err := health.Run(runCtx); err != nil {
						logger.Warn("healthcheck_error", "error", err.Error())
					}
				}()
			}

			logger.Info("telegram_start",
				"bot_username", me.Username,
				"backend_base_url", backendBase,
				"push_url", pushURL,
			)
			return runtime.Run(runCtx)
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token (or set telegram.bot_token).")
	cmd.Flags().String("telegram-base-url", "", "Telegram API base URL override (tests/proxies).")
	cmd.Flags().String("backend-base-url", "", "Backend REST base URL (or set backend.base_url).")
	cmd.Flags().String("push-secret", "", "Shared secret for the push channel (or set push.secret).")
	cmd.Flags().String("push-url", "", "Push channel websocket URL (defaults to backend.base_url with ws scheme and /push).")
	cmd.Flags().String("web-app-url", "", "Login site offered to unregistered users.")
	cmd.Flags().String("health-listen", "", "Health endpoint listen address, e.g. :8081 (disabled when empty).")
	cmd.Flags().Duration("poll-timeout", 0, "Telegram long-poll window (defaults to 30s).")
	cmd.Flags().Int("max-concurrency", 0, "Max chats processed concurrently (defaults to 3).")

	return cmd
}

// derivePushURL maps the backend's http(s) base to the websocket endpoint it
// serves push events on.
func derivePushURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/push"
	return u.String(), nil
}
