// pagerelay - Facebook Messenger webhook to message-bus relay
// License: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pagerelay/pkg/bus"
	"pagerelay/pkg/channels"
	"pagerelay/pkg/config"
	"pagerelay/pkg/gateway"
	"pagerelay/pkg/logger"
	"pagerelay/pkg/messenger"
	"pagerelay/pkg/utils"
)

var (
	version   = "dev"
	gitCommit string
)

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("pagerelay %s\n", formatVersion())
}

func printHelp() {
	fmt.Println(`Usage: pagerelay [command]

Commands:
  run       Start the webhook relay (default)
  version   Print version information
  help      Show this help message

Configuration is read from the environment (and .env if present):
  MESSENGER_ACCESS_TOKEN    Page access token (required)
  MESSENGER_PAGE_ID         Page id (required)
  MESSENGER_VERIFY_TOKEN    Webhook verify token (required)
  MESSENGER_API_VERSION     Graph API version (default v19.0)
  MESSENGER_PORT            Webhook port (default 3000)
  MESSENGER_MEDIA_DIR       Directory for saved media (default temp dir)
  PAGERELAY_LOG_LEVEL       debug|info|warn|error (default info)`)
}

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "run":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "pagerelay: %v\n", err)
			os.Exit(1)
		}
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printHelp()
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; deployments can use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	b := bus.NewMessageBus()
	defer b.Close()

	channel, err := channels.NewMessengerChannel(cfg, b)
	if err != nil {
		return err
	}

	// Stand-in consumer until a real bot embeds the bus: log every
	// canonical event as it arrives.
	b.RegisterHandler(messenger.ChannelName, func(evt bus.MessageEvent) error {
		logger.InfoCF("main", "Message event", map[string]interface{}{
			"message_id": evt.MessageID,
			"from":       evt.From,
			"body":       utils.Truncate(evt.Body, 80),
		})
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := channel.Start(ctx); err != nil {
		return err
	}

	relay := gateway.NewRelay(b, channel)
	go func() {
		if err := relay.Run(ctx); err != nil {
			logger.ErrorCF("main", "Relay stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	logger.InfoCF("main", "pagerelay running", map[string]interface{}{
		"version": formatVersion(),
		"port":    cfg.Port,
	})

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return channel.Stop(shutdownCtx)
}
