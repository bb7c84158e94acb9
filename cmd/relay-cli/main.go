package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/relayclient"
	pkglog "github.com/weiawesome/emergency-chat-relay/pkg/log"
)

func main() {
	_ = godotenv.Load()

	server := flag.StringP("server", "s", envOr("RELAY_URL", "http://localhost:5000"), "relay base URL")
	emergencyID := flag.StringP("emergency", "e", os.Getenv("EMERGENCY_ID"), "emergency channel to join")
	userID := flag.StringP("user", "u", os.Getenv("USER_ID"), "participant id")
	role := flag.StringP("role", "r", string(domain.SenderPatient), "sender type: patient or doctor")
	to := flag.StringP("to", "t", "", "receiver id attached to every message")
	reconnect := flag.Duration("reconnect", relayclient.DefaultReconnectDelay, "delay before reconnecting")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	pkglog.Init(pkglog.Config{Level: *logLevel, Pretty: true, ServiceName: "relay-cli"})
	logger := pkglog.L()

	senderType := domain.SenderType(strings.ToLower(*role))
	if !senderType.Valid() {
		logger.Fatal().Str("role", *role).Msg("role must be patient or doctor")
	}
	if strings.TrimSpace(*to) == "" {
		logger.Fatal().Msg("--to is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	cfg := relayclient.Config{
		ServerURL:      *server,
		EmergencyID:    *emergencyID,
		UserID:         *userID,
		ReconnectDelay: *reconnect,
	}
	if err := run(ctx, cfg, *to, senderType, lines, os.Stdout, os.Stderr); err != nil {
		logger.Fatal().Err(err).Msg("relay session failed")
	}
}

// run joins the emergency and sends every input line to `to` until ctx ends,
// lines is closed or the relay ends the session with a terminal close.
func run(ctx context.Context, cfg relayclient.Config, to string, senderType domain.SenderType,
	lines <-chan string, stdout, stderr io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg.OnMessage = func(m domain.DeliveredMessage) { printMessage(stdout, m) }
	cfg.OnError = func(err error) {
		var serverErr *relayclient.ServerError
		if errors.As(err, &serverErr) {
			fmt.Fprintf(stderr, "! %s\n", serverErr.Message)
			return
		}
		fmt.Fprintf(stderr, "! %v\n", err)
	}
	cfg.OnStateChange = func(s relayclient.State) {
		fmt.Fprintf(stderr, "* %s\n", s)
		// Replaced or rejected: nothing will reconnect, so stop waiting on
		// input.
		if s == relayclient.StateStopped {
			cancel()
		}
	}

	client := relayclient.New(cfg)
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer client.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if err := client.Send(to, senderType, line); err != nil {
				fmt.Fprintf(stderr, "! send failed: %v\n", err)
			}
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

func printMessage(w io.Writer, m domain.DeliveredMessage) {
	ts := m.Timestamp
	if t, err := time.Parse(domain.TimestampLayout, m.Timestamp); err == nil {
		ts = t.Local().Format("15:04:05")
	}
	fmt.Fprintf(w, "[%s] %s (%s): %s\n", ts, m.SenderID, m.SenderType, m.Message)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
