package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"chatboard/models"
	"chatboard/pkg/client"

	"github.com/Netflix/go-env"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config is read from the environment; flags override it.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=http://localhost:5000"`
	Name      string `env:"CHAT_NAME"`
	NameFile  string `env:"CHAT_NAME_FILE"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatclient: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	flag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "chat board base URL")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "display name (remembered between runs)")
	flag.StringVar(&cfg.NameFile, "name-file", cfg.NameFile, "where the display name is remembered")
	flag.Parse()

	if cfg.NameFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return exitConfig, fmt.Errorf("locate config dir: %w", err)
		}
		cfg.NameFile = filepath.Join(dir, "chatboard", "name")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(cfg.ServerURL, nil)
	sub := client.NewWSSubscriber(wsURL(cfg.ServerURL), client.WithTicketSource(ticketSource(api)))

	var session *client.Session
	session = client.NewSession(api, sub, client.FileNameStore{Path: cfg.NameFile},
		client.WithOnAppend(func(m models.Message) { printMessage(session, m) }))
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		if client.IsTransport(err) {
			return exitRuntime, fmt.Errorf("%s: %w", client.ErrTextLoad, err)
		}
		return exitRuntime, err
	}
	if cfg.Name != "" {
		session.SetName(cfg.Name)
	}

	for _, m := range session.Messages() {
		printMessage(session, m)
	}
	fmt.Printf(">>> connected to %s as %q (/name <new name> to rename, Ctrl+C to quit)\n", cfg.ServerURL, session.Name())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-sub.Done():
			return exitRuntime, errors.New("connection to server lost")
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if name, found := strings.CutPrefix(line, "/name "); found {
				session.SetName(name)
				fmt.Printf(">>> now posting as %q\n", session.Name())
				continue
			}
			session.SetInput(line)
			if err := session.Send(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "!!! %s\n", session.Error())
			}
		}
	}
}

// ticketSource fetches a ticket when the server has them enabled and
// connects without one otherwise.
func ticketSource(api *client.API) client.TicketSource {
	return func(ctx context.Context) (string, error) {
		token, err := api.Ticket(ctx)
		if client.IsNotFound(err) {
			return "", nil
		}
		return token, err
	}
}

func wsURL(server string) string {
	u := strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func printMessage(s *client.Session, m models.Message) {
	who := client.DisplayName(m)
	if s != nil && s.IsOwnMessage(m) {
		who += " (you)"
	}
	fmt.Printf("[%s] %s: %s\n", client.FormatTime(m.CreatedAt, time.Now()), who, m.Message)
}
