package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orincore/CircleRJ/internal/config"
	"github.com/orincore/CircleRJ/internal/history"
	"github.com/orincore/CircleRJ/internal/identity"
	"github.com/orincore/CircleRJ/internal/metrics"
	"github.com/orincore/CircleRJ/internal/notify"
	"github.com/orincore/CircleRJ/internal/ratelimit"
	"github.com/orincore/CircleRJ/internal/session"
	"github.com/orincore/CircleRJ/internal/transport"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Printf("CircleRJ chat client starting")
	log.Printf("  user_id:        %s", cfg.UserID)
	log.Printf("  transport:      %s", cfg.Transport)
	log.Printf("  server_url:     %s", cfg.WebSocket.URL)
	log.Printf("  ping_interval:  %s", cfg.WebSocket.Heartbeat.Interval)
	log.Printf("  nats_url:       %s", cfg.NATS.URL)
	log.Printf("  history:        %t", cfg.DatabaseURL != "")
	log.Printf("  redis_addr:     %s", cfg.RedisAddr)
	log.Printf("  metrics_addr:   %s", cfg.MetricsAddr)
	log.Printf("  notifications:  %t", cfg.Notifications)

	ctx := context.Background()
	terminal := notify.NewTerminal(os.Stdout, cfg.Notifications)
	opts := session.Options{Notifier: terminal}

	// --- Transport ---
	switch cfg.Transport {
	case config.TransportNATS:
		opts.Transport = transport.NewNATS(cfg.NATS)
	default:
		opts.Transport = transport.NewWebSocket(cfg.WebSocket)
	}

	// --- Postgres history ---
	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			if err := history.Migrate(cfg.DatabaseURL); err != nil {
				log.Fatalf("failed to migrate history database: %v", err)
			}
		}
		db, err := history.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		defer db.Close()
		opts.History = history.NewLoader(history.NewPostgresSource(db))
	}

	// --- Redis send throttling ---
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		limiter = ratelimit.NewLimiter(rdb, ratelimit.RuleMessage)
		opts.Limiter = limiter
	}

	// --- Metrics ---
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			log.Printf("[metrics] listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("[metrics] server error: %v", err)
			}
		}()
	}

	manager := session.NewManager(opts)
	id := identity.SignedOut()
	if cfg.UserID != "" {
		id = identity.SignedIn(cfg.UserID)
	}
	if err := manager.Apply(ctx, id); err != nil {
		log.Printf("sign in failed: %v", err)
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		manager.Close()
		os.Exit(0)
	}()

	runCommands(ctx, manager, terminal, limiter)
	manager.Close()
}

const help = `commands:
  /signin <id>    sign in as id
  /signout        sign out
  /chats          list rooms
  /select <room>  open a room
  /open           open the room of the last notification
  /reload         reload history
  /match          find a random partner
  /accept         accept the proposed partner
  /reject         reject the proposed partner and search again
  /close          hide the match status
  /status         show connection and match state
  /quit           exit
anything else is sent to the open room`

// runCommands reads stdin line by line until EOF or /quit.
func runCommands(ctx context.Context, manager *session.Manager, terminal *notify.Terminal, limiter *ratelimit.Limiter) {
	fmt.Println(help)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "/quit":
			return
		case "/help":
			fmt.Println(help)
			continue
		case "/signin":
			if err := manager.Apply(ctx, identity.SignedIn(arg)); err != nil {
				fmt.Printf("sign in failed: %v\n", err)
			}
			continue
		case "/signout":
			if err := manager.Apply(ctx, identity.SignedOut()); err != nil {
				fmt.Printf("sign out failed: %v\n", err)
			}
			continue
		case "/open":
			if !terminal.OpenLast() {
				fmt.Println("no notification to open")
			}
			continue
		}

		s := manager.Current()
		if s == nil {
			fmt.Println("not signed in; use /signin <id>")
			continue
		}

		switch cmd {
		case "/chats":
			printChats(s)
		case "/select":
			s.SelectChat(arg)
			printRoom(s)
		case "/reload":
			s.LoadHistory(ctx)
			printChats(s)
		case "/match":
			s.StartRandomMatch()
			printMatch(s)
		case "/accept":
			s.AcceptRandomMatch()
			printMatch(s)
		case "/reject":
			s.RejectRandomMatch()
			printMatch(s)
		case "/close":
			s.CloseMatchPopup()
		case "/status":
			fmt.Printf("user=%s connected=%t\n", s.UserID(), s.Connected())
			if limiter != nil {
				if n, err := limiter.Remaining(ctx, s.UserID(), ratelimit.RuleMessage); err == nil {
					fmt.Printf("sends left in window: %d\n", n)
				}
			}
			printMatch(s)
		default:
			if strings.HasPrefix(cmd, "/") {
				fmt.Printf("unknown command %s\n", cmd)
				continue
			}
			if !s.SendMessage(ctx, line) {
				fmt.Println("not sent (no open room, no connection or throttled)")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("stdin: %v", err)
	}
}

func printChats(s *session.Session) {
	chats := s.Chats()
	if len(chats) == 0 {
		fmt.Println("no conversations")
		return
	}
	selected, _ := s.Selected()
	for _, c := range chats {
		mark := " "
		if c.RoomID == selected.RoomID {
			mark = "*"
		}
		fmt.Printf("%s %-24s %-16s unread=%d  %s\n", mark, c.RoomID, c.User.Name, c.UnreadCount, c.LastMessage.Content)
	}
}

func printRoom(s *session.Session) {
	c, ok := s.Selected()
	if !ok {
		fmt.Println("no room selected")
		return
	}
	fmt.Printf("-- %s (%s) --\n", c.User.Name, c.RoomID)
	for _, m := range s.Messages() {
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04"), m.SenderID, m.Content)
	}
}

func printMatch(s *session.Session) {
	m := s.Match()
	if !m.Visible {
		return
	}
	fmt.Printf("match: %s  %s\n", m.Status, m.StatusText)
	if m.Candidate != nil {
		fmt.Printf("  candidate: %s (%s)  /accept or /reject\n", m.Candidate.Name, m.Candidate.ID)
	}
}
