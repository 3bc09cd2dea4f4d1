package main

import (
	"bufio"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/strangerchat/chat-client/chat"
	"github.com/strangerchat/chat-client/internal/metrics"
)

func main() {
	url := "ws://localhost:8080/ws"
	if v := os.Getenv("CHAT_URL"); v != "" {
		url = v
	}
	metricsAddr := ""
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	identity := chat.NewIdentity()
	config := chat.Config{
		URL:      url,
		Identity: &identity,
	}
	if v := os.Getenv("TYPING_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.TypingTTL = d
		}
	}
	if v := os.Getenv("RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReconnectDelay = d
		}
	}

	log.Printf("Stranger chat client starting")
	log.Printf("  url:       %s", url)
	log.Printf("  user_id:   %s", identity.UserID)
	log.Printf("  avatar:    %s", identity.Avatar)
	if metricsAddr != "" {
		log.Printf("  metrics:   %s", metricsAddr)
	}

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	ui := newConsole(os.Stdout)
	var session *chat.Session
	config.OnChange = func() { ui.render(session) }
	session = chat.New(config)
	typing := chat.NewTypingNotifier(session)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		session.Leave()
		os.Exit(0)
	}()

	fmt.Println("commands: /find  /next  /leave  /quit  (anything else is sent as a message)")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/find":
			session.ConnectAndFind()
		case "/next":
			session.Next()
		case "/leave":
			session.Leave()
		case "/quit":
			session.Leave()
			return
		default:
			typing.MessageSent()
			session.SendMessage(line)
		}
	}
	session.Leave()
}
