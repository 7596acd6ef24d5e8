// Command chatprobe is a manual test client for the chat server. It can hash an admin
// password for ADMIN_PASSWORD_HASH or replay a scripted chat session over the socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
	"github.com/zhouzirui/relay-chat/backend/internal/service/admin"
	"github.com/zhouzirui/relay-chat/backend/internal/service/broadcast"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env loaded, using process environment: %v", err)
	}

	mode := flag.String("mode", "", "probe mode: hash or chat")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "password to hash (hash mode)")
	scenarioPath := flag.String("scenario", "", "TOML scenario file (chat mode)")
	url := flag.String("url", "", "socket URL, overrides the scenario")
	username := flag.String("user", "", "username, overrides the scenario")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")

	flag.Parse()

	switch *mode {
	case "hash":
		runHash(*password)
	case "chat":
		sc := defaultScenario()
		if *scenarioPath != "" {
			loaded, err := loadScenario(*scenarioPath)
			if err != nil {
				log.Fatalf("load scenario: %v", err)
			}
			sc = loaded
		}
		if *url != "" {
			sc.URL = *url
		}
		if *username != "" {
			sc.Username = *username
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		if err := runChat(ctx, sc); err != nil {
			log.Fatalf("chat probe failed: %v", err)
		}
	default:
		flag.Usage()
		log.Fatal("choose -mode=hash or -mode=chat")
	}
}

func runHash(password string) {
	if password == "" {
		log.Fatal("hash mode needs -password or ADMIN_PASSWORD")
	}
	encoded, err := admin.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(encoded)
}

func runChat(ctx context.Context, sc Scenario) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, sc.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sc.URL, err)
	}
	defer ws.Close()
	log.Printf("connected to %s", sc.URL)

	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			printFrame(raw)
		}
	}()

	steps := sc.Frames()
	for i, step := range steps {
		frame, err := broadcast.Encode(step.Event, step.Data)
		if err != nil {
			return err
		}
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			return fmt.Errorf("send %q: %w", step.Event, err)
		}
		log.Printf("-> %s %v", step.Event, step.Data)

		if i < len(steps)-1 {
			select {
			case <-time.After(sc.interval):
			case <-ctx.Done():
				return nil
			}
		}
	}

	select {
	case <-time.After(sc.linger):
	case <-ctx.Done():
	case <-done:
		log.Printf("server closed the connection")
		return nil
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func printFrame(raw []byte) {
	env, err := broadcast.Decode(raw)
	if err != nil {
		log.Printf("<- unparsable frame: %s", raw)
		return
	}
	if env.Event == chat.EventLoadMessages || env.Event == chat.EventChatMessage {
		log.Printf("<- %s %s", env.Event, env.Data)
		return
	}
	text, err := broadcast.DecodeString(env)
	if err != nil {
		log.Printf("<- %s %s", env.Event, env.Data)
		return
	}
	log.Printf("<- %s %q", env.Event, text)
}
