package main

import (
	"bufio"
	"bytes"
	"chatto/domain"
	"chatto/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type Config struct {
	BaseURL  string `env:"CHATTO_URL,default=http://localhost:3001"`
	Token    string `env:"CHATTO_TOKEN"`
	Email    string `env:"CHATTO_EMAIL"`
	Password string `env:"CHATTO_PASSWORD"`
}

const usage = `commands:
  /chat <id>   select the conversation to write to
  /join        resync every conversation
  /typing      send a typing signal
  /stop        send stop_typing
  /quit        leave
anything else is sent as a message`

// wsclient is a terminal client for the socket endpoint.
func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if err := run(config); err != nil {
		fmt.Fprintf(os.Stderr, "wsclient: %v\n", err)
		os.Exit(1)
	}
}

func run(config Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := config.Token
	if token == "" {
		var err error
		if token, err = login(ctx, config); err != nil {
			return err
		}
	}

	url := "ws" + strings.TrimPrefix(strings.TrimSuffix(config.BaseURL, "/"), "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	color.Green.Println("connected, /help for commands")

	go func() {
		defer stop()
		for {
			var frame event.Inbound
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				if ctx.Err() == nil {
					color.Red.Printf("connection lost: %v\n", err)
				}
				return
			}
			show(frame)
		}
	}()

	var current domain.ConversationID
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			line = strings.TrimSpace(line)
			var err error
			switch {
			case line == "":
			case line == "/help":
				fmt.Println(usage)
			case line == "/quit":
				return nil
			case line == "/join":
				err = send(ctx, conn, event.JoinChats, nil)
			case strings.HasPrefix(line, "/chat "):
				id, convErr := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/chat ")), 10, 64)
				if convErr != nil {
					color.Red.Println("invalid conversation id")
					continue
				}
				current = domain.ConversationID(id)
				err = send(ctx, conn, event.JoinChat, event.ConversationRef{ConversationID: current})
			case line == "/typing":
				err = send(ctx, conn, event.Typing, event.ConversationRef{ConversationID: current})
			case line == "/stop":
				err = send(ctx, conn, event.StopTyping, event.ConversationRef{ConversationID: current})
			default:
				if current == 0 {
					color.Yellow.Println("select a conversation with /chat <id> first")
					continue
				}
				err = send(ctx, conn, event.SendMessage, event.SendMessagePayload{ConversationID: current, Content: line})
			}
			if err != nil {
				return err
			}
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, kind event.Kind, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event.Inbound{Type: kind, Data: raw})
}

func show(frame event.Inbound) {
	switch frame.Type {
	case event.NewMessage:
		var m event.MessagePayload
		if json.Unmarshal(frame.Data, &m) == nil {
			color.Cyan.Printf("[%d] %s: %s\n", m.ConversationID, m.SenderEmail, m.Content)
			return
		}
	case event.TypingStarted, event.TypingStopped:
		var t event.TypingPayload
		if json.Unmarshal(frame.Data, &t) == nil {
			color.Gray.Printf("[%d] %s %s\n", t.ConversationID, t.User.Email, frame.Type)
			return
		}
	case event.Error:
		color.Red.Printf("error: %s\n", frame.Data)
		return
	}
	color.Magenta.Printf("%s %s\n", frame.Type, frame.Data)
}

func login(ctx context.Context, config Config) (string, error) {
	body, err := json.Marshal(map[string]string{"email": config.Email, "password": config.Password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(config.BaseURL, "/")+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", fmt.Errorf("login failed: %s", out.Message)
	}
	return out.Token, nil
}
