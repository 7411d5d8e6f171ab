package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pairloop/pairlink/pkg/chat"
	"github.com/pairloop/pairlink/pkg/history"
	"github.com/pairloop/pairlink/pkg/identity"
	"github.com/pairloop/pairlink/pkg/socket"
	"github.com/pairloop/pairlink/pkg/transcript"
)

func main() {
	var (
		serverURL = flag.String("server", envOr("PAIRLINK_SERVER", "http://localhost:8000"), "server base URL")
		configDir = flag.String("config-dir", os.Getenv("PAIRLINK_CONFIG"), "credential directory (default ~/.pairlink)")
		email     = flag.String("email", "", "sign in with this email")
		password  = flag.String("password", "", "sign in with this password")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := run(*serverURL, *configDir, *email, *password, logger); err != nil {
		fmt.Fprintf(os.Stderr, "pairlink: %v\n", err)
		os.Exit(1)
	}
}

func run(serverURL, configDir, email, password string, logger *slog.Logger) error {
	credentials, err := identity.NewFileStore(configDir)
	if err != nil {
		return err
	}

	if email != "" {
		token, err := signin(serverURL, email, password)
		if err != nil {
			return err
		}
		if err := credentials.Set(identity.TokenKey, token); err != nil {
			return err
		}
	}

	self, err := identity.Resolve(credentials)
	if errors.Is(err, chat.ErrUnauthenticated) {
		return errors.New("no stored credential; sign in with -email and -password")
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn := socket.NewConn(wsURL(serverURL), socket.WithLogger(logger))
	loader := history.NewLoader(serverURL, history.WithRetry(3, 500*time.Millisecond))

	session := chat.NewSession(self.UserID, self.Token, conn, loader, chat.WithLogger(logger))
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		if errors.Is(err, chat.ErrHistoryLoad) {
			fmt.Println("! could not load history, showing live messages only")
		} else {
			return err
		}
	}

	fmt.Printf("connected as %s (type a message, /quit to exit)\n", self.Name)

	go renderLoop(ctx, session)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "/quit" {
			return nil
		}
		if err := session.Compose(line); err != nil {
			if errors.Is(err, chat.ErrEmptyMessage) {
				continue
			}
			return err
		}
	}
	return scanner.Err()
}

// renderLoop prints transcript entries as the store grows. Entries are
// derived fresh on every update so date breaks and run-end timestamps
// stay consistent with the full transcript.
func renderLoop(ctx context.Context, session *chat.Session) {
	cursor := &printCursor{}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-session.Updates():
			if !ok {
				return
			}
		}

		entries := transcript.Render(session.Snapshot(), session.SelfID(), nil)
		start, replay := cursor.advance(entries)
		if replay {
			fmt.Println("--- transcript updated ---")
		}
		for _, e := range entries[start:] {
			printEntry(e)
		}
	}
}

// printCursor tracks how far the transcript has been printed. The store
// merges by timestamp, so a late-arriving message can land before entries
// that are already on screen; a bare count would misattribute the shifted
// indices, so the cursor is anchored on the last printed message ID.
type printCursor struct {
	lastID  string
	printed int
}

// advance returns the index to resume printing from. replay is true when
// a message was inserted before the cursor, in which case the whole
// transcript is printed again from the start.
func (c *printCursor) advance(entries []transcript.Entry) (start int, replay bool) {
	idx := -1
	if c.lastID != "" {
		for i := range entries {
			if entries[i].ID == c.lastID {
				idx = i
				break
			}
		}
	}
	if idx+1 != c.printed {
		idx = -1
		replay = true
	}

	c.printed = len(entries)
	if len(entries) > 0 {
		c.lastID = entries[len(entries)-1].ID
	}
	return idx + 1, replay
}

func printEntry(e transcript.Entry) {
	if e.DateBreak {
		fmt.Printf("--- %s ---\n", e.CreatedAt.Local().Format("Mon, 02 Jan 2006"))
	}
	who := "them"
	if e.Self {
		who = "you"
	}
	body := e.Text
	if body == "" && e.Image != "" {
		body = "[image] " + e.Image
	}
	line := fmt.Sprintf("%s: %s", who, body)
	if e.ShowTime {
		line += e.CreatedAt.Local().Format(" (15:04)")
	}
	fmt.Println(line)
}

func signin(serverURL, email, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(serverURL+"/users/signin", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("signin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signin failed: status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("signin: decode response: %w", err)
	}
	if body.Data.Token == "" {
		return "", errors.New("signin: empty token in response")
	}
	return body.Data.Token, nil
}

func wsURL(serverURL string) string {
	url := strings.Replace(serverURL, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return url + "/ws"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
