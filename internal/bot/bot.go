package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/quricedev/alice-ai/internal/service"
)

const defaultAPIBase = "https://api.telegram.org"

// Completer is the upstream completion dependency, satisfied by
// *upstream.Client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, float64, error)
}

// Bot dispatches Telegram webhook updates: admin key-lifecycle commands
// plus a conversational passthrough to the upstream for plain messages.
// Admin identity is assumed verified here only by Telegram user ID; the
// key operations themselves are unauthenticated library calls.
type Bot struct {
	token      string
	adminID    int64
	baseURL    string
	apiBase    string
	keys       *service.KeyService
	upstream   Completer
	httpClient *http.Client
}

func New(token string, adminID int64, baseURL string, keys *service.KeyService, upstream Completer) *Bot {
	return &Bot{
		token:      token,
		adminID:    adminID,
		baseURL:    baseURL,
		apiBase:    defaultAPIBase,
		keys:       keys,
		upstream:   upstream,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// HandleUpdate routes a single webhook update. Errors are logged, never
// returned: the webhook endpoint acknowledges receipt regardless of the
// downstream outcome.
func (b *Bot) HandleUpdate(ctx context.Context, update *Update) {
	if update == nil || update.Message == nil || update.Message.Text == "" {
		return
	}

	m := update.Message

	// Only plain text reaches the chat passthrough. A slash prefix means
	// a command; unknown or bare ones are dropped, never completed.
	if !strings.HasPrefix(m.Text, "/") {
		b.handleChat(ctx, m)
		return
	}

	cmd, args, rest := splitCommand(m.Text)

	switch cmd {
	case "start":
		b.reply(ctx, m.Chat.ID, startText)
	case "help":
		b.reply(ctx, m.Chat.ID, helpText)
	case "genkey", "list", "usage", "rework", "delkey", "test":
		// Single shared admin gate for every key-lifecycle command.
		if !b.requireAdmin(m.From) {
			return
		}
		b.handleAdminCommand(ctx, m.Chat.ID, cmd, args, rest)
	}
}

func (b *Bot) handleAdminCommand(ctx context.Context, chatID int64, cmd string, args []string, rest string) {
	switch cmd {
	case "genkey":
		b.handleGenKey(ctx, chatID, args)
	case "list":
		b.handleList(ctx, chatID)
	case "usage":
		b.handleUsage(ctx, chatID, rest)
	case "rework":
		b.handleRework(ctx, chatID, rest)
	case "delkey":
		b.handleDelKey(ctx, chatID, rest)
	case "test":
		b.handleTest(ctx, chatID, rest)
	}
}

func (b *Bot) requireAdmin(from *User) bool {
	return from != nil && from.ID == b.adminID
}

func (b *Bot) handleChat(ctx context.Context, m *Message) {
	reply, _, err := b.upstream.Complete(ctx, m.Text)
	if err != nil {
		log.Printf("bot chat completion failed: %v", err)
		return
	}

	b.sendMessage(ctx, m.Chat.ID, reply, "")
}

// reply sends Markdown-formatted text, logging delivery failures.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sendMessage(ctx, chatID, text, "Markdown"); err != nil {
		log.Printf("failed to send telegram message: %v", err)
	}
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", b.apiBase, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram sendMessage returned %d: %s", resp.StatusCode, detail)
	}

	return nil
}

// splitCommand parses "/cmd@botname a b" into the bare command, its
// whitespace-split arguments, and the raw remainder (so names containing
// spaces survive). Non-command text returns an empty command.
func splitCommand(text string) (cmd string, args []string, rest string) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, ""
	}

	fields := strings.Fields(text)
	cmd = strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}

	args = fields[1:]
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		rest = strings.TrimSpace(text[i+1:])
	}

	return cmd, args, rest
}
