package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Rotated keys get a fresh 30-day lifetime.
const reworkLifetimeDays = 30

const startText = "*🤖 Alice AI*\n" +
	"_Created by @UseSir / @OverShade_\n\n" +
	"Private AI API service.\n\n" +
	"Use /help to view commands."

const helpText = "*📘 Commands*\n\n" +
	"`/genkey <name> <days>`\n" +
	"`/list`\n" +
	"`/usage <key | name>`\n" +
	"`/rework <name>`\n" +
	"`/delkey <key | name>`\n" +
	"`/test <name | key | main>`"

func (b *Bot) handleGenKey(ctx context.Context, chatID int64, args []string) {
	if len(args) < 2 {
		return
	}

	days, err := strconv.Atoi(args[1])
	if err != nil {
		return
	}

	key, err := b.keys.Create(ctx, args[0], days)
	if err != nil {
		log.Printf("genkey failed: %v", err)
		b.reply(ctx, chatID, "*❌ Failed to generate key*")
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf(
		"*🔑 API Key Generated*\n\n"+
			"*Name:* `%s`\n"+
			"*Key:* `%s`\n\n"+
			"`%s/ai?apikey=%s&prompt=Hello`",
		key.Name, key.Key, b.baseURL, key.Key,
	))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	keys, err := b.keys.List(ctx)
	if err != nil {
		log.Printf("list failed: %v", err)
		b.reply(ctx, chatID, "*❌ Failed to list keys*")
		return
	}

	if len(keys) == 0 {
		b.reply(ctx, chatID, "*No keys found*")
		return
	}

	var text strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&text,
			"*Name:* `%s`\n"+
				"*Key:* `%s`\n"+
				"*Usage:* `%d`\n"+
				"*Expires:* %s\n"+
				"——————————————\n",
			k.Name, k.Key, k.Usage, k.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"),
		)
	}

	b.reply(ctx, chatID, text.String())
}

func (b *Bot) handleUsage(ctx context.Context, chatID int64, target string) {
	if target == "" {
		return
	}

	key, err := b.keys.GetUsage(ctx, target)
	if err != nil {
		log.Printf("usage lookup failed: %v", err)
		b.reply(ctx, chatID, "*❌ Failed to look up key*")
		return
	}

	if key == nil {
		b.reply(ctx, chatID, "*Key not found*")
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf(
		"*📊 Usage*\n\n"+
			"*Name:* `%s`\n"+
			"*Requests:* `%d`",
		key.Name, key.Usage,
	))
}

func (b *Bot) handleRework(ctx context.Context, chatID int64, name string) {
	if name == "" {
		return
	}

	key, err := b.keys.Rotate(ctx, name, reworkLifetimeDays)
	if err != nil {
		log.Printf("rework failed: %v", err)
		b.reply(ctx, chatID, "*❌ Failed to rework key*")
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf(
		"*♻️ Key Reworked*\n\n"+
			"*New Key:* `%s`",
		key.Key,
	))
}

func (b *Bot) handleDelKey(ctx context.Context, chatID int64, target string) {
	if target == "" {
		return
	}

	if _, err := b.keys.DeleteByKeyOrName(ctx, target); err != nil {
		log.Printf("delkey failed: %v", err)
		b.reply(ctx, chatID, "*❌ Failed to delete key*")
		return
	}

	b.reply(ctx, chatID, "*🗑️ Deleted*")
}

func (b *Bot) handleTest(ctx context.Context, chatID int64, target string) {
	if target == "" {
		return
	}

	_, latency, err := b.upstream.Complete(ctx, "OK")
	if err != nil {
		log.Printf("upstream test failed: %v", err)
		b.reply(ctx, chatID, "*❌ Upstream test failed*")
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("*✅ OK*\nLatency: `%vs`", latency))
}
