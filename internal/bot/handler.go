// Package bot implements the chat command interpreter and the webhook
// server receiving inbound gateway messages.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"xcbot/internal/model"
	"xcbot/internal/storage"
)

// Handler interprets inbound chat messages and produces reply texts.
// Messages from the same sender are handled in arrival order; messages
// from distinct senders may be handled concurrently.
type Handler struct {
	store   storage.Storage
	version string
	adminID string
	log     *slog.Logger

	mu      sync.Mutex
	senders map[string]*sync.Mutex
}

// NewHandler creates a Handler. adminID may be empty to disable the
// admin-only stats command.
func NewHandler(store storage.Storage, version, adminID string, log *slog.Logger) *Handler {
	return &Handler{
		store:   store,
		version: version,
		adminID: adminID,
		log:     log,
		senders: map[string]*sync.Mutex{},
	}
}

// senderLock returns the mutex serializing messages from one sender.
// Locks are never removed; the sender set is bounded by the user table.
func (h *Handler) senderLock(sender string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.senders[sender]
	if !ok {
		l = &sync.Mutex{}
		h.senders[sender] = l
	}
	return l
}

// HandleMessage processes one inbound message and returns the reply text.
// A non-nil error means the store failed and no reply should be sent.
func (h *Handler) HandleMessage(ctx context.Context, sender, nickname, text string) (string, error) {
	l := h.senderLock(sender)
	l.Lock()
	defer l.Unlock()

	// Ensure a user row exists even for a first-time help.
	user, err := h.store.FindOrCreateUser(ctx, sender, model.KindThreema)
	if err != nil {
		return "", fmt.Errorf("find or create user: %w", err)
	}

	cmd := ParseCommand(text)
	h.log.Debug("command", "cmd", cmd.Name, "arg", cmd.Arg, "sender", sender)

	switch cmd.Name {
	case "help":
		return helpText, nil
	case "version":
		return fmt.Sprintf("xcbot %s", h.version), nil
	case "follow", "add":
		return h.handleFollow(ctx, user, cmd.Arg)
	case "stop", "remove":
		return h.handleStop(ctx, user, cmd.Arg)
	case "list":
		return h.handleList(ctx, user)
	case "stats":
		if h.adminID != "" && sender == h.adminID {
			return h.handleStats(ctx)
		}
		return unknownReply(cmd.Name, nickname, sender), nil
	default:
		return unknownReply(cmd.Name, nickname, sender), nil
	}
}

func (h *Handler) handleFollow(ctx context.Context, user *model.User, pilot string) (string, error) {
	if pilot == "" {
		return followUsage, nil
	}
	if strings.IndexFunc(pilot, func(r rune) bool { return r == ' ' || r == '\t' }) >= 0 {
		return "Error: an XContest username cannot contain spaces.\n\n" + followUsage, nil
	}

	outcome, err := h.store.AddSubscription(ctx, user.ID, pilot)
	if err != nil {
		return "", fmt.Errorf("add subscription: %w", err)
	}
	if outcome == model.SubscriptionExists {
		return fmt.Sprintf("You are already following %s.", pilot), nil
	}
	return fmt.Sprintf("Now following %s!", pilot), nil
}

func (h *Handler) handleStop(ctx context.Context, user *model.User, pilot string) (string, error) {
	if pilot == "" {
		return stopUsage, nil
	}

	outcome, err := h.store.RemoveSubscription(ctx, user.ID, pilot)
	if err != nil {
		return "", fmt.Errorf("remove subscription: %w", err)
	}
	if outcome == model.SubscriptionNotFound {
		return fmt.Sprintf("You are not following %s.", pilot), nil
	}
	return fmt.Sprintf("Stopped following %s.", pilot), nil
}

func (h *Handler) handleList(ctx context.Context, user *model.User) (string, error) {
	pilots, err := h.store.ListSubscriptions(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("list subscriptions: %w", err)
	}
	return formatSubscriptions(pilots), nil
}

func (h *Handler) handleStats(ctx context.Context) (string, error) {
	st, err := h.store.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch stats: %w", err)
	}
	return formatStats(st), nil
}
