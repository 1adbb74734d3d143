package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// Messenger sends a text to one chat. *notify.TelegramBot implements it.
type Messenger interface {
	SendTo(ctx context.Context, chatID, text string) error
}

// CreatorNotifier tells a community pool's creator that the pool settled.
type CreatorNotifier struct {
	base
	chats     domain.ChatDirectory
	messenger Messenger
	appURL    string
}

// NewCreatorNotifier creates a CreatorNotifier. appURL prefixes the pool link
// in the message.
func NewCreatorNotifier(deps Deps, chats domain.ChatDirectory, messenger Messenger, appURL string) *CreatorNotifier {
	return &CreatorNotifier{
		base:      deps.base("creator-notifier"),
		chats:     chats,
		messenger: messenger,
		appURL:    strings.TrimRight(appURL, "/"),
	}
}

// Notify sends one message per pool. hasNotifiedCreatorOnTelegram in the
// archive guards against repeats.
func (n *CreatorNotifier) Notify(ctx context.Context, ref domain.PoolRef) (Outcome, error) {
	out, err := n.notify(ctx, ref)
	if err != nil {
		return "", n.fail(ctx, "notify creator", ref, fmt.Errorf("notify creator %s/%d: %w", ref.Chain, ref.PoolID, err))
	}
	return out, nil
}

func (n *CreatorNotifier) notify(ctx context.Context, ref domain.PoolRef) (Outcome, error) {
	log := n.poolLogger(ref)

	archived, err := n.archives.Get(ctx, ref.Chain, ref.PoolID)
	if err != nil {
		return "", fmt.Errorf("load archive: %w", err)
	}
	if archived.HasNotifiedCreatorOnTelegram {
		return OutcomeSkippedDone, nil
	}
	if !archived.Pool.HasCreator() {
		return OutcomeSkippedNoCreator, nil
	}
	if archived.Results == nil {
		return "", fmt.Errorf("archive has no results yet: %w", domain.ErrTooEarly)
	}

	chatID, err := n.chats.ChatID(ctx, archived.Pool.Creator)
	if errors.Is(err, domain.ErrNotFound) {
		log.InfoContext(ctx, "creator has no linked chat", slog.String("creator", archived.Pool.Creator))
		return OutcomeSkippedNoChat, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve chat: %w", err)
	}

	if err := n.messenger.SendTo(ctx, chatID, n.message(archived)); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	archived.HasNotifiedCreatorOnTelegram = true
	if err := n.archives.Put(ctx, archived); err != nil {
		return "", fmt.Errorf("mark notified: %w", err)
	}

	log.InfoContext(ctx, "creator notified", slog.String("creator", archived.Pool.Creator))
	n.record(ctx, auditNotified, ref, map[string]any{"creator": archived.Pool.Creator})
	return OutcomeNotified, nil
}

func (n *CreatorNotifier) message(archived domain.ArchivedPool) string {
	p := archived.Pool
	var b strings.Builder
	fmt.Fprintf(&b, "Your pool #%d on %s has been completed.\n", p.PoolID, archived.Chain)
	fmt.Fprintf(&b, "Predictions: %d\nWinners: %d\n", p.NoOfPredictions, p.NoOfWinners)
	if p.CreatorCompletionFeesPerc > 0 {
		fmt.Fprintf(&b, "Your completion fee: %d%%\n", p.CreatorCompletionFeesPerc)
	}
	if n.appURL != "" {
		fmt.Fprintf(&b, "%s/pools/%d?chain=%s", n.appURL, p.PoolID, archived.Chain)
	}
	return strings.TrimRight(b.String(), "\n")
}
