package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name  string
	err   error
	count int
}

func (r *recordingSender) Send(context.Context, string, string) error {
	r.count++
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventError, " "}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.Notify(context.Background(), EventPoolCompleted, "t", "m"))
	require.Zero(t, s.count)

	require.NoError(t, n.Notify(context.Background(), EventError, "t", "m"))
	require.Equal(t, 1, s.count)

	require.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
	require.Equal(t, 2, s.count)
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := n.Notify(context.Background(), EventError, "t", "m")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, good.count)
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	require.NoError(t, n.Notify(context.Background(), EventError, "t", "m"))
}

func TestTelegramBotSendTo(t *testing.T) {
	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bot := NewTelegramBot("tok", srv.URL+"/")
	require.NoError(t, NewTelegramSender(bot, "99").Send(context.Background(), "Title", "body"))

	require.Equal(t, "/bottok/sendMessage", gotPath)
	require.Equal(t, "99", got["chat_id"])
	require.Equal(t, "*Title*\nbody", got["text"])
}

func TestTelegramBotStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramBot("tok", srv.URL).SendTo(context.Background(), "1", "x")
	require.ErrorContains(t, err, "unexpected status 400")
}
