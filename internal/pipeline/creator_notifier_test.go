package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

type fakeChats map[string]string

func (f fakeChats) ChatID(_ context.Context, address string) (string, error) {
	id, ok := f[address]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

type fakeMessenger struct {
	sent map[string][]string
	err  error
}

func (m *fakeMessenger) SendTo(_ context.Context, chatID, text string) error {
	if m.err != nil {
		return m.err
	}
	if m.sent == nil {
		m.sent = map[string][]string{}
	}
	m.sent[chatID] = append(m.sent[chatID], text)
	return nil
}

func settledArchive(t *testing.T, archives *memArchives, creator string) domain.PoolRef {
	t.Helper()
	pool := domain.Pool{
		PoolID:                    9,
		Seeds:                     closedSeeds(1_000_000, 2, 5),
		NoOfPredictions:           4,
		NoOfWinners:               2,
		WinAmount:                 big.NewInt(1_900_000),
		CompletionTime:            testNow.Unix(),
		Creator:                   creator,
		CreatorCompletionFeesPerc: 2,
	}
	require.NoError(t, archives.Put(context.Background(), domain.ArchivedPool{
		Chain: domain.ChainSepolia,
		Pool:  pool,
		Results: &domain.PoolResults{
			WinnerAddressesUniqued: []string{"0xa"},
			WinnerPredictionIDs:    []uint64{1, 2},
		},
	}))
	return domain.PoolRef{Chain: domain.ChainSepolia, PoolID: 9}
}

func TestCreatorNotifierSendsOnce(t *testing.T) {
	ctx := context.Background()
	archives := newMemArchives()
	ref := settledArchive(t, archives, "0xcreator")
	msgs := &fakeMessenger{}
	n := NewCreatorNotifier(testDeps(newFakeGateway(domain.ChainSepolia), archives, nil),
		fakeChats{"0xcreator": "42"}, msgs, "https://castora.xyz/")

	out, err := n.Notify(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeNotified, out)
	require.Len(t, msgs.sent["42"], 1)
	require.Contains(t, msgs.sent["42"][0], "Your pool #9 on sepolia has been completed.")
	require.Contains(t, msgs.sent["42"][0], "Your completion fee: 2%")
	require.Contains(t, msgs.sent["42"][0], "https://castora.xyz/pools/9?chain=sepolia")
	require.True(t, archives.mustGet(ref.Chain, ref.PoolID).HasNotifiedCreatorOnTelegram)

	out, err = n.Notify(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkippedDone, out)
	require.Len(t, msgs.sent["42"], 1)
}

func TestCreatorNotifierSkips(t *testing.T) {
	ctx := context.Background()

	t.Run("no creator", func(t *testing.T) {
		archives := newMemArchives()
		ref := settledArchive(t, archives, domain.ZeroAddress)
		n := NewCreatorNotifier(testDeps(newFakeGateway(domain.ChainSepolia), archives, nil), fakeChats{}, &fakeMessenger{}, "")
		out, err := n.Notify(ctx, ref)
		require.NoError(t, err)
		require.Equal(t, OutcomeSkippedNoCreator, out)
	})

	t.Run("no linked chat", func(t *testing.T) {
		archives := newMemArchives()
		ref := settledArchive(t, archives, "0xcreator")
		msgs := &fakeMessenger{}
		n := NewCreatorNotifier(testDeps(newFakeGateway(domain.ChainSepolia), archives, nil), fakeChats{}, msgs, "")
		out, err := n.Notify(ctx, ref)
		require.NoError(t, err)
		require.Equal(t, OutcomeSkippedNoChat, out)
		require.Empty(t, msgs.sent)
		require.False(t, archives.mustGet(ref.Chain, ref.PoolID).HasNotifiedCreatorOnTelegram)
	})
}

func TestCreatorNotifierWaitsForResults(t *testing.T) {
	ctx := context.Background()
	archives := newMemArchives()
	ref := settledArchive(t, archives, "0xcreator")
	a := archives.mustGet(ref.Chain, ref.PoolID)
	a.Results = nil
	require.NoError(t, archives.Put(ctx, a))

	n := NewCreatorNotifier(testDeps(newFakeGateway(domain.ChainSepolia), archives, nil), fakeChats{"0xcreator": "42"}, &fakeMessenger{}, "")
	_, err := n.Notify(ctx, ref)
	require.ErrorIs(t, err, domain.ErrTooEarly)
}

func TestCreatorNotifierSendFailureLeavesFlag(t *testing.T) {
	ctx := context.Background()
	archives := newMemArchives()
	ref := settledArchive(t, archives, "0xcreator")
	msgs := &fakeMessenger{err: fmt.Errorf("telegram: status 502")}
	n := NewCreatorNotifier(testDeps(newFakeGateway(domain.ChainSepolia), archives, nil), fakeChats{"0xcreator": "42"}, msgs, "")

	_, err := n.Notify(ctx, ref)
	require.ErrorContains(t, err, "status 502")
	require.False(t, archives.mustGet(ref.Chain, ref.PoolID).HasNotifiedCreatorOnTelegram)
}
