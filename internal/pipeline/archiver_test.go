package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

func TestArchiverWritesOnceAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(domain.ChainSepolia)
	id := gw.addPool(closedSeeds(1000, 2, 5), []string{"0xa", "0xb"}, []int64{1, 2, 3, 4})
	archives := newMemArchives()
	a := NewArchiver(testDeps(gw, archives, nil))
	ref := domain.PoolRef{Chain: domain.ChainSepolia, PoolID: id}

	out, err := a.Archive(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeArchived, out)
	require.Equal(t, 1, archives.puts)
	require.Equal(t, 4, gw.count("ReadPrediction"))

	doc := archives.mustGet(domain.ChainSepolia, id)
	require.Len(t, doc.Predictions, 4)
	require.Nil(t, doc.Results)
	require.False(t, doc.HasBeenProcessedInLeaderboard)

	out, err = a.Archive(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkippedDone, out)
	require.Equal(t, 1, archives.puts, "second run must not write")
	require.Equal(t, 4, gw.count("ReadPrediction"), "second run must not re-read predictions")
}

func TestArchiverTooEarly(t *testing.T) {
	gw := newFakeGateway(domain.ChainSepolia)
	seeds := closedSeeds(1000, 2, 5)
	seeds.WindowCloseTime = testNow.Unix() + 60
	seeds.SnapshotTime = testNow.Unix() + 120
	id := gw.addPool(seeds, []string{"0xa"}, []int64{1})
	archives := newMemArchives()
	alerter := &fakeAlerter{}

	_, err := NewArchiver(testDeps(gw, archives, alerter)).Archive(context.Background(), domain.PoolRef{Chain: domain.ChainSepolia, PoolID: id})
	require.ErrorIs(t, err, domain.ErrTooEarly)
	require.False(t, domain.IsFatal(err))
	require.Zero(t, archives.puts)
	require.Empty(t, alerter.events)
}

func TestArchiverSkipsEmptyPool(t *testing.T) {
	gw := newFakeGateway(domain.ChainSepolia)
	id := gw.addPool(closedSeeds(1000, 2, 5), []string{"0xa"}, nil)
	archives := newMemArchives()

	out, err := NewArchiver(testDeps(gw, archives, nil)).Archive(context.Background(), domain.PoolRef{Chain: domain.ChainSepolia, PoolID: id})
	require.NoError(t, err)
	require.Equal(t, OutcomeSkippedEmpty, out)
	require.Zero(t, archives.puts)
}

func TestArchiverMismatchedPredictionIsFatal(t *testing.T) {
	gw := newFakeGateway(domain.ChainSepolia)
	id := gw.addPool(closedSeeds(1000, 2, 5), []string{"0xa"}, []int64{1, 2, 3})
	gw.corruptPrediction = 2
	archives := newMemArchives()
	alerter := &fakeAlerter{}

	_, err := NewArchiver(testDeps(gw, archives, alerter)).Archive(context.Background(), domain.PoolRef{Chain: domain.ChainSepolia, PoolID: id})
	require.Error(t, err)
	require.True(t, domain.IsFatal(err))
	require.Zero(t, archives.puts)
	require.Equal(t, []string{"error"}, alerter.events)
}

func TestArchiverUnknownChain(t *testing.T) {
	gw := newFakeGateway(domain.ChainSepolia)
	_, err := NewArchiver(testDeps(gw, newMemArchives(), nil)).Archive(context.Background(), domain.PoolRef{Chain: domain.ChainMonadTestnet, PoolID: 1})
	require.ErrorContains(t, err, "no gateway configured")
}

func TestUntilUnixClampsPastDeadlines(t *testing.T) {
	require.Equal(t, time.Duration(0), untilUnix(testNow.Unix()-10, testNow))
	require.Equal(t, 90*time.Second, untilUnix(testNow.Unix()+90, testNow))
}
