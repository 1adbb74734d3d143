package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/chain"
	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/selector"
)

var testNow = time.Unix(1_700_000_000, 0)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway is an in-memory settlement contract.
type fakeGateway struct {
	mu        sync.Mutex
	chain     domain.Chain
	pools     map[uint64]*domain.Pool
	preds     map[uint64][]domain.Prediction
	byHash    map[string]uint64
	userPools []uint64
	nextID    uint64
	now       func() time.Time

	calls map[string]int
	// failAt makes the n-th call (1-based) of a method return the error.
	failAt map[string]failure
	// winnersOverride replaces the contract's own winner count on initiate.
	winnersOverride *uint64
	// corruptPrediction returns a prediction with the wrong id.
	corruptPrediction uint64
}

type failure struct {
	call int
	err  error
}

func newFakeGateway(c domain.Chain) *fakeGateway {
	return &fakeGateway{
		chain:  c,
		pools:  map[uint64]*domain.Pool{},
		preds:  map[uint64][]domain.Prediction{},
		byHash: map[string]uint64{},
		now:    func() time.Time { return testNow },
		calls:  map[string]int{},
		failAt: map[string]failure{},
	}
}

func (g *fakeGateway) hit(method string) error {
	g.calls[method]++
	if f, ok := g.failAt[method]; ok && f.call == g.calls[method] {
		return f.err
	}
	return nil
}

func (g *fakeGateway) count(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// addPool registers a pool with predictions priced at prices, predicters
// cycling through addrs.
func (g *fakeGateway) addPool(seeds domain.PoolSeeds, addrs []string, prices []int64) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := g.nextID
	hash, _ := chain.SeedsHash(seeds)
	g.pools[id] = &domain.Pool{
		PoolID:          id,
		Seeds:           seeds,
		SeedsHash:       hash,
		CreationTime:    testNow.Unix() - 7200,
		NoOfPredictions: uint64(len(prices)),
		WinAmount:       new(big.Int),
	}
	g.byHash[hash] = id
	preds := make([]domain.Prediction, len(prices))
	for i, p := range prices {
		preds[i] = domain.Prediction{
			Predicter:       addrs[i%len(addrs)],
			PoolID:          id,
			PredictionID:    uint64(i + 1),
			PredictionPrice: p,
			PredictionTime:  testNow.Unix() - 3600 + int64(i),
		}
	}
	g.preds[id] = preds
	return id
}

func (g *fakeGateway) Chain() domain.Chain { return g.chain }

func (g *fakeGateway) ReadPool(_ context.Context, poolID uint64) (domain.Pool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("ReadPool"); err != nil {
		return domain.Pool{}, err
	}
	p, ok := g.pools[poolID]
	if !ok {
		return domain.Pool{}, fmt.Errorf("pool %d: %w", poolID, domain.ErrNotFound)
	}
	out := *p
	if p.WinAmount != nil {
		out.WinAmount = new(big.Int).Set(p.WinAmount)
	}
	return out, nil
}

func (g *fakeGateway) ReadPrediction(_ context.Context, poolID, predictionID uint64) (domain.Prediction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("ReadPrediction"); err != nil {
		return domain.Prediction{}, err
	}
	preds := g.preds[poolID]
	if predictionID == 0 || predictionID > uint64(len(preds)) {
		return domain.Prediction{}, fmt.Errorf("prediction %d: %w", predictionID, domain.ErrNotFound)
	}
	p := preds[predictionID-1]
	if g.corruptPrediction == predictionID {
		p.PredictionID = predictionID + 100
	}
	return p, nil
}

func (g *fakeGateway) PoolIDBySeedsHash(_ context.Context, seedsHash string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("PoolIDBySeedsHash"); err != nil {
		return 0, err
	}
	return g.byHash[seedsHash], nil
}

func (g *fakeGateway) NoOfUserCreatedPools(context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("NoOfUserCreatedPools"); err != nil {
		return 0, err
	}
	return uint64(len(g.userPools)), nil
}

func (g *fakeGateway) UserCreatedPoolID(_ context.Context, index uint64) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("UserCreatedPoolID"); err != nil {
		return 0, err
	}
	if index >= uint64(len(g.userPools)) {
		return 0, domain.ErrNotFound
	}
	return g.userPools[index], nil
}

func (g *fakeGateway) CreatePool(_ context.Context, seeds domain.PoolSeeds) error {
	g.mu.Lock()
	if err := g.hit("CreatePool"); err != nil {
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()
	g.addPool(seeds, []string{"0x00"}, nil)
	return nil
}

func (g *fakeGateway) InitiatePoolCompletion(_ context.Context, poolID uint64, snapshotPrice int64, _ uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("InitiatePoolCompletion"); err != nil {
		return err
	}
	p := g.pools[poolID]
	if p.NoOfWinners != 0 {
		return fmt.Errorf("execution reverted: already initiated")
	}
	p.SnapshotPrice = snapshotPrice
	p.NoOfWinners = selector.NoOfWinners(p.NoOfPredictions, p.Seeds.Multiplier)
	if g.winnersOverride != nil {
		p.NoOfWinners = *g.winnersOverride
	}
	return nil
}

func (g *fakeGateway) SetWinnersInBatch(_ context.Context, poolID uint64, ids []uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("SetWinnersInBatch"); err != nil {
		return err
	}
	for _, id := range ids {
		g.preds[poolID][id-1].IsAWinner = true
	}
	return nil
}

func (g *fakeGateway) FinalizePoolCompletion(_ context.Context, poolID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("FinalizePoolCompletion"); err != nil {
		return err
	}
	p := g.pools[poolID]
	p.CompletionTime = g.now().Unix()
	p.WinAmount = selector.WinAmount(p.Seeds.StakeAmount, p.NoOfPredictions, p.NoOfWinners, p.Seeds.FeesPercent)
	return nil
}

func (g *fakeGateway) CompletePool(_ context.Context, poolID uint64, snapshotPrice int64, noOfWinners uint64, winAmount *big.Int, ids []uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("CompletePool"); err != nil {
		return err
	}
	p := g.pools[poolID]
	p.SnapshotPrice = snapshotPrice
	p.NoOfWinners = noOfWinners
	p.WinAmount = new(big.Int).Set(winAmount)
	p.CompletionTime = g.now().Unix()
	for _, id := range ids {
		g.preds[poolID][id-1].IsAWinner = true
	}
	return nil
}

// memArchives copies documents through JSON like a real blob store.
type memArchives struct {
	mu   sync.Mutex
	docs    map[string][]byte
	puts    int
	listErr error
}

func newMemArchives() *memArchives {
	return &memArchives{docs: map[string][]byte{}}
}

func archiveKey(c domain.Chain, id uint64) string {
	return fmt.Sprintf("%s/%d", c, id)
}

func (m *memArchives) Exists(_ context.Context, c domain.Chain, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[archiveKey(c, id)]
	return ok, nil
}

func (m *memArchives) Get(_ context.Context, c domain.Chain, id uint64) (domain.ArchivedPool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.docs[archiveKey(c, id)]
	if !ok {
		return domain.ArchivedPool{}, fmt.Errorf("archive %s: %w", archiveKey(c, id), domain.ErrNotFound)
	}
	var out domain.ArchivedPool
	err := json.Unmarshal(buf, &out)
	return out, err
}

func (m *memArchives) Put(_ context.Context, a domain.ArchivedPool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, err := json.Marshal(a)
	if err != nil {
		return err
	}
	m.puts++
	m.docs[archiveKey(a.Chain, a.Pool.PoolID)] = buf
	return nil
}

func (m *memArchives) PoolIDs(_ context.Context, c domain.Chain) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var ids []uint64
	for key := range m.docs {
		var id uint64
		if _, err := fmt.Sscanf(key, string(c)+"/%d", &id); err == nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memArchives) mustGet(c domain.Chain, id uint64) domain.ArchivedPool {
	a, err := m.Get(context.Background(), c, id)
	if err != nil {
		panic(err)
	}
	return a
}

type enqueued struct {
	job   domain.JobName
	ref   domain.PoolRef
	delay time.Duration
}

// fakeQueue dedupes by job id like the real scheduler.
type fakeQueue struct {
	mu    sync.Mutex
	jobs  []enqueued
	seen  map[string]bool
	calls int
	err   error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{seen: map[string]bool{}}
}

func (q *fakeQueue) Enqueue(_ context.Context, job domain.JobName, ref domain.PoolRef, opts domain.EnqueueOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return q.err
	}
	id := opts.JobID
	if id == "" {
		id = domain.JobID(job, ref)
	}
	if q.seen[id] {
		return nil
	}
	q.seen[id] = true
	q.jobs = append(q.jobs, enqueued{job: job, ref: ref, delay: opts.Delay})
	return nil
}

func (q *fakeQueue) byName(job domain.JobName) []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []enqueued
	for _, j := range q.jobs {
		if j.job == job {
			out = append(out, j)
		}
	}
	return out
}

const (
	predictionToken = "0x00000000000000000000000000000000000000e1"
	stakeToken      = "0x00000000000000000000000000000000000000c1"
)

// fakeQuoter prices the prediction token at 100.00000000 and the stake token
// at one dollar with six decimals.
type fakeQuoter struct {
	calls       int
	predQuote   domain.PriceQuote
	stakeQuote  domain.PriceQuote
	unsupported bool
}

func newFakeQuoter() *fakeQuoter {
	return &fakeQuoter{
		predQuote:  domain.PriceQuote{Price: 10_000_000_000, Expo: -8},
		stakeQuote: domain.PriceQuote{Price: 100_000_000, Expo: -8},
	}
}

func (f *fakeQuoter) Quote(_ context.Context, c domain.Chain, address string, at int64) (domain.Token, domain.PriceQuote, error) {
	f.calls++
	if f.unsupported {
		return domain.Token{}, domain.PriceQuote{}, fmt.Errorf("token %s on %s: %w", address, c, domain.ErrUnsupportedToken)
	}
	switch strings.ToLower(address) {
	case predictionToken:
		q := f.predQuote
		q.PublishTime = at
		return domain.Token{Address: address, Symbol: "ETH", Decimals: 18}, q, nil
	case stakeToken:
		q := f.stakeQuote
		q.PublishTime = at
		return domain.Token{Address: address, Symbol: "USDC", Decimals: 6}, q, nil
	}
	return domain.Token{}, domain.PriceQuote{}, domain.ErrUnsupportedToken
}

// fakeLeaderboard applies credits exactly once like the postgres store.
type fakeLeaderboard struct {
	mu       sync.Mutex
	applied  map[string]bool
	entries  map[string]*domain.LeaderboardEntry
	credits  int
	failOnce map[string]error
}

func newFakeLeaderboard() *fakeLeaderboard {
	return &fakeLeaderboard{
		applied:  map[string]bool{},
		entries:  map[string]*domain.LeaderboardEntry{},
		failOnce: map[string]error{},
	}
}

func (f *fakeLeaderboard) Credit(_ context.Context, c domain.LeaderboardCredit) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOnce[c.Address]; ok {
		delete(f.failOnce, c.Address)
		return false, err
	}
	key := fmt.Sprintf("%s/%d/%s/%s", c.Chain, c.PoolID, c.Address, c.Kind)
	if f.applied[key] {
		return false, nil
	}
	f.applied[key] = true
	f.credits++

	e, ok := f.entries[c.Address]
	if !ok {
		e = &domain.LeaderboardEntry{Address: c.Address}
		f.entries[c.Address] = e
	}
	volXP, leftover := domain.CarryVolume(e.VolumeLeftover, c.VolumeMicroUSD)
	e.XP += c.BaseXP + volXP
	e.VolumeLeftover = leftover
	e.Predictions += c.Predictions
	e.Wins += c.Wins
	e.VolumeMicroUSD += c.VolumeMicroUSD
	e.WinningsMicroUSD += c.WinningsMicroUSD
	return true, nil
}

func (f *fakeLeaderboard) Get(_ context.Context, address string) (domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[address]
	if !ok {
		return domain.LeaderboardEntry{}, domain.ErrNotFound
	}
	return *e, nil
}

func (f *fakeLeaderboard) Top(context.Context, domain.ListOpts) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (f *fakeLeaderboard) xp(address string) int64 {
	e, err := f.Get(context.Background(), address)
	if err != nil {
		return 0
	}
	return e.XP
}

type fakeClock struct {
	touched []time.Time
}

func (c *fakeClock) Touch(_ context.Context, at time.Time) error {
	c.touched = append(c.touched, at)
	return nil
}

func (c *fakeClock) LastUpdated(context.Context) (time.Time, error) {
	if len(c.touched) == 0 {
		return time.Time{}, domain.ErrNotFound
	}
	return c.touched[len(c.touched)-1], nil
}

// fakeProgress is the scheduler's per-job counter.
type fakeProgress struct {
	cur      int
	updates  []int
	failOnce map[int]error
}

func (p *fakeProgress) Current() int { return p.cur }

func (p *fakeProgress) Update(_ context.Context, n int) error {
	if err, ok := p.failOnce[n]; ok {
		delete(p.failOnce, n)
		return err
	}
	p.cur = n
	p.updates = append(p.updates, n)
	return nil
}

type fakeAlerter struct {
	events []string
}

func (a *fakeAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.events = append(a.events, event)
	return nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fakeDiscovery struct {
	mu   sync.Mutex
	live map[domain.Chain]map[uint64]bool
}

func newFakeDiscovery() *fakeDiscovery {
	return &fakeDiscovery{live: map[domain.Chain]map[uint64]bool{}}
}

func (d *fakeDiscovery) List(_ context.Context, c domain.Chain, id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live[c] == nil {
		d.live[c] = map[uint64]bool{}
	}
	d.live[c][id] = true
	return nil
}

func (d *fakeDiscovery) Unlist(_ context.Context, c domain.Chain, id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live[c], id)
	return nil
}

func (d *fakeDiscovery) Live(_ context.Context, c domain.Chain) ([]uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []uint64
	for id := range d.live[c] {
		out = append(out, id)
	}
	return out, nil
}

type fakeCursors struct {
	mu   sync.Mutex
	vals map[string]uint64
}

func (c *fakeCursors) Get(_ context.Context, name string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vals[name], nil
}

func (c *fakeCursors) Set(_ context.Context, name string, v uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vals == nil {
		c.vals = map[string]uint64{}
	}
	c.vals[name] = v
	return nil
}

// closedSeeds closed for entries an hour ago and snapshot ten minutes ago.
func closedSeeds(stake int64, multiplier, fees uint16) domain.PoolSeeds {
	return domain.PoolSeeds{
		PredictionToken: predictionToken,
		StakeToken:      stakeToken,
		StakeAmount:     big.NewInt(stake),
		WindowCloseTime: testNow.Unix() - 3600,
		SnapshotTime:    testNow.Unix() - 600,
		FeesPercent:     fees,
		Multiplier:      multiplier,
	}
}

func testDeps(gw *fakeGateway, archives *memArchives, alerter *fakeAlerter) Deps {
	d := Deps{
		Gateways: domain.Gateways{gw.chain: gw},
		Archives: archives,
		Logger:   testLogger(),
		Now:      func() time.Time { return testNow },
	}
	if alerter != nil {
		d.Alerter = alerter
	}
	return d
}
