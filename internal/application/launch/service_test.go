package launch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alejandrodnm/oods/internal/adapters/clock"
	"github.com/alejandrodnm/oods/internal/adapters/lock"
	"github.com/alejandrodnm/oods/internal/adapters/mint"
	"github.com/alejandrodnm/oods/internal/adapters/storage"
	"github.com/alejandrodnm/oods/internal/application/aggregate"
	"github.com/alejandrodnm/oods/internal/application/launch"
	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	start     = int64(1_000)
	authority = domain.Identity("0xauth")
	sol       = uint64(domain.LamportsPerUnit)
)

// recorder guarda los eventos publicados.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	fail   bool
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail {
		return errors.New("bus down")
	}
	return nil
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind()
	}
	return out
}

// flakyMinter falla mientras down sea true.
type flakyMinter struct {
	down  atomic.Bool
	inner *mint.Ledger
}

func (f *flakyMinter) Mint(ctx context.Context, req ports.MintRequest) error {
	if f.down.Load() {
		return errors.New("mint service unavailable")
	}
	return f.inner.Mint(ctx, req)
}

type harness struct {
	svc     *launch.Service
	store   *storage.SQLiteStorage
	custody *storage.Custody
	clock   *clock.Fixed
	minter  *flakyMinter
	events  *recorder
}

func newHarness(t *testing.T, cfg launch.Config) *harness {
	t.Helper()
	st, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{
		store:   st,
		custody: storage.NewCustody(st),
		clock:   clock.NewFixed(start),
		minter:  &flakyMinter{inner: mint.NewLedger()},
		events:  &recorder{},
	}
	h.svc = launch.New(cfg, st, h.clock, h.custody, h.minter, h.events, lock.NewLocal())
	return h
}

func (h *harness) create(t *testing.T, supply uint64) domain.Launch {
	t.Helper()
	l, err := h.svc.Create(context.Background(), domain.CreateLaunchInput{
		Authority:         authority,
		Name:              "Oods",
		Symbol:            "OODS",
		TotalSupply:       supply,
		DiscoveryDuration: 60,
		PredictDuration:   120,
	})
	require.NoError(t, err)
	return l
}

// toPredict crea un lanzamiento y lo lleva a Predict con mediana 1000.
func (h *harness) toPredict(t *testing.T, supply uint64) domain.Launch {
	t.Helper()
	ctx := context.Background()
	l := h.create(t, supply)
	_, err := h.svc.SubmitVote(ctx, l.ID, "0xv", 1_000)
	require.NoError(t, err)
	h.clock.Set(l.DiscoveryEnd)
	l, err = h.svc.AdvanceToPredict(ctx, l.ID, authority, 1_000)
	require.NoError(t, err)
	return l
}

func (h *harness) bet(t *testing.T, launchID string, who domain.Identity, breakpoint uint64, yes bool, amount uint64) domain.Bet {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.custody.Deposit(ctx, who, amount))
	b, err := h.svc.PlaceBet(ctx, launchID, who, breakpoint, yes, amount)
	require.NoError(t, err)
	return b
}

func TestService_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.create(t, 1_000_000_000_000)
	assert.Equal(t, domain.PhaseDiscovery, l.Phase)
	assert.Equal(t, start+60, l.DiscoveryEnd)
	assert.Equal(t, start+180, l.PredictEnd)

	for i, v := range []uint64{900, 1_000, 1_300} {
		_, err := h.svc.SubmitVote(ctx, l.ID, domain.Identity(fmt.Sprintf("0xv%d", i)), v)
		require.NoError(t, err)
	}

	_, err := h.svc.AdvanceToPredict(ctx, l.ID, authority, 1_000)
	assert.ErrorIs(t, err, domain.ErrPhaseNotEnded)

	h.clock.Set(l.DiscoveryEnd)
	votes, err := h.svc.ListVotes(ctx, l.ID)
	require.NoError(t, err)
	median, err := aggregate.MedianVote(votes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), median)

	_, err = h.svc.AdvanceToPredict(ctx, l.ID, "0xintruder", median)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	l, err = h.svc.AdvanceToPredict(ctx, l.ID, authority, median)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePredict, l.Phase)
	assert.Equal(t, uint32(3), l.TotalVotes)

	_, err = h.svc.SubmitVote(ctx, l.ID, "0xlate", 5)
	assert.ErrorIs(t, err, domain.ErrWrongPhase)

	alice := h.bet(t, l.ID, "0xalice", 1_000, true, sol)
	bob := h.bet(t, l.ID, "0xbob", 2_000, true, 2*sol)
	assert.Equal(t, uint16(150), alice.Multiplier)
	assert.Equal(t, uint16(150), bob.Multiplier)

	pool, err := h.custody.Pool(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*sol, pool)

	h.clock.Set(l.PredictEnd)
	_, err = h.svc.PlaceBet(ctx, l.ID, "0xalice", 1_000, true, 1)
	assert.ErrorIs(t, err, domain.ErrPhaseEnded)

	l, err = h.svc.Settle(ctx, l.ID, authority, 1_000)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSettled, l.Phase)
	assert.Equal(t, 3*sol, l.TotalLocked)

	out, err := h.svc.Claim(ctx, l.ID, alice.ID, "0xalice")
	require.NoError(t, err)
	assert.True(t, out.Minted)
	assert.Equal(t, uint16(10_000), out.Accuracy)
	assert.Equal(t, uint64(1_500_000_000), out.Tokens)
	assert.Equal(t, uint64(1_500_000_000), h.minter.inner.BalanceOf("0xalice"))

	_, err = h.svc.Claim(ctx, l.ID, alice.ID, "0xalice")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	_, err = h.svc.Claim(ctx, l.ID, bob.ID, "0xalice")
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	assert.Equal(t, []domain.EventKind{
		domain.EventLaunchCreated,
		domain.EventVoteSubmitted, domain.EventVoteSubmitted, domain.EventVoteSubmitted,
		domain.EventPredictStarted,
		domain.EventBetPlaced, domain.EventBetPlaced,
		domain.EventLaunchSettled,
		domain.EventTokensClaimed,
	}, h.events.kinds())
}

func TestService_Create_Validation(t *testing.T) {
	h := newHarness(t, launch.Config{})
	_, err := h.svc.Create(context.Background(), domain.CreateLaunchInput{
		Authority: authority, Name: "x", Symbol: "WAYTOOLONGSYMBOL", DiscoveryDuration: 60, PredictDuration: 60,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := h.svc.ListLaunches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, h.events.kinds())
}

func TestService_DuplicateVoteDoesNotCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.create(t, 1_000)

	_, err := h.svc.SubmitVote(ctx, l.ID, "0xa", 100)
	require.NoError(t, err)
	_, err = h.svc.SubmitVote(ctx, l.ID, "0xa", 200)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.TotalVotes)
}

func TestService_VoteAfterDiscoveryEnds(t *testing.T) {
	h := newHarness(t, launch.Config{})
	l := h.create(t, 1_000)
	h.clock.Set(l.DiscoveryEnd)

	_, err := h.svc.SubmitVote(context.Background(), l.ID, "0xa", 100)
	assert.ErrorIs(t, err, domain.ErrPhaseEnded)
}

func TestService_ConcurrentVotesAreAllCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.create(t, 1_000)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.SubmitVote(ctx, l.ID, domain.Identity(fmt.Sprintf("0x%02d", i)), uint64(i+1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(20), got.TotalVotes)
	votes, err := h.svc.ListVotes(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, votes, 20)
}

func TestService_MultiplierDecreasesWithLockedStake(t *testing.T) {
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000)

	first := h.bet(t, l.ID, "0xwhale", 1_000, true, 150*sol)
	second := h.bet(t, l.ID, "0xlate", 1_000, true, sol)
	assert.Equal(t, uint16(150), first.Multiplier)
	assert.Equal(t, uint16(130), second.Multiplier)

	got, err := h.svc.GetLaunch(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, 151*sol, got.TotalLocked)
}

func TestService_PlaceBet_InsufficientFundsRecordsNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000)

	_, err := h.svc.PlaceBet(ctx, l.ID, "0xbroke", 1_000, true, sol)
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	bets, err := h.svc.ListBets(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, bets)
	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalLocked)
}

func TestService_PlaceBet_ValidationBeforeEscrow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000)
	require.NoError(t, h.custody.Deposit(ctx, "0xa", 10))

	_, err := h.svc.PlaceBet(ctx, l.ID, "0xa", 0, true, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.PlaceBet(ctx, l.ID, "0xa", 10, true, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	bal, err := h.custody.Balance(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bal)
}

// failingStore hace fallar la siguiente transacción.
type failingStore struct {
	*storage.SQLiteStorage
	failNext atomic.Bool
}

func (f *failingStore) Atomic(ctx context.Context, fn func(tx ports.StoreTx) error) error {
	if f.failNext.Swap(false) {
		return errors.New("disk full")
	}
	return f.SQLiteStorage.Atomic(ctx, fn)
}

// crashingStore ejecuta fn sobre una transacción real y la descarta antes del
// commit, como si el proceso muriera en ese punto.
type crashingStore struct {
	*storage.SQLiteStorage
}

func (c *crashingStore) Atomic(ctx context.Context, fn func(tx ports.StoreTx) error) error {
	return c.SQLiteStorage.Atomic(ctx, func(tx ports.StoreTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errors.New("killed before commit")
	})
}

func TestService_PlaceBet_EscrowRollsBackWithBet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000)

	svc := launch.New(launch.Config{}, &crashingStore{h.store}, h.clock, h.custody, h.minter, h.events, lock.NewLocal())
	require.NoError(t, h.custody.Deposit(ctx, "0xa", 5*sol))

	_, err := svc.PlaceBet(ctx, l.ID, "0xa", 1_000, true, 2*sol)
	assert.ErrorContains(t, err, "killed before commit")

	bal, err := h.custody.Balance(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, 5*sol, bal)
	pool, err := h.custody.Pool(ctx, l.ID)
	require.NoError(t, err)
	assert.Zero(t, pool)

	bets, err := h.svc.ListBets(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, bets)
	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalLocked)
}

// railOnly oculta EscrowTx para forzar el camino escrow + reembolso.
type railOnly struct {
	ports.PaymentRail
}

func TestService_PlaceBet_RefundsWhenCommitFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000)

	fs := &failingStore{SQLiteStorage: h.store}
	svc := launch.New(launch.Config{}, fs, h.clock, railOnly{h.custody}, h.minter, h.events, lock.NewLocal())
	require.NoError(t, h.custody.Deposit(ctx, "0xa", 5*sol))

	fs.failNext.Store(true)
	_, err := svc.PlaceBet(ctx, l.ID, "0xa", 1_000, true, 2*sol)
	assert.ErrorContains(t, err, "disk full")

	bal, err := h.custody.Balance(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, 5*sol, bal)
	pool, err := h.custody.Pool(ctx, l.ID)
	require.NoError(t, err)
	assert.Zero(t, pool)

	bets, err := svc.ListBets(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, bets)
}

func TestService_ConcurrentBetsMatchCustody(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000)

	const n = 12
	for i := range n {
		require.NoError(t, h.custody.Deposit(ctx, domain.Identity(fmt.Sprintf("0xb%02d", i)), uint64(i+1)*sol))
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			who := domain.Identity(fmt.Sprintf("0xb%02d", i))
			_, err := h.svc.PlaceBet(ctx, l.ID, who, 1_000, i%2 == 0, uint64(i+1)*sol)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	bets, err := h.svc.ListBets(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, bets, n)
	var sum uint64
	for _, b := range bets {
		sum += b.Amount
	}
	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	pool, err := h.custody.Pool(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(n*(n+1)/2)*sol, sum)
	assert.Equal(t, sum, got.TotalLocked)
	assert.Equal(t, sum, pool)
}

func TestService_ClaimBeforeSettle(t *testing.T) {
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000)
	b := h.bet(t, l.ID, "0xa", 1_000, true, sol)

	_, err := h.svc.Claim(context.Background(), l.ID, b.ID, "0xa")
	assert.ErrorIs(t, err, domain.ErrWrongPhase)
}

func TestService_SettleRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000)

	_, err := h.svc.Settle(ctx, l.ID, authority, 1_000)
	assert.ErrorIs(t, err, domain.ErrPhaseNotEnded)

	h.clock.Set(l.PredictEnd)
	_, err = h.svc.Settle(ctx, l.ID, authority, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.Settle(ctx, l.ID, "0xother", 1_000)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = h.svc.Settle(ctx, l.ID, authority, 1_000)
	require.NoError(t, err)
	_, err = h.svc.Settle(ctx, l.ID, authority, 2_000)
	assert.ErrorIs(t, err, domain.ErrWrongPhase)

	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	v, ok := got.SettlementValue()
	require.True(t, ok)
	assert.Equal(t, uint64(1_000), v)
}

func TestService_UnknownLaunch(t *testing.T) {
	h := newHarness(t, launch.Config{})
	_, err := h.svc.SubmitVote(context.Background(), "missing", "0xa", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func settledWithBets(t *testing.T, h *harness, supply uint64, n int) (domain.Launch, []domain.Bet) {
	t.Helper()
	l := h.toPredict(t, supply)
	var bets []domain.Bet
	for i := range n {
		bets = append(bets, h.bet(t, l.ID, domain.Identity(fmt.Sprintf("0xb%d", i)), 1_000, true, sol))
	}
	h.clock.Set(l.PredictEnd)
	l, err := h.svc.Settle(context.Background(), l.ID, authority, 1_000)
	require.NoError(t, err)
	return l, bets
}

func TestService_CapPool_EachClaimCappedAtFullPool(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{CapMode: domain.CapPool})
	l, bets := settledWithBets(t, h, 1_000, 2)

	for _, b := range bets {
		out, err := h.svc.Claim(ctx, l.ID, b.ID, b.Bettor)
		require.NoError(t, err)
		assert.Equal(t, uint64(800), out.Tokens)
	}
	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_600), got.TotalDistributed)
}

func TestService_CapRemaining_NeverExceedsPool(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{CapMode: domain.CapRemaining})
	l, bets := settledWithBets(t, h, 1_000, 2)

	first, err := h.svc.Claim(ctx, l.ID, bets[0].ID, bets[0].Bettor)
	require.NoError(t, err)
	second, err := h.svc.Claim(ctx, l.ID, bets[1].ID, bets[1].Bettor)
	require.NoError(t, err)

	assert.Equal(t, uint64(800), first.Tokens)
	assert.Zero(t, second.Tokens)
	assert.True(t, second.Minted)
}

func TestService_ConcurrentClaimsPayOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l, bets := settledWithBets(t, h, 1_000_000_000_000, 1)
	b := bets[0]

	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		claimed atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Claim(ctx, l.ID, b.ID, b.Bettor)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrAlreadyClaimed):
				claimed.Add(1)
			default:
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(9), claimed.Load())

	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), got.TotalDistributed)
	assert.Equal(t, uint64(1_500_000_000), h.minter.inner.BalanceOf(b.Bettor))
}

func TestService_ClaimHugeStakeGetsPool(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l := h.toPredict(t, 1_000_000)

	const whale = uint64(13_000_000_000_000_000_000)
	b := h.bet(t, l.ID, "0xwhale", 1_000, true, whale)
	h.clock.Set(l.PredictEnd)
	_, err := h.svc.Settle(ctx, l.ID, authority, 1_000)
	require.NoError(t, err)

	out, err := h.svc.Claim(ctx, l.ID, b.ID, "0xwhale")
	require.NoError(t, err)
	assert.Equal(t, uint64(800_000), out.Tokens)
	assert.True(t, out.Minted)
}

func TestService_MintFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	l, bets := settledWithBets(t, h, 1_000_000_000_000, 3)

	h.minter.down.Store(true)
	for _, b := range bets {
		out, err := h.svc.Claim(ctx, l.ID, b.ID, b.Bettor)
		require.NoError(t, err)
		assert.False(t, out.Minted)
	}

	n, err := h.svc.RetryMints(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)

	h.minter.down.Store(false)
	n, err = h.svc.RetryMints(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, b := range bets {
		assert.Equal(t, uint64(1_500_000_000), h.minter.inner.BalanceOf(b.Bettor))
	}

	n, err = h.svc.RetryMints(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_NotifierFailureDoesNotUndoCommit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, launch.Config{})
	h.events.fail = true

	l := h.create(t, 1_000)
	_, err := h.svc.SubmitVote(ctx, l.ID, "0xa", 10)
	require.NoError(t, err)

	got, err := h.svc.GetLaunch(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.TotalVotes)
}
