package escrow_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"peerescrow/core/events"
	"peerescrow/core/state"
	"peerescrow/crypto"
	escrowpkg "peerescrow/native/escrow"
	"peerescrow/storage"
)

func fill(b byte) solana.PublicKey {
	var addr solana.PublicKey
	for i := range addr {
		addr[i] = b
	}
	return addr
}

var (
	seller     = fill(0x11)
	buyer      = fill(0x22)
	arbitrator = fill(0x33)
	feeSink    = fill(0x44)
)

type stack struct {
	manager  *state.Manager
	engine   *escrowpkg.Engine
	recorder *events.Recorder
}

func newStack(t *testing.T, allocs ...state.Allocation) *stack {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	mgr := state.NewManager(db)
	_, err := mgr.ApplyGenesis(allocs)
	require.NoError(t, err)
	engine := escrowpkg.NewEngine(mgr, crypto.NewDeriver(crypto.DefaultProgramID))
	recorder := events.NewRecorder(64)
	engine.SetEmitter(recorder)
	_, err = engine.InitializeConfig(seller, escrowpkg.ConfigParams{FeeBps: 50, Arbitrator: arbitrator, FeeRecipient: feeSink})
	require.NoError(t, err)
	return &stack{manager: mgr, engine: engine, recorder: recorder}
}

func (s *stack) open(t *testing.T, orderID string, amount uint64) escrowpkg.Ref {
	t.Helper()
	_, err := s.engine.OpenEscrow(seller, escrowpkg.OpenParams{OrderID: orderID, Amount: amount, Buyer: buyer})
	require.NoError(t, err)
	return escrowpkg.Ref{Seller: seller, OrderID: orderID}
}

func TestConcurrentFundingFundsOnce(t *testing.T) {
	s := newStack(t, state.Allocation{Owner: seller, Amount: 10_000})
	ref := s.open(t, "race", 1_000)

	var ok, wrongState atomic.Int32
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := s.engine.FundEscrow(seller, ref, escrowpkg.FundParams{Amount: 1_000})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, escrowpkg.ErrWrongState):
				wrongState.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), ok.Load())
	require.Equal(t, int32(15), wrongState.Load())

	bal, err := s.engine.Balance(seller, escrowpkg.NativeCurrency)
	require.NoError(t, err)
	require.Equal(t, uint64(9_000), bal)
}

func TestConcurrentEscrowsCannotOverspend(t *testing.T) {
	s := newStack(t, state.Allocation{Owner: seller, Amount: 1_000})
	refs := []escrowpkg.Ref{s.open(t, "a", 1_000), s.open(t, "b", 1_000), s.open(t, "c", 1_000)}

	var funded atomic.Int32
	var g errgroup.Group
	for _, ref := range refs {
		g.Go(func() error {
			_, err := s.engine.FundEscrow(seller, ref, escrowpkg.FundParams{Amount: 1_000})
			if err == nil {
				funded.Add(1)
				return nil
			}
			if errors.Is(err, escrowpkg.ErrInsufficientBalance) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), funded.Load())

	bal, err := s.engine.Balance(seller, escrowpkg.NativeCurrency)
	require.NoError(t, err)
	require.Zero(t, bal)
	var created int
	for _, ref := range refs {
		esc, err := s.engine.Escrow(ref)
		require.NoError(t, err)
		if esc.Status == escrowpkg.EscrowCreated {
			created++
		}
	}
	require.Equal(t, 2, created)
}

func TestPersistentLifecycle(t *testing.T) {
	now := int64(1_700_000_000)
	s := newStack(t, state.Allocation{Owner: seller, Amount: 1_000_000_000})
	s.engine.SetNowFunc(func() int64 { return now })
	ref := s.open(t, "3968", 1_000_000_000)

	_, err := s.engine.FundEscrow(seller, ref, escrowpkg.FundParams{Amount: 1_000_000_000})
	require.NoError(t, err)
	_, err = s.engine.MarkAsPaid(buyer, ref)
	require.NoError(t, err)
	_, settlement, err := s.engine.ReleaseFunds(seller, ref)
	require.NoError(t, err)

	balanceOf := func(owner solana.PublicKey) uint64 {
		v, err := s.engine.Balance(owner, escrowpkg.NativeCurrency)
		require.NoError(t, err)
		return v
	}
	require.Equal(t, uint64(995_000_000), balanceOf(buyer))
	require.Equal(t, settlement.FeeRecipient, balanceOf(feeSink))
	require.Equal(t, settlement.Arbitrator, balanceOf(arbitrator))
	require.Zero(t, balanceOf(seller))

	addr, err := s.engine.EscrowAddress(ref)
	require.NoError(t, err)
	snap, err := s.engine.EscrowSnapshot(addr)
	require.NoError(t, err)
	require.Equal(t, escrowpkg.EscrowReleased, snap.Escrow.Status)
	require.Zero(t, snap.CustodyBalance)

	var types []string
	for _, rec := range s.recorder.Since(0, 0) {
		types = append(types, rec.Event.Type)
	}
	require.Equal(t, []string{
		escrowpkg.EventTypeConfigInitialized,
		escrowpkg.EventTypeEscrowCreated,
		escrowpkg.EventTypeEscrowFunded,
		escrowpkg.EventTypeEscrowPaid,
		escrowpkg.EventTypeEscrowReleased,
	}, types)
}
