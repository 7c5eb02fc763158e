package escrow

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"peerescrow/crypto"
)

// Op names a state transition.
type Op uint8

const (
	OpInitializeConfig Op = iota + 1
	OpOpenEscrow
	OpFundEscrow
	OpMarkAsPaid
	OpReleaseFunds
	OpCancelEscrow
	OpOpenDispute
	OpResolveDispute
	OpDepositToPool
	OpWithdrawFromPool
)

var opNames = map[Op]string{
	OpInitializeConfig: "initializeConfig",
	OpOpenEscrow:       "openEscrow",
	OpFundEscrow:       "fundEscrow",
	OpMarkAsPaid:       "markAsPaid",
	OpReleaseFunds:     "releaseFunds",
	OpCancelEscrow:     "cancelEscrow",
	OpOpenDispute:      "openDispute",
	OpResolveDispute:   "resolveDispute",
	OpDepositToPool:    "depositToPool",
	OpWithdrawFromPool: "withdrawFromPool",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp resolves an operation by its name, ignoring case.
func ParseOp(name string) (Op, error) {
	trimmed := strings.TrimSpace(name)
	for op, n := range opNames {
		if strings.EqualFold(n, trimmed) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}

// signingDomain prefixes every signed payload so signatures cannot be
// replayed against other message types.
const signingDomain = "peerescrow:request:v1"

// Request is a named transition. Fields that an operation does not use must
// be left zero. Caller must produce a proof; FeePayer, when set, must too,
// but gains no authority over the escrow.
type Request struct {
	Op             Op
	Caller         solana.PublicKey
	FeePayer       solana.PublicKey
	Seller         solana.PublicKey
	OrderID        string
	Amount         uint64
	Mint           solana.PublicKey
	Buyer          solana.PublicKey
	Partner        solana.PublicKey
	Arbitrator     solana.PublicKey
	FeeRecipient   solana.PublicKey
	Winner         solana.PublicKey
	FeeBps         uint32
	TimeoutSeconds uint64
	Automatic      bool
	FromPool       bool
	Nonce          uint64
	ValidUntil     int64
}

// SigningBytes returns the canonical payload signed by every proof.
func (r Request) SigningBytes(program solana.PublicKey) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(signingDomain)
	buf.Write(program.Bytes())
	if err := bin.NewBorshEncoder(buf).Encode(&r); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return buf.Bytes(), nil
}

// Ref returns the escrow targeted by the request.
func (r Request) Ref() Ref { return Ref{Seller: r.Seller, OrderID: r.OrderID} }

// SignedRequest pairs a request with its authorization proofs.
type SignedRequest struct {
	Request Request
	Proofs  []crypto.Proof
}

// SignRequest signs req with every key and returns the bundle.
func SignRequest(program solana.PublicKey, req Request, keys ...*crypto.PrivateKey) (SignedRequest, error) {
	msg, err := req.SigningBytes(program)
	if err != nil {
		return SignedRequest{}, err
	}
	out := SignedRequest{Request: req}
	for _, key := range keys {
		proof, err := crypto.SignProof(key, msg)
		if err != nil {
			return SignedRequest{}, err
		}
		out.Proofs = append(out.Proofs, proof)
	}
	return out, nil
}

// Result is the outcome of a dispatched request. Only the fields relevant to
// the operation are set.
type Result struct {
	Op         Op
	Config     *SellerConfig
	Escrow     *Escrow
	Settlement *Settlement
}

// Dispatcher authenticates signed requests and routes them to the engine.
type Dispatcher struct {
	engine *Engine
	maxAge time.Duration

	mu   sync.Mutex
	seen map[[32]byte]int64
}

// DefaultMaxRequestAge bounds how far in the future ValidUntil may lie.
const DefaultMaxRequestAge = 10 * time.Minute

// NewDispatcher returns a dispatcher in front of engine.
func NewDispatcher(engine *Engine, maxAge time.Duration) *Dispatcher {
	if maxAge <= 0 {
		maxAge = DefaultMaxRequestAge
	}
	return &Dispatcher{engine: engine, maxAge: maxAge, seen: make(map[[32]byte]int64)}
}

// Authenticate verifies every proof, checks the validity window and returns
// the payload digest. It does not consult or update the replay set.
func (d *Dispatcher) Authenticate(req SignedRequest) ([32]byte, error) {
	var digest [32]byte
	now := d.engine.now()
	r := req.Request
	if r.ValidUntil <= now {
		return digest, fmt.Errorf("%w: valid until %d, now %d", ErrRequestExpired, r.ValidUntil, now)
	}
	if r.ValidUntil-now > int64(d.maxAge/time.Second) {
		return digest, fmt.Errorf("%w: validity window exceeds %s", ErrUnauthorized, d.maxAge)
	}
	if r.Caller.IsZero() {
		return digest, fmt.Errorf("%w: missing caller", ErrUnauthorized)
	}
	msg, err := r.SigningBytes(d.engine.deriver.ProgramID())
	if err != nil {
		return digest, err
	}
	signed := make(map[solana.PublicKey]bool, len(req.Proofs))
	for _, proof := range req.Proofs {
		if err := proof.Verify(msg); err != nil {
			return digest, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		signed[proof.Signer] = true
	}
	if !signed[r.Caller] {
		return digest, fmt.Errorf("%w: no proof from caller %s", ErrUnauthorized, r.Caller)
	}
	if !r.FeePayer.IsZero() && !signed[r.FeePayer] {
		return digest, fmt.Errorf("%w: no proof from fee payer %s", ErrUnauthorized, r.FeePayer)
	}
	return sha256.Sum256(msg), nil
}

func (d *Dispatcher) reserve(digest [32]byte, validUntil, now int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, exp := range d.seen {
		if exp <= now {
			delete(d.seen, k)
		}
	}
	if _, dup := d.seen[digest]; dup {
		return false
	}
	d.seen[digest] = validUntil
	return true
}

func (d *Dispatcher) release(digest [32]byte) {
	d.mu.Lock()
	delete(d.seen, digest)
	d.mu.Unlock()
}

// Submit authenticates req and executes it. A request that succeeded once
// is rejected if submitted again inside its validity window.
func (d *Dispatcher) Submit(req SignedRequest) (*Result, error) {
	digest, err := d.Authenticate(req)
	if err != nil {
		return nil, err
	}
	if !d.reserve(digest, req.Request.ValidUntil, d.engine.now()) {
		return nil, fmt.Errorf("%w: request already submitted", ErrUnauthorized)
	}
	res, err := d.execute(req.Request)
	if err != nil {
		d.release(digest)
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) execute(r Request) (*Result, error) {
	e := d.engine
	caller := r.Caller
	res := &Result{Op: r.Op}
	var err error
	switch r.Op {
	case OpInitializeConfig:
		res.Config, err = e.InitializeConfig(caller, ConfigParams{
			FeeBps:                r.FeeBps,
			DefaultTimeoutSeconds: r.TimeoutSeconds,
			Arbitrator:            r.Arbitrator,
			FeeRecipient:          r.FeeRecipient,
		})
	case OpOpenEscrow:
		res.Escrow, err = e.OpenEscrow(caller, OpenParams{
			OrderID:        r.OrderID,
			Amount:         r.Amount,
			Currency:       TokenCurrency(r.Mint),
			TimeoutSeconds: r.TimeoutSeconds,
			Buyer:          r.Buyer,
			Partner:        r.Partner,
			Automatic:      r.Automatic,
			FromPool:       r.FromPool,
		})
	case OpFundEscrow:
		res.Escrow, err = e.FundEscrow(caller, r.Ref(), FundParams{
			Amount:   r.Amount,
			Currency: TokenCurrency(r.Mint),
			FromPool: r.FromPool,
		})
	case OpMarkAsPaid:
		res.Escrow, err = e.MarkAsPaid(caller, r.Ref())
	case OpReleaseFunds:
		var s Settlement
		res.Escrow, s, err = e.ReleaseFunds(caller, r.Ref())
		if err == nil {
			res.Settlement = &s
		}
	case OpCancelEscrow:
		res.Escrow, err = e.CancelEscrow(caller, r.Ref())
	case OpOpenDispute:
		res.Escrow, err = e.OpenDispute(caller, r.Ref())
	case OpResolveDispute:
		res.Escrow, err = e.ResolveDispute(caller, r.Ref(), r.Winner)
	case OpDepositToPool:
		err = e.DepositToPool(caller, TokenCurrency(r.Mint), r.Amount)
	case OpWithdrawFromPool:
		err = e.WithdrawFromPool(caller, TokenCurrency(r.Mint), r.Amount)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownOperation, r.Op)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
