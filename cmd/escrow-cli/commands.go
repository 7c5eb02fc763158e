package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"peerescrow/crypto"
	"peerescrow/native/escrow"
	"peerescrow/rpc"
)

// maxValidity matches the daemon's default request age limit.
const maxValidity = 10 * time.Minute

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage())
	}
	return fs
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	if len(err.Data) > 0 {
		fmt.Fprintf(w, "%s\n", err.Data)
	}
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	if _, err := w.Write(result); err == nil && result[len(result)-1] != '\n' {
		fmt.Fprintln(w)
	}
}

func call(method string, params interface{}, stdout, stderr io.Writer) int {
	result, rpcErr, err := escrowRPCCall(method, params)
	if err != nil {
		fmt.Fprintf(stderr, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := readPassphrase()
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", path, err)
	}
	return crypto.LoadFromKeystore(path, pass)
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "wallet.json", "destination key file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pass, err := readPassphrase()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Saved key to %s\n", *out)
	fmt.Fprintf(stdout, "Address: %s\n", key.Address())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyPath := fs.String("key", "", "key file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.Address())
	return 0
}

type submitFlags struct {
	key          string
	feePayerKey  string
	program      string
	seller       string
	order        string
	amount       uint64
	mint         string
	buyer        string
	partner      string
	arbitrator   string
	feeRecipient string
	winner       string
	feeBps       uint
	timeout      uint64
	automatic    bool
	fromPool     bool
	nonce        uint64
	ttl          time.Duration
}

func runSubmit(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return printError(stderr, "operation name required, e.g. submit openEscrow --key seller.json ...")
	}
	op, err := escrow.ParseOp(args[0])
	if err != nil {
		return printError(stderr, err.Error())
	}
	fs := newFlagSet("submit", stderr)
	var f submitFlags
	fs.StringVar(&f.key, "key", "", "caller key file")
	fs.StringVar(&f.feePayerKey, "fee-payer-key", "", "optional fee payer key file")
	fs.StringVar(&f.program, "program", crypto.DefaultProgramID.String(), "escrow program id")
	fs.StringVar(&f.seller, "seller", "", "seller address (defaults to the caller)")
	fs.StringVar(&f.order, "order", "", "order id")
	fs.Uint64Var(&f.amount, "amount", 0, "amount in base units")
	fs.StringVar(&f.mint, "mint", "", "token mint, empty for native")
	fs.StringVar(&f.buyer, "buyer", "", "buyer address")
	fs.StringVar(&f.partner, "partner", "", "referring partner address")
	fs.StringVar(&f.arbitrator, "arbitrator", "", "arbitrator address")
	fs.StringVar(&f.feeRecipient, "fee-recipient", "", "fee recipient address")
	fs.StringVar(&f.winner, "winner", "", "dispute winner address")
	fs.UintVar(&f.feeBps, "fee-bps", 0, "fee in basis points")
	fs.Uint64Var(&f.timeout, "timeout", 0, "buyer payment timeout in seconds")
	fs.BoolVar(&f.automatic, "automatic", false, "fund on open")
	fs.BoolVar(&f.fromPool, "from-pool", false, "fund from the seller pool")
	fs.Uint64Var(&f.nonce, "nonce", 0, "request nonce (defaults to the current time)")
	fs.DurationVar(&f.ttl, "ttl", time.Minute, "how long the signed request stays valid")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	params, err := buildSubmit(op, f)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return call("escrow_submit", params, stdout, stderr)
}

func buildSubmit(op escrow.Op, f submitFlags) (rpc.SubmitParams, error) {
	if f.ttl <= 0 || f.ttl > maxValidity {
		return rpc.SubmitParams{}, fmt.Errorf("--ttl must be within (0, %s]", maxValidity)
	}
	if f.feeBps > escrow.MaxFeeBps {
		return rpc.SubmitParams{}, fmt.Errorf("--fee-bps must be <= %d", escrow.MaxFeeBps)
	}
	program, err := crypto.ParseAddress(f.program)
	if err != nil {
		return rpc.SubmitParams{}, fmt.Errorf("--program: %w", err)
	}
	key, err := loadKey(f.key)
	if err != nil {
		return rpc.SubmitParams{}, err
	}
	now := escrowNow()
	req := escrow.Request{
		Op:             op,
		Caller:         key.Address(),
		OrderID:        f.order,
		Amount:         f.amount,
		FeeBps:         uint32(f.feeBps),
		TimeoutSeconds: f.timeout,
		Automatic:      f.automatic,
		FromPool:       f.fromPool,
		Nonce:          f.nonce,
		ValidUntil:     now.Add(f.ttl).Unix(),
	}
	if req.Nonce == 0 {
		req.Nonce = uint64(now.UnixNano())
	}
	if f.seller == "" {
		f.seller = key.Address().String()
	}
	fields := []struct {
		flag  string
		value string
		dst   *solana.PublicKey
	}{
		{"seller", f.seller, &req.Seller},
		{"mint", f.mint, &req.Mint},
		{"buyer", f.buyer, &req.Buyer},
		{"partner", f.partner, &req.Partner},
		{"arbitrator", f.arbitrator, &req.Arbitrator},
		{"fee-recipient", f.feeRecipient, &req.FeeRecipient},
		{"winner", f.winner, &req.Winner},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		addr, err := crypto.ParseAddress(field.value)
		if err != nil {
			return rpc.SubmitParams{}, fmt.Errorf("--%s: %w", field.flag, err)
		}
		*field.dst = addr
	}
	keys := []*crypto.PrivateKey{key}
	if f.feePayerKey != "" {
		payer, err := loadKey(f.feePayerKey)
		if err != nil {
			return rpc.SubmitParams{}, err
		}
		req.FeePayer = payer.Address()
		keys = append(keys, payer)
	}
	signed, err := escrow.SignRequest(program, req, keys...)
	if err != nil {
		return rpc.SubmitParams{}, err
	}
	return rpc.EncodeSubmitParams(signed), nil
}

func runGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get", stderr)
	address := fs.String("address", "", "escrow address")
	seller := fs.String("seller", "", "seller address")
	order := fs.String("order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *address == "" && (*seller == "" || *order == "") {
		return printError(stderr, "--address or both --seller and --order are required")
	}
	params := map[string]string{"address": *address, "seller": *seller, "orderId": *order}
	return call("escrow_getEscrow", params, stdout, stderr)
}

func runConfig(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("config", stderr)
	address := fs.String("address", "", "config address")
	seller := fs.String("seller", "", "seller address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *address == "" && *seller == "" {
		return printError(stderr, "--address or --seller is required")
	}
	return call("escrow_getConfig", map[string]string{"address": *address, "seller": *seller}, stdout, stderr)
}

func runDerive(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("derive", stderr)
	seller := fs.String("seller", "", "seller address")
	order := fs.String("order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *seller == "" {
		return printError(stderr, "--seller is required")
	}
	return call("escrow_deriveAddress", map[string]string{"seller": *seller, "orderId": *order}, stdout, stderr)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	owner := fs.String("owner", "", "account owner")
	currency := fs.String("currency", "native", "native or a token mint")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *owner == "" {
		return printError(stderr, "--owner is required")
	}
	return call("escrow_getBalance", map[string]string{"owner": *owner, "currency": *currency}, stdout, stderr)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	after := fs.String("after", "0", "only events with a greater sequence")
	limit := fs.Int("limit", 100, "maximum events to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	seq, err := strconv.ParseUint(*after, 10, 64)
	if err != nil {
		return printError(stderr, "--after must be an unsigned integer")
	}
	return call("escrow_listEvents", map[string]interface{}{"after": seq, "limit": *limit}, stdout, stderr)
}
