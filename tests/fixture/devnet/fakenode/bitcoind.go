// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fakenode

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"

	"github.com/stacks-network/stacks-devnet/utils/formatting"
	"github.com/stacks-network/stacks-devnet/utils/hashing"
	"github.com/stacks-network/stacks-devnet/utils/logging"
)

const (
	regtestChain = "regtest"

	rpcInvalidAddress = -5
	rpcWalletError    = -4
	rpcInWarmup       = -28
	rpcInvalidParams  = -8

	// WarmupEnvName makes the fake bitcoind answer RPCs with an in-warmup
	// error for the given duration after start.
	WarmupEnvName = "FAKENODE_BITCOIND_WARMUP"
)

var (
	errMissingParam = errors.New("missing parameter")

	_ rpc.Codec        = (*bitcoindCodec)(nil)
	_ rpc.CodecRequest = (*bitcoindCodecRequest)(nil)
)

// BitcoindParams are the positional parameters of a bitcoind RPC.
type BitcoindParams []json.RawMessage

func (p BitcoindParams) decode(i int, v interface{}) error {
	if i >= len(p) {
		return &json2.Error{Code: rpcInvalidParams, Message: fmt.Sprintf("%s %d", errMissingParam, i)}
	}
	if err := json.Unmarshal(p[i], v); err != nil {
		return &json2.Error{Code: rpcInvalidParams, Message: err.Error()}
	}
	return nil
}

// Bitcoind serves the subset of the bitcoind RPC a devnet drives: block
// generation, chain queries and wallet setup.
type Bitcoind struct {
	log        logging.Logger
	warmupEnds time.Time

	lock    sync.Mutex
	blocks  []string
	wallets map[string]struct{}
	watched map[string]struct{}
}

func NewBitcoind(log logging.Logger, warmup time.Duration) *Bitcoind {
	return &Bitcoind{
		log:        log,
		warmupEnds: time.Now().Add(warmup),
		blocks:     []string{blockHash(nil, 0)},
		wallets:    make(map[string]struct{}),
		watched:    make(map[string]struct{}),
	}
}

func (b *Bitcoind) checkWarmup() error {
	if time.Now().Before(b.warmupEnds) {
		return &json2.Error{Code: rpcInWarmup, Message: "Loading block index..."}
	}
	return nil
}

func (b *Bitcoind) Getblockchaininfo(_ *http.Request, _ *BitcoindParams, reply *json.RawMessage) error {
	if err := b.checkWarmup(); err != nil {
		return err
	}
	b.lock.Lock()
	height := uint64(len(b.blocks) - 1)
	best := b.blocks[height]
	b.lock.Unlock()

	return marshalReply(reply, map[string]interface{}{
		"chain":         regtestChain,
		"blocks":        height,
		"headers":       height,
		"bestblockhash": best,
	})
}

func (b *Bitcoind) Getblockcount(_ *http.Request, _ *BitcoindParams, reply *json.RawMessage) error {
	if err := b.checkWarmup(); err != nil {
		return err
	}
	b.lock.Lock()
	defer b.lock.Unlock()

	return marshalReply(reply, len(b.blocks)-1)
}

func (b *Bitcoind) Getblockhash(_ *http.Request, args *BitcoindParams, reply *json.RawMessage) error {
	var height uint64
	if err := args.decode(0, &height); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if height >= uint64(len(b.blocks)) {
		return &json2.Error{Code: rpcInvalidParams, Message: "Block height out of range"}
	}
	return marshalReply(reply, b.blocks[height])
}

func (b *Bitcoind) Generatetoaddress(_ *http.Request, args *BitcoindParams, reply *json.RawMessage) error {
	var (
		n       uint64
		address string
	)
	if err := args.decode(0, &n); err != nil {
		return err
	}
	if err := args.decode(1, &address); err != nil {
		return err
	}
	if _, _, err := formatting.Base58CheckDecode(address); err != nil {
		return &json2.Error{Code: rpcInvalidAddress, Message: "Error: Invalid address"}
	}

	b.lock.Lock()
	hashes := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		height := uint64(len(b.blocks))
		hash := blockHash([]byte(b.blocks[height-1]+address), height)
		b.blocks = append(b.blocks, hash)
		hashes = append(hashes, hash)
	}
	tip := len(b.blocks) - 1
	b.lock.Unlock()

	b.log.Debug("generated blocks",
		zap.Uint64("count", n),
		zap.Int("height", tip),
	)
	return marshalReply(reply, hashes)
}

func (b *Bitcoind) Createwallet(_ *http.Request, args *BitcoindParams, reply *json.RawMessage) error {
	var name string
	if err := args.decode(0, &name); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.wallets[name]; ok {
		return &json2.Error{Code: rpcWalletError, Message: fmt.Sprintf("Wallet file verification failed. Failed to create database path '%s'. Database already exists.", name)}
	}
	b.wallets[name] = struct{}{}
	return marshalReply(reply, map[string]string{"name": name, "warning": ""})
}

func (b *Bitcoind) Importaddress(_ *http.Request, args *BitcoindParams, reply *json.RawMessage) error {
	var address string
	if err := args.decode(0, &address); err != nil {
		return err
	}
	if _, _, err := formatting.Base58CheckDecode(address); err != nil {
		return &json2.Error{Code: rpcInvalidAddress, Message: "Invalid Bitcoin address or script"}
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if len(b.wallets) == 0 {
		return &json2.Error{Code: -18, Message: "No wallet is loaded."}
	}
	b.watched[address] = struct{}{}
	*reply = json.RawMessage("null")
	return nil
}

// Handler serves the RPC API behind basic auth.
func (b *Bitcoind) Handler(username, password string) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(&bitcoindCodec{inner: json2.NewCodec()}, "application/json")
	if err := server.RegisterService(b, "Bitcoind"); err != nil {
		return nil, err
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		server.ServeHTTP(w, r)
	}), nil
}

// bitcoindCodec maps bitcoind's bare method names onto the Bitcoind
// service.
type bitcoindCodec struct {
	inner *json2.Codec
}

func (c *bitcoindCodec) NewRequest(r *http.Request) rpc.CodecRequest {
	return &bitcoindCodecRequest{CodecRequest: c.inner.NewRequest(r)}
}

type bitcoindCodecRequest struct {
	rpc.CodecRequest
}

func (r *bitcoindCodecRequest) Method() (string, error) {
	method, err := r.CodecRequest.Method()
	if err != nil {
		return "", err
	}
	if len(method) == 0 || strings.Contains(method, ".") {
		return "", fmt.Errorf("unknown method %q", method)
	}
	return "Bitcoind." + strings.ToUpper(method[:1]) + method[1:], nil
}

func marshalReply(reply *json.RawMessage, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*reply = b
	return nil
}

func blockHash(seed []byte, height uint64) string {
	h := hashing.ComputeHash256(append(seed, []byte(strconv.FormatUint(height, 10))...))
	return hex.EncodeToString(h)
}

type bitcoindFlags struct {
	rpcBind     string
	rpcPort     uint
	rpcUser     string
	rpcPassword string
}

// parseBitcoindFlags reads the -key=value arguments bitcoind accepts,
// ignoring the ones the fake has no use for.
func parseBitcoindFlags(args []string) (*bitcoindFlags, error) {
	fs := flag.NewFlagSet(BitcoindName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := &bitcoindFlags{}
	fs.StringVar(&f.rpcBind, "rpcbind", "127.0.0.1", "")
	fs.UintVar(&f.rpcPort, "rpcport", 18443, "")
	fs.StringVar(&f.rpcUser, "rpcuser", "", "")
	fs.StringVar(&f.rpcPassword, "rpcpassword", "", "")
	for _, arg := range args {
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if len(name) > 0 && fs.Lookup(name) == nil {
			fs.String(name, "", "")
		}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func runBitcoind(args []string) error {
	f, err := parseBitcoindFlags(args)
	if err != nil {
		return err
	}

	log := newLogger(BitcoindName)
	if err := failIfRequested(log, BitcoindName); err != nil {
		return err
	}
	warmup, err := warmupFromEnv()
	if err != nil {
		return err
	}

	b := NewBitcoind(log, warmup)
	handler, err := b.Handler(f.rpcUser, f.rpcPassword)
	if err != nil {
		return err
	}

	address := net.JoinHostPort(f.rpcBind, strconv.FormatUint(uint64(f.rpcPort), 10))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	log.Info("bitcoind RPC listening",
		zap.Stringer("address", listener.Addr()),
		zap.String("chain", regtestChain),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("bitcoind stopped")
	return nil
}
