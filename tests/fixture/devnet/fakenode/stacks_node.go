// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fakenode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stacks-network/stacks-devnet/utils/logging"
	"github.com/stacks-network/stacks-devnet/utils/rpc"
)

const (
	burnPollInterval    = 50 * time.Millisecond
	observerRetryDelay  = 100 * time.Millisecond
	observerPostTimeout = 5 * time.Second
	maxTransactionSize  = 2 * 1024 * 1024
	readHeaderTimeout   = 10 * time.Second

	peerVersion       = 0xfacade01
	testnetNetworkID  = 0x80000000
	rewardCycleLength = 10
	poxMinAmountUstx  = 125_000_000_000
	bootAddress       = "ST000000000000000000002AMW42H"
)

var errUsage = errors.New("usage: stacks-node start --config <path>")

// stacksNodeConfig is the part of Config.toml the fake reads.
type stacksNodeConfig struct {
	Node struct {
		WorkingDir string `toml:"working_dir"`
		RPCBind    string `toml:"rpc_bind"`
	} `toml:"node"`
	Burnchain struct {
		PeerHost       string       `toml:"peer_host"`
		Username       string       `toml:"username"`
		Password       string       `toml:"password"`
		RPCPort        uint16       `toml:"rpc_port"`
		Pox2Activation uint64       `toml:"pox_2_activation"`
		Epochs         []epochEntry `toml:"epochs"`
	} `toml:"burnchain"`
	UstxBalance []struct {
		Address string `toml:"address"`
		Amount  uint64 `toml:"amount"`
	} `toml:"ustx_balance"`
	EventsObserver []struct {
		Endpoint string `toml:"endpoint"`
	} `toml:"events_observer"`
}

type epochEntry struct {
	EpochName   string `toml:"epoch_name"`
	StartHeight uint64 `toml:"start_height"`
}

type stacksNode struct {
	log       logging.Logger
	config    *stacksNodeConfig
	chain     *chain
	bitcoind  rpc.EndpointRequester
	observers []string
	client    *http.Client
}

func runStacksNode(args []string) error {
	fs := pflag.NewFlagSet(StacksNodeName, pflag.ContinueOnError)
	configPath := fs.String("config", "", "The path to Config.toml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.Arg(0) != "start" || len(*configPath) == 0 {
		return errUsage
	}

	config := &stacksNodeConfig{}
	if _, err := toml.DecodeFile(*configPath, config); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	epochs, err := parseEpochs(config.Burnchain.Epochs)
	if err != nil {
		return err
	}
	balances := make(map[string]uint64, len(config.UstxBalance))
	for _, b := range config.UstxBalance {
		balances[b.Address] = b.Amount
	}

	log := newLogger(StacksNodeName)
	if err := failIfRequested(log, StacksNodeName); err != nil {
		return err
	}

	node := &stacksNode{
		log:    log,
		config: config,
		chain:  newChain(epochs, balances),
		bitcoind: rpc.NewEndpointRequester(
			"http://"+net.JoinHostPort(config.Burnchain.PeerHost, strconv.Itoa(int(config.Burnchain.RPCPort))),
			rpc.WithBasicAuth(config.Burnchain.Username, config.Burnchain.Password),
		),
		client: &http.Client{Timeout: observerPostTimeout},
	}
	for _, o := range config.EventsObserver {
		node.observers = append(node.observers, "http://"+o.Endpoint)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return node.run(ctx)
}

func (n *stacksNode) run(ctx context.Context) error {
	listener, err := net.Listen("tcp", n.config.Node.RPCBind)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.config.Node.RPCBind, err)
	}
	server := &http.Server{
		Handler:           n.router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	n.log.Info("RPC server listening",
		zap.Stringer("address", listener.Addr()),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		n.followBurnchain(ctx)
		return nil
	})
	err = eg.Wait()
	n.log.Info("stacks-node stopped")
	return err
}

func (n *stacksNode) router() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/v2/info", n.handleInfo).Methods(http.MethodGet)
	router.HandleFunc("/v2/pox", n.handlePox).Methods(http.MethodGet)
	router.HandleFunc("/v2/accounts/{principal}", n.handleAccount).Methods(http.MethodGet)
	router.HandleFunc("/v2/transactions", n.handleTransaction).Methods(http.MethodPost)
	return router
}

func (n *stacksNode) handleInfo(w http.ResponseWriter, _ *http.Request) {
	tip := n.chain.tip()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer_version":      peerVersion,
		"network_id":        testnetNetworkID,
		"server_version":    "stacks-node fake",
		"burn_block_height": tip.burnHeight,
		"stacks_tip_height": tip.stacksHeight,
		"stacks_tip":        tip.stacksTip,
	})
}

func (n *stacksNode) handlePox(w http.ResponseWriter, _ *http.Request) {
	tip := n.chain.tip()
	contract := bootAddress + ".pox"
	if activation := n.config.Burnchain.Pox2Activation; activation != 0 && tip.burnHeight >= activation {
		contract = bootAddress + ".pox-2"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contract_id":                    contract,
		"first_burnchain_block_height":   0,
		"current_burnchain_block_height": tip.burnHeight,
		"reward_cycle_length":            rewardCycleLength,
		"reward_cycle_id":                tip.burnHeight / rewardCycleLength,
		"min_amount_ustx":                poxMinAmountUstx,
	})
}

func (n *stacksNode) handleAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.chain.accountInfo(mux.Vars(r)["principal"]))
}

func (n *stacksNode) handleTransaction(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxTransactionSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	txID, err := n.chain.submit(raw)
	var rejected *rejection
	switch {
	case errors.As(err, &rejected):
		n.log.Info("transaction rejected",
			zap.String("txid", rejected.TxID),
			zap.String("reason", rejected.Reason),
			zap.String("error", rejected.Message),
		)
		writeJSON(w, http.StatusBadRequest, rejected)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		n.log.Info("transaction accepted",
			zap.Stringer("txid", txID),
		)
		writeJSON(w, http.StatusOK, txID.String())
	}
}

// followBurnchain polls bitcoind and processes every new burn block in
// height order.
func (n *stacksNode) followBurnchain(ctx context.Context) {
	ticker := time.NewTicker(burnPollInterval)
	defer ticker.Stop()

	var processed uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var count uint64
		if err := n.bitcoind.SendRequest(ctx, "getblockcount", []interface{}{}, &count); err != nil {
			n.log.Debug("failed to poll bitcoind", zap.Error(err))
			continue
		}
		if processed == 0 && count > 0 {
			// Start from the current tip rather than replaying genesis
			processed = count - 1
		}
		for height := processed + 1; height <= count; height++ {
			var hash string
			if err := n.bitcoind.SendRequest(ctx, "getblockhash", []interface{}{height}, &hash); err != nil {
				n.log.Debug("failed to read burn block hash", zap.Uint64("height", height), zap.Error(err))
				break
			}
			burn, block := n.chain.processBurnBlock(height, hash, uint64(time.Now().Unix()))
			n.log.Info("processed burn block",
				zap.Uint64("burnHeight", height),
				zap.Bool("stacksBlock", block != nil),
			)
			n.notify(ctx, "/new_burn_block", burn)
			if block != nil {
				n.notify(ctx, "/new_block", block)
			}
			processed = height
		}
	}
}

// notify delivers [payload] to every observer, retrying until it is
// acknowledged or [ctx] ends.
func (n *stacksNode) notify(ctx context.Context, path string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("failed to encode event", zap.Error(err))
		return
	}
	for _, observer := range n.observers {
		for {
			err := n.post(ctx, observer+path, body)
			if err == nil {
				break
			}
			n.log.Debug("failed to notify observer",
				zap.String("url", observer+path),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(observerRetryDelay):
			}
		}
	}
}

func (n *stacksNode) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	//nolint:bodyclose // body is closed via CleanlyCloseBody
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer rpc.CleanlyCloseBody(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("observer answered %d", resp.StatusCode)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newLogger(name string) logging.Logger {
	return logging.NewLogger(name, logging.NewWrappedCore(logging.Info, os.Stdout, logging.Plain.ConsoleEncoder()))
}
