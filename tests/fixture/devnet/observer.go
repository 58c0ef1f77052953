// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stacks-network/stacks-devnet/utils/logging"
)

const (
	maxEventBodySize  = 16 * 1024 * 1024
	readHeaderTimeout = 10 * time.Second
)

// observer is the event observer endpoint stacks-node posts to. Block
// notifications are forwarded to the bus; every other path is
// acknowledged and ignored.
type observer struct {
	log    logging.Logger
	bus    *Bus
	server *http.Server
	served chan error
}

func newObserver(log logging.Logger, bus *Bus) *observer {
	o := &observer{
		log:    log,
		bus:    bus,
		served: make(chan error, 1),
	}
	router := mux.NewRouter()
	router.HandleFunc("/new_burn_block", o.handleNewBurnBlock).Methods(http.MethodPost)
	router.HandleFunc("/new_block", o.handleNewBlock).Methods(http.MethodPost)
	router.PathPrefix("/").HandlerFunc(o.acknowledge)
	o.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return o
}

// Start listens on [address] and serves in the background.
func (o *observer) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	o.log.Info("event observer listening",
		zap.String("address", listener.Addr().String()),
	)
	go func() {
		o.served <- o.server.Serve(listener)
	}()
	return nil
}

// Stop shuts the server down. Safe to call before Start.
func (o *observer) Stop(ctx context.Context) error {
	if err := o.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop event observer: %w", err)
	}
	select {
	case err := <-o.served:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

func (o *observer) handleNewBurnBlock(w http.ResponseWriter, r *http.Request) {
	var payload burnBlockPayload
	if !o.decode(w, r, &payload) {
		return
	}
	o.log.Debug("received burn block",
		zap.Uint64("height", payload.BurnBlockHeight),
	)
	o.bus.ObserveBurnBlock(sourceObserver, BurnBlock{
		Height: payload.BurnBlockHeight,
		Hash:   payload.BurnBlockHash,
	})
	w.WriteHeader(http.StatusOK)
}

func (o *observer) handleNewBlock(w http.ResponseWriter, r *http.Request) {
	var payload blockPayload
	if !o.decode(w, r, &payload) {
		return
	}
	o.log.Debug("received stacks block",
		zap.Uint64("height", payload.BlockHeight),
		zap.Uint64("burnHeight", payload.BurnBlockHeight),
		zap.Int("transactions", len(payload.Transactions)),
	)
	o.bus.ObserveStacksBlock(sourceObserver, indexBlock(o.log, &payload))
	w.WriteHeader(http.StatusOK)
}

func (o *observer) acknowledge(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxEventBodySize))
	w.WriteHeader(http.StatusOK)
}

func (o *observer) decode(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBodySize)).Decode(payload); err != nil {
		o.log.Warn("failed to decode event",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
