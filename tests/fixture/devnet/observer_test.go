// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/utils/logging"
)

func post(t *testing.T, url string, body []byte) int {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp.StatusCode
}

func TestObserverForwardsBlocks(t *testing.T) {
	require := require.New(t)

	b, _ := newTestBus(t)
	o := newObserver(logging.NoLog{}, b)
	server := httptest.NewServer(o.server.Handler)
	defer server.Close()

	sub, err := b.Subscribe("stacks block", func(e ChainEvent) bool {
		return e.Kind == KindNewStacksBlock
	}, nil)
	require.NoError(err)

	burn, err := json.Marshal(burnBlockPayload{BurnBlockHash: "0xaa", BurnBlockHeight: 100})
	require.NoError(err)
	require.Equal(http.StatusOK, post(t, server.URL+"/new_burn_block", burn))

	block, err := json.Marshal(blockPayload{
		BlockHash:       "0xbb",
		BlockHeight:     1,
		BurnBlockHash:   "0xaa",
		BurnBlockHeight: 100,
		Transactions: []txPayload{
			contractCallPayload(t, txStatusSuccess, clarity.NewOk(clarity.NewUInt(1))),
		},
	})
	require.NoError(err)
	require.Equal(http.StatusOK, post(t, server.URL+"/new_block", block))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event, err := sub.Wait(ctx)
	require.NoError(err)
	require.Equal(uint64(1), event.StacksBlock.Height)
	require.Equal("(ok u1)", event.StacksBlock.Transactions[0].Result)
	require.Equal(Epoch20, event.Epoch)
	require.Equal(uint64(100), b.BurnHeight())
}

func TestObserverAcknowledgesOtherEvents(t *testing.T) {
	require := require.New(t)

	b, _ := newTestBus(t)
	o := newObserver(logging.NoLog{}, b)
	server := httptest.NewServer(o.server.Handler)
	defer server.Close()

	for _, path := range []string{"/new_mempool_tx", "/drop_mempool_tx", "/attachments/new", "/new_microblocks"} {
		require.Equal(http.StatusOK, post(t, server.URL+path, []byte(`[]`)), path)
	}
	require.Equal(http.StatusBadRequest, post(t, server.URL+"/new_block", []byte(`{`)))
	require.Zero(b.StacksHeight())
}

func TestObserverStartStop(t *testing.T) {
	require := require.New(t)

	b, _ := newTestBus(t)
	o := newObserver(logging.NoLog{}, b)
	require.NoError(o.Start("127.0.0.1:0"))
	require.NoError(o.Stop(context.Background()))

	// Stopping an observer that never started is fine
	require.NoError(newObserver(logging.NoLog{}, b).Stop(context.Background()))
}
