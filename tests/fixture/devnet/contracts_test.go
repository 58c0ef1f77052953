// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/stacks"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet"
	"github.com/stacks-network/stacks-devnet/tests/fixture/devnet/devnetmock"
	"github.com/stacks-network/stacks-devnet/utils/logging"
)

const counterSource = `(define-data-var count uint u0)
(define-public (increment) (begin (var-set count (+ (var-get count) u1)) (ok (var-get count))))`

type contractsFixture struct {
	bus         *devnet.Bus
	contracts   *devnet.Contracts
	builder     *devnetmock.TxBuilder
	broadcaster *devnetmock.Broadcaster
	nonces      *devnetmock.NonceSource
	deployer    *devnet.Account
}

func newContractsFixture(t *testing.T) *contractsFixture {
	return newContractsFixtureWithTimeout(t, 5*time.Second)
}

func newContractsFixtureWithTimeout(t *testing.T, waitTimeout time.Duration) *contractsFixture {
	ctrl := gomock.NewController(t)
	metrics, err := devnet.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	epochs := devnet.DefaultEpochConfig()
	bus := devnet.NewBus(logging.NoLog{}, epochs, nil, metrics)
	t.Cleanup(bus.Close)

	f := &contractsFixture{
		bus:         bus,
		builder:     devnetmock.NewTxBuilder(ctrl),
		broadcaster: devnetmock.NewBroadcaster(ctrl),
		nonces:      devnetmock.NewNonceSource(ctrl),
		deployer:    devnet.DefaultAccounts()[0],
	}
	f.contracts = devnet.NewContracts(
		logging.NoLog{},
		devnet.NewChainWatcher(bus, epochs, waitTimeout),
		f.nonces,
		f.builder,
		f.broadcaster,
	)
	return f
}

// include confirms [tx] in a stacks block with [result].
func (f *contractsFixture) include(tx *stacks.Transaction, height uint64, result string) {
	txID, _ := tx.ID()
	f.bus.ObserveStacksBlock("test", devnet.StacksBlock{
		Height:     height,
		BurnHeight: devnet.DefaultEpoch21Height + height,
		Transactions: []devnet.TransactionRecord{{
			TxID:    txID.String(),
			Sender:  f.deployer.Address,
			Result:  result,
			Success: result[:3] == "(ok",
			Status:  "success",
		}},
	})
}

func TestDeployContract(t *testing.T) {
	require := require.New(t)

	f := newContractsFixture(t)
	var built *stacks.Transaction
	gomock.InOrder(
		f.nonces.EXPECT().GetAccount(gomock.Any(), f.deployer.Address).Return(&devnet.AccountInfo{Nonce: 7}, nil),
		f.builder.EXPECT().MakeContractDeploy(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, params stacks.ContractDeployParams) (*stacks.Transaction, error) {
				require.Equal("counter", params.Name)
				require.Equal(counterSource, params.Code)
				require.Equal(stacks.ClarityUnversioned, params.ClarityVersion)
				require.Equal(uint64(7), params.TxOptions.Nonce)
				require.Equal(uint64(devnet.DefaultDeployFee), params.TxOptions.Fee)
				require.Equal(stacks.TestnetNetwork, params.TxOptions.Network)

				var err error
				built, err = stacks.MakeContractDeploy(params)
				return built, err
			},
		),
		f.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, tx *stacks.Transaction) (stacks.TxID, error) {
				f.include(tx, 1, "(ok true)")
				return tx.ID()
			},
		),
	)

	result, err := f.contracts.DeployContract(context.Background(), f.deployer, "counter", counterSource, devnet.DeployOptions{})
	require.NoError(err)
	require.True(result.OK())

	expectedID, err := built.ID()
	require.NoError(err)
	require.Equal(expectedID, result.TxID)
	require.Equal(uint64(1), result.Block.Height)
	require.Equal("(ok true)", result.Tx.Result)
}

func TestCallContractWithExplicitNonce(t *testing.T) {
	require := require.New(t)

	f := newContractsFixture(t)
	nonce := uint64(3)
	contract := f.deployer.Address + ".counter"
	f.builder.EXPECT().MakeContractCall(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params stacks.ContractCallParams) (*stacks.Transaction, error) {
			require.Equal(contract, params.Contract.ID())
			require.Equal("increment", params.Function)
			require.Len(params.Args, 1)
			require.Equal(nonce, params.TxOptions.Nonce)
			require.Equal(uint64(500), params.TxOptions.Fee)
			return stacks.MakeContractCall(params)
		},
	)
	f.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *stacks.Transaction) (stacks.TxID, error) {
			f.include(tx, 2, "(err u1)")
			return tx.ID()
		},
	)

	result, err := f.contracts.CallContract(
		context.Background(),
		f.deployer,
		contract,
		"increment",
		[]clarity.Value{clarity.NewUInt(1)},
		devnet.CallOptions{Fee: 500, Nonce: &nonce},
	)
	require.NoError(err)
	require.False(result.OK())
	require.Equal("(err u1)", result.Tx.Result)
}

func TestContractBroadcastFailures(t *testing.T) {
	require := require.New(t)

	f := newContractsFixture(t)
	f.nonces.EXPECT().GetAccount(gomock.Any(), gomock.Any()).Return(&devnet.AccountInfo{}, nil).Times(2)
	f.builder.EXPECT().MakeContractDeploy(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params stacks.ContractDeployParams) (*stacks.Transaction, error) {
			return stacks.MakeContractDeploy(params)
		},
	).Times(2)

	rejected := &devnet.BroadcastRejected{Reason: "ContractAlreadyExists"}
	unreachable := errors.New("connection refused")
	gomock.InOrder(
		f.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Return(stacks.TxID{}, rejected),
		f.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Return(stacks.TxID{}, unreachable),
	)

	ctx := context.Background()
	_, err := f.contracts.DeployVersionedContract(ctx, f.deployer, "counter", counterSource, stacks.Clarity2, devnet.DeployOptions{})
	var gotRejected *devnet.BroadcastRejected
	require.ErrorAs(err, &gotRejected)
	require.Equal("ContractAlreadyExists", gotRejected.Reason)

	_, err = f.contracts.DeployContract(ctx, f.deployer, "counter", counterSource, devnet.DeployOptions{})
	require.ErrorIs(err, unreachable)
	require.ErrorContains(err, "failed to broadcast transaction")
}

func TestCallContractInvalidPrincipal(t *testing.T) {
	f := newContractsFixture(t)

	_, err := f.contracts.CallContract(context.Background(), f.deployer, "counter", "increment", nil, devnet.CallOptions{})
	require.ErrorContains(t, err, `invalid contract "counter"`)
}

func TestContractNonceUnavailable(t *testing.T) {
	f := newContractsFixture(t)
	unavailable := errors.New("503")
	f.nonces.EXPECT().GetAccount(gomock.Any(), f.deployer.Address).Return(nil, unavailable)

	_, err := f.contracts.DeployContract(context.Background(), f.deployer, "counter", counterSource, devnet.DeployOptions{})
	require.ErrorIs(t, err, unavailable)
}

func TestDeployContractBoundedWithoutDeadline(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/accounts/"):
			_, _ = w.Write([]byte(`{"balance":"0x3b9aca00","nonce":3}`))
		case r.URL.Path == "/v2/transactions":
			// Never answer
			<-r.Context().Done()
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	metrics, err := devnet.NewMetrics(prometheus.NewRegistry())
	require.NoError(err)
	epochs := devnet.DefaultEpochConfig()
	bus := devnet.NewBus(logging.NoLog{}, epochs, nil, metrics)
	defer bus.Close()

	client := devnet.NewStacksClient(server.URL)
	contracts := devnet.NewContracts(
		logging.NoLog{},
		devnet.NewChainWatcher(bus, epochs, 200*time.Millisecond),
		client,
		stacks.Builder{},
		client,
	)

	start := time.Now()
	_, err = contracts.DeployContract(context.Background(), devnet.DefaultAccounts()[0], "counter", counterSource, devnet.DeployOptions{})
	require.ErrorIs(err, devnet.ErrTimeout)
	require.Less(time.Since(start), 3*time.Second)

	var timeoutErr *devnet.TimeoutError
	require.ErrorAs(err, &timeoutErr)
	require.Contains(timeoutErr.Waiting, "broadcast")
}

func TestContractAccountLockBounded(t *testing.T) {
	require := require.New(t)

	f := newContractsFixtureWithTimeout(t, 200*time.Millisecond)
	f.builder.EXPECT().MakeContractDeploy(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params stacks.ContractDeployParams) (*stacks.Transaction, error) {
			return stacks.MakeContractDeploy(params)
		},
	)
	release := make(chan struct{})
	broadcasting := make(chan struct{})
	f.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *stacks.Transaction) (stacks.TxID, error) {
			close(broadcasting)
			<-release
			return stacks.TxID{}, errors.New("node went away")
		},
	)

	nonce := uint64(0)
	firstDone := make(chan error, 1)
	go func() {
		_, err := f.contracts.DeployContract(context.Background(), f.deployer, "first", counterSource, devnet.DeployOptions{Nonce: &nonce})
		firstDone <- err
	}()
	<-broadcasting

	start := time.Now()
	_, err := f.contracts.DeployContract(context.Background(), f.deployer, "second", counterSource, devnet.DeployOptions{Nonce: &nonce})
	require.ErrorIs(err, devnet.ErrTimeout)
	require.Less(time.Since(start), 3*time.Second)

	close(release)
	require.Error(<-firstDone)
}
