// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

//go:generate go run go.uber.org/mock/mockgen -package=${GOPACKAGE}mock -destination=${GOPACKAGE}mock/tx_builder.go -mock_names=TxBuilder=TxBuilder . TxBuilder
//go:generate go run go.uber.org/mock/mockgen -package=${GOPACKAGE}mock -destination=${GOPACKAGE}mock/broadcaster.go -mock_names=Broadcaster=Broadcaster . Broadcaster
//go:generate go run go.uber.org/mock/mockgen -package=${GOPACKAGE}mock -destination=${GOPACKAGE}mock/nonce_source.go -mock_names=NonceSource=NonceSource . NonceSource
