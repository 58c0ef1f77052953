// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package stacks

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/stacks-network/stacks-devnet/clarity"
	"github.com/stacks-network/stacks-devnet/utils/crypto/secp256k1"
)

const (
	deployerKey     = "753b7cc01a1a2e86221266a154af739463fce51219d97e4f856cd7200c3bd2a601"
	deployerAddress = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	wallet1Address  = "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"
)

func deployer(t *testing.T) *secp256k1.PrivateKey {
	sk, err := secp256k1.ParsePrivateKeyHex(deployerKey)
	require.NoError(t, err)
	return sk
}

func contract(t *testing.T, name string) clarity.ContractPrincipal {
	c, err := clarity.ParseContractPrincipal(deployerAddress + "." + name)
	require.NoError(t, err)
	return c
}

func TestSenderAddress(t *testing.T) {
	require := require.New(t)

	sk := deployer(t)
	require.Equal(deployerAddress, TestnetNetwork.PrincipalForKey(sk.PublicKey()).Address())

	tx, err := MakeContractDeploy(ContractDeployParams{
		SenderKey: sk,
		Name:      "test-2-1",
		Code:      "(define-public (test-1) (ok true))",
	})
	require.NoError(err)
	require.Equal(deployerAddress, tx.Sender().Address())
}

func TestContractDeployRoundTrip(t *testing.T) {
	require := require.New(t)

	tx, err := MakeContractDeploy(ContractDeployParams{
		SenderKey:      deployer(t),
		Name:           "test-2-1",
		Code:           "(define-public (test-1) (ok (buff-to-uint-be 0x01)))",
		ClarityVersion: Clarity2,
		TxOptions:      TxOptions{Nonce: 3, Fee: 2000},
	})
	require.NoError(err)
	require.Equal(PayloadVersionedSmartContract, tx.Payload.Type())

	b, err := Marshal(tx)
	require.NoError(err)
	parsed, err := Unmarshal(b)
	require.NoError(err)
	require.Empty(cmp.Diff(tx, parsed))

	id, err := tx.ID()
	require.NoError(err)
	parsedID, err := parsed.ID()
	require.NoError(err)
	require.Equal(id, parsedID)

	pk, err := parsed.VerifyOrigin()
	require.NoError(err)
	require.Equal(deployer(t).PublicKey().Bytes(), pk.Bytes())
}

func TestContractCallRoundTrip(t *testing.T) {
	require := require.New(t)

	tx, err := MakeContractCall(ContractCallParams{
		SenderKey: deployer(t),
		Contract:  contract(t, "test-2-1"),
		Function:  "transfer",
		Args:      []clarity.Value{clarity.NewUInt(1), clarity.Buffer{0x01}, clarity.NewSome(clarity.Bool(true))},
		TxOptions: TxOptions{Nonce: 1, Fee: 300},
	})
	require.NoError(err)

	b, err := Marshal(tx)
	require.NoError(err)
	parsed, err := Unmarshal(b)
	require.NoError(err)

	call, ok := parsed.Payload.(*ContractCall)
	require.True(ok)
	require.Equal("transfer", call.Function)
	require.Len(call.Args, 3)
	require.Equal("(some true)", call.Args[2].String())
	_, err = parsed.VerifyOrigin()
	require.NoError(err)
}

func TestVerifyOriginDetectsTampering(t *testing.T) {
	require := require.New(t)

	tx, err := MakeContractCall(ContractCallParams{
		SenderKey: deployer(t),
		Contract:  contract(t, "test-2-1"),
		Function:  "test-1",
		TxOptions: TxOptions{Fee: 300},
	})
	require.NoError(err)

	tx.Auth.Origin.Fee = 1
	_, err = tx.VerifyOrigin()
	require.ErrorIs(err, ErrInvalidSignature)
}

func TestSignOriginWrongKey(t *testing.T) {
	require := require.New(t)

	tx, err := MakeContractCall(ContractCallParams{
		SenderKey: deployer(t),
		Contract:  contract(t, "test-2-1"),
		Function:  "test-1",
	})
	require.NoError(err)

	other, err := secp256k1.NewPrivateKey()
	require.NoError(err)
	require.ErrorIs(tx.SignOrigin(other), errWrongSigner)
}

func TestSponsoredMultisigRoundTrip(t *testing.T) {
	require := require.New(t)

	sk := deployer(t)
	recipient, err := clarity.ParseStandardPrincipal(wallet1Address)
	require.NoError(err)

	tx := &Transaction{
		Version: Testnet,
		ChainID: ChainIDTestnet,
		Auth: Authorization{
			Type: AuthSponsored,
			Origin: SpendingCondition{
				HashMode: HashModeP2SH,
				Signer:   sk.Address(),
				Nonce:    7,
				Fee:      0,
				Fields: []AuthField{
					{Type: AuthFieldPublicKeyCompressed, Data: sk.PublicKey().Bytes()},
					{Type: AuthFieldSignatureCompressed, Data: make([]byte, secp256k1.SignatureLen)},
				},
				SignaturesRequired: 1,
			},
			Sponsor: &SpendingCondition{
				HashMode: HashModeP2PKH,
				Signer:   recipient.Hash,
				Nonce:    2,
				Fee:      180,
			},
		},
		AnchorMode:        AnchorModeOnChainOnly,
		PostConditionMode: PostConditionModeDeny,
		PostConditions: []PostCondition{
			{Type: PostConditionSTX, Code: 0x01, Amount: 100},
			{
				Type:      PostConditionFungible,
				Principal: recipient,
				Asset:     AssetInfo{Contract: contract(t, "token"), Name: "tok"},
				Code:      0x03,
				Amount:    5,
			},
			{
				Type:       PostConditionNonFungible,
				Principal:  contract(t, "vault"),
				Asset:      AssetInfo{Contract: contract(t, "nft"), Name: "badge"},
				AssetValue: clarity.NewUInt(9),
				Code:       0x10,
			},
		},
		Payload: &TokenTransfer{Recipient: recipient, Amount: 100},
	}

	b, err := Marshal(tx)
	require.NoError(err)
	parsed, err := Unmarshal(b)
	require.NoError(err)
	require.Equal(AuthSponsored, parsed.Auth.Type)
	require.NotNil(parsed.Auth.Sponsor)
	require.Equal(uint64(180), parsed.Auth.Sponsor.Fee)
	require.Len(parsed.Auth.Origin.Fields, 2)
	require.Len(parsed.PostConditions, 3)
	require.Equal("u9", parsed.PostConditions[2].AssetValue.String())
	require.False(parsed.Auth.Origin.HashMode.singleSig())

	reencoded, err := Marshal(parsed)
	require.NoError(err)
	require.Equal(b, reencoded)
}

func TestUnmarshalErrors(t *testing.T) {
	require := require.New(t)

	tx, err := MakeContractDeploy(ContractDeployParams{
		SenderKey: deployer(t),
		Name:      "c",
		Code:      "(ok true)",
	})
	require.NoError(err)
	b, err := Marshal(tx)
	require.NoError(err)

	_, err = Unmarshal(append(b, 0x00))
	require.ErrorIs(err, ErrTrailingBytes)

	_, err = Unmarshal(b[:len(b)-1])
	require.ErrorContains(err, "failed to parse transaction")

	corrupted := append([]byte(nil), b...)
	corrupted[5] = 0x09
	_, err = Unmarshal(corrupted)
	require.ErrorIs(err, ErrInvalidAuthType)
}

func TestBuilderValidation(t *testing.T) {
	require := require.New(t)

	_, err := MakeContractDeploy(ContractDeployParams{Name: "c"})
	require.ErrorIs(err, errMissingKey)

	_, err = MakeContractDeploy(ContractDeployParams{SenderKey: deployer(t)})
	require.ErrorIs(err, errMissingName)

	_, err = MakeContractCall(ContractCallParams{SenderKey: deployer(t), Contract: contract(t, "c")})
	require.ErrorIs(err, errMissingName)

	_, err = MakeTokenTransfer(TokenTransferParams{SenderKey: deployer(t), Memo: strings.Repeat("m", MemoLen+1)})
	require.ErrorIs(err, errMemoTooLong)
}

func TestParseTxID(t *testing.T) {
	require := require.New(t)

	id := TxID{0xab}
	parsed, err := ParseTxID(id.String())
	require.NoError(err)
	require.Equal(id, parsed)

	parsed, err = ParseTxID(strings.TrimPrefix(id.String(), "0x"))
	require.NoError(err)
	require.Equal(id, parsed)

	_, err = ParseTxID("0xabcd")
	require.ErrorIs(err, errInvalidTxIDLen)

	var unmarshalled TxID
	require.NoError(unmarshalled.UnmarshalText([]byte(id.String())))
	require.Equal(id, unmarshalled)
}

func TestDescribe(t *testing.T) {
	require := require.New(t)

	sk := deployer(t)
	recipient, err := clarity.ParseStandardPrincipal(wallet1Address)
	require.NoError(err)

	deploy, err := MakeContractDeploy(ContractDeployParams{SenderKey: sk, Name: "test-2-1", Code: "(ok true)"})
	require.NoError(err)
	versioned, err := MakeContractDeploy(ContractDeployParams{SenderKey: sk, Name: "test-2-05", Code: "(ok true)", ClarityVersion: Clarity1})
	require.NoError(err)
	call, err := MakeContractCall(ContractCallParams{SenderKey: sk, Contract: contract(t, "test-2-1"), Function: "test-1"})
	require.NoError(err)
	callArgs, err := MakeContractCall(ContractCallParams{
		SenderKey: sk,
		Contract:  contract(t, "test-2-1"),
		Function:  "transfer",
		Args:      []clarity.Value{clarity.NewUInt(1), clarity.Buffer{0x01}},
	})
	require.NoError(err)
	transfer, err := MakeTokenTransfer(TokenTransferParams{SenderKey: sk, Recipient: recipient, Amount: 100})
	require.NoError(err)
	coinbase := &Transaction{Payload: &Coinbase{}}

	var sb strings.Builder
	for _, tx := range []*Transaction{deploy, versioned, call, callArgs, transfer, coinbase} {
		fmt.Fprintf(&sb, "%s | %s\n", tx.Payload.Type(), Describe(tx))
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "describe", []byte(sb.String()))
}
