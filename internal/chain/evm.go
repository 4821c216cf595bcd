package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/defisafe/hotwallet/internal/addresscodec"
	"github.com/defisafe/hotwallet/internal/walleterrors"
	"github.com/defisafe/hotwallet/pkg/models"
)

// EVMClient backs an EVM-family network (Ethereum, Polygon, BSC and
// their testnets) with a real JSON-RPC connection via go-ethereum's
// ethclient, the library this pack's own chain-interaction examples
// (the geth tx/nonce walkthroughs under other_examples) use directly.
type EVMClient struct {
	network models.Network
	chainID *big.Int
	rpc     *ethclient.Client
}

// DialEVM connects to rpcURL and returns an EVMClient for network,
// bound to chainID for EIP-155 signing context.
func DialEVM(ctx context.Context, network models.Network, rpcURL string, chainID uint64) (*EVMClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindNetwork, "dial evm rpc", err)
	}
	return &EVMClient{network: network, chainID: new(big.Int).SetUint64(chainID), rpc: rpc}, nil
}

func (c *EVMClient) NetworkName() models.Network { return c.network }

func (c *EVMClient) ValidateAddress(address string) bool {
	return addresscodec.ValidateEVMAddress(address)
}

func (c *EVMClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	bal, err := c.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindNetwork, "evm get_balance", err)
	}
	return bal, nil
}

func (c *EVMClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	n, err := c.rpc.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, walleterrors.Wrap(walleterrors.KindNetwork, "evm get_nonce", err)
	}
	return n, nil
}

// SendSignedWithNonce broadcasts rawSigned, the RLP encoding of an
// already-signed *types.Transaction whose nonce must equal nonce.
// The nonce is not re-derived here: NonceEngine already reserved it
// and Signer already bound it into the signature, so this call is
// pure submission, matching the split the spec draws between Signer
// and ChainClient.
func (c *EVMClient) SendSignedWithNonce(ctx context.Context, rawSigned []byte, nonce uint64) (string, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(rawSigned); err != nil {
		return "", walleterrors.Wrap(walleterrors.KindValidation, "evm decode signed tx", err)
	}
	if tx.Nonce() != nonce {
		return "", walleterrors.New(walleterrors.KindValidation, "evm: signed tx nonce does not match reserved nonce")
	}
	if err := c.rpc.SendTransaction(ctx, &tx); err != nil {
		return "", walleterrors.Wrap(walleterrors.KindNetwork, "evm send_signed", err)
	}
	return tx.Hash().Hex(), nil
}

func (c *EVMClient) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	rec, err := c.rpc.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindNetwork, "evm get_receipt", err)
	}
	head, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindNetwork, "evm get block number", err)
	}
	return &Receipt{
		TxHash:      txHash,
		BlockNumber: rec.BlockNumber.Uint64(),
		Confirmed:   head >= rec.BlockNumber.Uint64(),
		Success:     rec.Status == types.ReceiptStatusSuccessful,
	}, nil
}
