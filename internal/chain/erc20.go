package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferTopic is the event signature hash of Transfer(address,address,uint256).
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// balanceOfSelector is the 4-byte selector of balanceOf(address).
var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// Transfer is one decoded ERC-20 Transfer event.
type Transfer struct {
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	LogIndex    uint32
	From        common.Address
	To          common.Address
	Value       *big.Int
}

// DecodeTransfer strictly decodes an ERC-20 Transfer log. Logs with the
// wrong topic count or data length (e.g. ERC-721 transfers sharing the
// same signature) are rejected.
func DecodeTransfer(log *types.Log) (Transfer, error) {
	if len(log.Topics) != 3 {
		return Transfer{}, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
	}
	if log.Topics[0] != TransferTopic {
		return Transfer{}, fmt.Errorf("unexpected event signature %s", log.Topics[0].Hex())
	}
	if len(log.Data) != 32 {
		return Transfer{}, fmt.Errorf("expected 32 data bytes, got %d", len(log.Data))
	}

	return Transfer{
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    uint32(log.Index),
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		Value:       new(big.Int).SetBytes(log.Data),
	}, nil
}

// packBalanceOf encodes a balanceOf(address) eth_call payload.
func packBalanceOf(holder common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data, balanceOfSelector)
	copy(data[4+12:], holder.Bytes())
	return data
}
