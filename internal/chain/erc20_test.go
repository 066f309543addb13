package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func transferLog(from, to common.Address, value *big.Int) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0xEab49138BA2Ea6dd776220fE26b7b8E446638956"),
		Topics:      []common.Hash{TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        common.LeftPadBytes(value.Bytes(), 32),
		BlockNumber: 12345,
		BlockHash:   common.HexToHash("0x01"),
		TxHash:      common.HexToHash("0x02"),
		Index:       7,
	}
}

func TestDecodeTransfer(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	value := big.NewInt(123456789)

	log := transferLog(from, to, value)
	transfer, err := DecodeTransfer(&log)
	if err != nil {
		t.Fatalf("DecodeTransfer failed: %v", err)
	}

	if transfer.From != from {
		t.Errorf("expected from %s, got %s", from.Hex(), transfer.From.Hex())
	}
	if transfer.To != to {
		t.Errorf("expected to %s, got %s", to.Hex(), transfer.To.Hex())
	}
	if transfer.Value.Cmp(value) != 0 {
		t.Errorf("expected value %s, got %s", value, transfer.Value)
	}
	if transfer.BlockNumber != 12345 {
		t.Errorf("expected block 12345, got %d", transfer.BlockNumber)
	}
	if transfer.LogIndex != 7 {
		t.Errorf("expected log index 7, got %d", transfer.LogIndex)
	}
}

func TestDecodeTransfer_RejectsWrongTopicCount(t *testing.T) {
	// ERC-721 Transfer has the same signature but 4 topics and no data.
	log := types.Log{
		Topics: []common.Hash{TransferTopic, {}, {}, {}},
	}
	if _, err := DecodeTransfer(&log); err == nil {
		t.Error("expected error for 4-topic log")
	}
}

func TestDecodeTransfer_RejectsWrongDataLength(t *testing.T) {
	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	log := transferLog(from, to, big.NewInt(1))
	log.Data = log.Data[:31]

	if _, err := DecodeTransfer(&log); err == nil {
		t.Error("expected error for truncated data")
	}
}

func TestDecodeTransfer_RejectsWrongSignature(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{common.HexToHash("0xdead"), {}, {}},
		Data:   make([]byte, 32),
	}
	if _, err := DecodeTransfer(&log); err == nil {
		t.Error("expected error for wrong event signature")
	}
}

func TestPackBalanceOf(t *testing.T) {
	holder := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data := packBalanceOf(holder)

	if len(data) != 36 {
		t.Fatalf("expected 36 bytes, got %d", len(data))
	}
	// selector for balanceOf(address)
	if got := common.Bytes2Hex(data[:4]); got != "70a08231" {
		t.Errorf("expected selector 70a08231, got %s", got)
	}
	if common.BytesToAddress(data[4:]) != holder {
		t.Errorf("holder address not encoded in call data")
	}
}
