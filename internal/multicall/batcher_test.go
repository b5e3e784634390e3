package multicall

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethwhale/whalesignal/internal/logging"
)

// fakeCaller implements ContractCaller and returns a scripted
// aggregate3 response: result[i].Success reflects successFlags[i],
// result[i].ReturnData is a left-padded uint256 encoding of balances[i].
type fakeCaller struct {
	successFlags []bool
	balances     []int64
	blockNumber  uint64
	callErr      error
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	type result struct {
		Success    bool
		ReturnData []byte
	}
	results := make([]result, len(f.successFlags))
	for i := range results {
		results[i] = result{
			Success:    f.successFlags[i],
			ReturnData: common.LeftPadBytes(big.NewInt(f.balances[i]).Bytes(), 32),
		}
	}
	return parsedMulticall3ABI.Methods["aggregate3"].Outputs.Pack(results)
}

func (f *fakeCaller) BlockNumber(ctx context.Context) (uint64, error) {
	return f.blockNumber, f.callErr
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(true, -1)
	require.NoError(t, err)
	return log
}

func TestBatchNativeBalances_OptionalSemantics(t *testing.T) {
	addrs := []common.Address{
		common.HexToAddress("0x1"),
		common.HexToAddress("0x2"),
		common.HexToAddress("0x3"),
	}
	caller := &fakeCaller{
		successFlags: []bool{true, false, true},
		balances:     []int64{1000, 0, 3000},
	}
	client := NewClient(caller, testLogger(t))
	batcher := NewBatcher(client, 500, testLogger(t))

	balances, err := batcher.BatchNativeBalances(context.Background(), addrs)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(1000), balances[addrs[0]])
	assert.Nil(t, balances[addrs[1]], "a failed call must surface as nil, never a coerced zero")
	assert.Equal(t, big.NewInt(3000), balances[addrs[2]])
}

func TestBatchNativeBalances_ChunkFailureIsolated(t *testing.T) {
	addrs := make([]common.Address, 4)
	for i := range addrs {
		addrs[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	caller := &scriptedChunkCaller{chunkErrs: []error{assert.AnError, nil}, chunkLen: 2}
	client := NewClient(caller, testLogger(t))
	batcher := NewBatcher(client, 2, testLogger(t))

	balances, err := batcher.BatchNativeBalances(context.Background(), addrs)
	require.NoError(t, err, "one bad chunk among several must not abort the whole batch")
	assert.Nil(t, balances[addrs[0]], "addresses in the failing chunk must surface as nil")
	assert.Nil(t, balances[addrs[1]], "addresses in the failing chunk must surface as nil")
	assert.Equal(t, big.NewInt(42), balances[addrs[2]])
	assert.Equal(t, big.NewInt(42), balances[addrs[3]])
}

func TestBatchNativeBalances_EveryChunkFailingReturnsError(t *testing.T) {
	addrs := make([]common.Address, 3)
	for i := range addrs {
		addrs[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	caller := &fakeCaller{callErr: assert.AnError}
	client := NewClient(caller, testLogger(t))
	batcher := NewBatcher(client, 2, testLogger(t))

	_, err := batcher.BatchNativeBalances(context.Background(), addrs)
	require.Error(t, err, "no exception leaks unless every chunk fails, per spec — here every chunk did")
}

// scriptedChunkCaller returns chunkErrs[call] for the call'th
// Aggregate3 round-trip (nil meaning success, with every call in that
// chunk succeeding at balance 42), regardless of the chunk's contents.
type scriptedChunkCaller struct {
	chunkErrs []error
	chunkLen  int
	calls     int
}

func (f *scriptedChunkCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.chunkErrs) && f.chunkErrs[idx] != nil {
		return nil, f.chunkErrs[idx]
	}
	type result struct {
		Success    bool
		ReturnData []byte
	}
	results := make([]result, f.chunkLen)
	for i := range results {
		results[i] = result{Success: true, ReturnData: common.LeftPadBytes(big.NewInt(42).Bytes(), 32)}
	}
	return parsedMulticall3ABI.Methods["aggregate3"].Outputs.Pack(results)
}

func (f *scriptedChunkCaller) BlockNumber(ctx context.Context) (uint64, error) {
	return 0, nil
}
