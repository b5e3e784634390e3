package whalelist

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethwhale/whalesignal/internal/logging"
)

type fakeBatcher struct {
	balances map[common.Address]*big.Int
	err      error
}

func (f *fakeBatcher) BatchNativeBalances(ctx context.Context, addresses []common.Address) (map[common.Address]*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[common.Address]*big.Int, len(addresses))
	for _, a := range addresses {
		out[a] = f.balances[a]
	}
	return out, nil
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(true, -1)
	require.NoError(t, err)
	return log
}

func TestGetTopWhales_SortsFiltersAndTruncates(t *testing.T) {
	a1 := common.HexToAddress("0xaaaa")
	a2 := common.HexToAddress("0xbbbb")
	a3 := common.HexToAddress("0xcccc")
	denied := common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")

	candidates := StaticCandidates{a1, a2, a3, denied}
	batcher := &fakeBatcher{balances: map[common.Address]*big.Int{
		a1:     big.NewInt(1000),
		a2:     big.NewInt(3000),
		a3:     big.NewInt(2000),
		denied: big.NewInt(999999),
	}}

	p := NewProvider(candidates, batcher, testLogger(t))
	whales, err := p.GetTopWhales(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, whales, 2)

	assert.Equal(t, a2, whales[0].Address)
	assert.Equal(t, 1, whales[0].Rank)
	assert.Equal(t, a3, whales[1].Address)
	assert.Equal(t, 2, whales[1].Rank)
}

func TestGetTopWhales_ExcludesNilBalances(t *testing.T) {
	a1 := common.HexToAddress("0xaaaa")
	a2 := common.HexToAddress("0xbbbb")
	candidates := StaticCandidates{a1, a2}
	batcher := &fakeBatcher{balances: map[common.Address]*big.Int{
		a1: big.NewInt(1000),
		a2: nil,
	}}

	p := NewProvider(candidates, batcher, testLogger(t))
	whales, err := p.GetTopWhales(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, whales, 1)
	assert.Equal(t, a1, whales[0].Address)
}

func TestGetTopWhales_EmptyOnTotalFailure(t *testing.T) {
	candidates := StaticCandidates{common.HexToAddress("0xaaaa")}
	batcher := &fakeBatcher{err: assert.AnError}

	p := NewProvider(candidates, batcher, testLogger(t))
	whales, err := p.GetTopWhales(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, whales)
	assert.NotNil(t, whales)
}
