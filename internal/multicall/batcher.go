package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ethwhale/whalesignal/internal/logging"
)

// DefaultChunkSize matches spec §6's chunk_size default: the number of
// addresses batched into a single aggregate3 call.
const DefaultChunkSize = 500

// FailureCounter receives one increment per failed chunk round-trip.
// Satisfied by prometheus.Counter; nil is a valid Batcher field meaning
// no metric is published.
type FailureCounter interface {
	Inc()
}

// Batcher reads native and ERC20 balances for many addresses through a
// Multicall3 Client, chunked to stay under RPC response-size and gas
// limits. Every returned balance is either a real (possibly zero)
// big.Int or nil — nil means the read failed and must never be treated
// as a zero balance (spec §4.1, §9 Optional/nullable semantics).
type Batcher struct {
	client    *Client
	chunkSize int
	log       *logging.Logger
	failures  FailureCounter
}

// NewBatcher builds a Batcher. chunkSize <= 0 falls back to DefaultChunkSize.
func NewBatcher(client *Client, chunkSize int, log *logging.Logger) *Batcher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Batcher{client: client, chunkSize: chunkSize, log: log.Named("multicall.batcher")}
}

// WithFailureCounter wires a FailureCounter (whale_multicall_failures_total
// in production) that is incremented once per failed chunk round-trip.
func (b *Batcher) WithFailureCounter(counter FailureCounter) *Batcher {
	b.failures = counter
	return b
}

// BatchNativeBalances reads the native ETH balance of every address in
// addresses via Multicall3's getEthBalance, in chunks of b.chunkSize.
func (b *Batcher) BatchNativeBalances(ctx context.Context, addresses []common.Address) (map[common.Address]*big.Int, error) {
	return b.batch(ctx, addresses, func(addr common.Address) (common.Address, []byte, error) {
		data, err := parsedMulticall3ABI.Pack("getEthBalance", addr)
		if err != nil {
			return common.Address{}, nil, err
		}
		return b.client.multicallAddr, data, nil
	})
}

// BatchERC20Balances reads token.balanceOf(address) for every address in
// addresses, against the single ERC20 contract at token (e.g. WETH or
// stETH).
func (b *Batcher) BatchERC20Balances(ctx context.Context, token common.Address, addresses []common.Address) (map[common.Address]*big.Int, error) {
	return b.batch(ctx, addresses, func(addr common.Address) (common.Address, []byte, error) {
		data, err := parsedERC20ABI.Pack("balanceOf", addr)
		if err != nil {
			return common.Address{}, nil, err
		}
		return token, data, nil
	})
}

// batch drives one or more aggregate3 round-trips, building a Call per
// address via encode, then decoding each uint256 return value. A whole
// chunk failing the RPC round-trip (breaker open, network error) marks
// every address in that chunk nil rather than aborting the remaining
// chunks — one bad chunk should not blind the batcher to every other
// whale's balance. Only when every chunk fails does batch return an
// error instead of an all-nil map (spec §4.1).
func (b *Batcher) batch(
	ctx context.Context,
	addresses []common.Address,
	encode func(addr common.Address) (target common.Address, callData []byte, err error),
) (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(addresses))

	totalChunks := 0
	failedChunks := 0
	var lastErr error

	for start := 0; start < len(addresses); start += b.chunkSize {
		end := start + b.chunkSize
		if end > len(addresses) {
			end = len(addresses)
		}
		chunk := addresses[start:end]

		calls := make([]Call, len(chunk))
		for i, addr := range chunk {
			target, data, err := encode(addr)
			if err != nil {
				return nil, fmt.Errorf("multicall: encode call for %s: %w", addr.Hex(), err)
			}
			calls[i] = Call{Target: target, AllowFailure: true, CallData: data}
		}

		totalChunks++
		results, err := b.client.Aggregate3(ctx, calls)
		if err != nil {
			b.log.Warn("chunk aggregate3 failed, marking chunk unavailable",
				zap.Int("chunk_start", start), zap.Int("chunk_size", len(chunk)), zap.Error(err))
			failedChunks++
			lastErr = err
			if b.failures != nil {
				b.failures.Inc()
			}
			for _, addr := range chunk {
				out[addr] = nil
			}
			continue
		}

		for i, res := range results {
			addr := chunk[i]
			if !res.Success || len(res.ReturnData) == 0 {
				out[addr] = nil
				continue
			}
			out[addr] = new(big.Int).SetBytes(res.ReturnData)
		}
	}

	if totalChunks > 0 && failedChunks == totalChunks {
		return nil, fmt.Errorf("multicall: every chunk failed: %w", lastErr)
	}

	return out, nil
}
