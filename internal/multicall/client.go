package multicall

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker"

	"github.com/ethwhale/whalesignal/internal/logging"
)

// Call mirrors Multicall3.Call3: a single read directed at target,
// tolerant of per-call failure when AllowFailure is set.
type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result mirrors Multicall3.Result.
type Result struct {
	Success    bool
	ReturnData []byte
}

// ContractCaller is the subset of *ethclient.Client this package needs,
// kept narrow so tests can supply a stub instead of a live RPC endpoint.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client wraps a ContractCaller with a transport-level circuit breaker.
// Repeated RPC failures trip the breaker so a degraded endpoint fails
// fast instead of being hammered on every retry (spec §7, transient
// collaborator failures) — this is independent of the domain-level
// DataQualityValidator, which judges the data the RPC layer already
// returned rather than the health of the RPC layer itself.
type Client struct {
	caller        ContractCaller
	multicallAddr common.Address
	breaker       *gobreaker.CircuitBreaker
	log           *logging.Logger
}

// NewClient builds a Client around caller. The breaker trips after 5
// consecutive failures and stays open for 30s before allowing a single
// probe request through.
func NewClient(caller ContractCaller, log *logging.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "multicall-rpc",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		caller:        caller,
		multicallAddr: common.HexToAddress(Multicall3Address),
		breaker:       gobreaker.NewCircuitBreaker(settings),
		log:           log.Named("multicall"),
	}
}

// Aggregate3 packs calls into a single aggregate3 invocation and decodes
// the per-call (success, returnData) pairs. A breaker trip or a
// transport error aborts the whole batch; per-call application failures
// (e.g. a call to a non-contract address) surface as Result.Success =
// false and are the caller's responsibility to translate into an
// Optional-balance nil.
func (c *Client) Aggregate3(ctx context.Context, calls []Call) ([]Result, error) {
	type call3 struct {
		Target       common.Address
		AllowFailure bool
		CallData     []byte
	}
	packedCalls := make([]call3, len(calls))
	for i, call := range calls {
		packedCalls[i] = call3{Target: call.Target, AllowFailure: call.AllowFailure, CallData: call.CallData}
	}

	input, err := parsedMulticall3ABI.Pack("aggregate3", packedCalls)
	if err != nil {
		return nil, fmt.Errorf("multicall: pack aggregate3: %w", err)
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.caller.CallContract(ctx, ethereum.CallMsg{
			To:   &c.multicallAddr,
			Data: input,
		}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("multicall: aggregate3 call: %w", err)
	}

	var decoded []struct {
		Success    bool
		ReturnData []byte
	}
	if err := parsedMulticall3ABI.UnpackIntoInterface(&decoded, "aggregate3", raw.([]byte)); err != nil {
		return nil, fmt.Errorf("multicall: unpack aggregate3: %w", err)
	}

	results := make([]Result, len(decoded))
	for i, d := range decoded {
		results[i] = Result{Success: d.Success, ReturnData: d.ReturnData}
	}
	return results, nil
}

// BlockNumber returns the current chain head height, breaker-guarded
// like every other RPC call this package makes.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.caller.BlockNumber(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("multicall: block number: %w", err)
	}
	return raw.(uint64), nil
}
