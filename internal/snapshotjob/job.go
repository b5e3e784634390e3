// Package snapshotjob runs the hourly balance-snapshot tick (spec C5):
// fetch the current top-N whales, the current block height, build one
// BalanceSnapshot per whale with a usable balance, and write the batch
// in a single transaction.
package snapshotjob

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
	"github.com/ethwhale/whalesignal/internal/whalelist"
)

// WhaleLister is the subset of whalelist.Provider this job needs.
type WhaleLister interface {
	GetTopWhales(ctx context.Context, n int) ([]whalelist.WhaleEntry, error)
}

// BlockSource supplies the current chain head height.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// LSTBalancer reads an ERC20 balance (WETH or stETH) for many addresses
// in one batch. Recording these alongside the native balance lets
// calculator Step H read true historical LST balances from a snapshot
// instead of assuming them unchanged.
type LSTBalancer interface {
	BatchERC20Balances(ctx context.Context, token common.Address, addresses []common.Address) (map[common.Address]*big.Int, error)
}

// SnapshotSaver is the subset of storage.SnapshotRepository this job
// needs.
type SnapshotSaver interface {
	SaveSnapshotsBatch(ctx context.Context, snapshots []whalesignal.BalanceSnapshot) error
}

// Job runs one snapshot tick. It is not itself concurrency-guarded
// across ticks — the orchestrator enforces max_instances = 1 (spec
// §4.9); the in-flight guard here only protects against a second,
// direct Run call overlapping this one (e.g. from a CLI tool bypassing
// the orchestrator).
type Job struct {
	whales  WhaleLister
	blocks  BlockSource
	saver   SnapshotSaver
	topN    int
	network whalesignal.Network
	log     *logging.Logger

	lst               LSTBalancer
	wethAddr          common.Address
	stethAddr         common.Address

	mu       sync.Mutex
	inFlight bool
}

func New(whales WhaleLister, blocks BlockSource, saver SnapshotSaver, topN int, network whalesignal.Network, log *logging.Logger) *Job {
	return &Job{whales: whales, blocks: blocks, saver: saver, topN: topN, network: network, log: log.Named("snapshotjob")}
}

// WithLSTBalances enables recording WETH/stETH balances alongside each
// snapshot, so future calculator runs have true historical LST balances
// to read instead of approximating them. Optional: a Job with no
// LSTBalancer configured simply leaves WethBalance/StethBalance nil on
// every snapshot it writes.
func (j *Job) WithLSTBalances(lst LSTBalancer, wethAddr, stethAddr common.Address) *Job {
	j.lst = lst
	j.wethAddr = wethAddr
	j.stethAddr = stethAddr
	return j
}

// Run executes one snapshot tick (spec §4.5 steps 1-3). It returns
// whalesignal.ErrJobAlreadyRunning if a previous Run on this Job is
// still in flight.
func (j *Job) Run(ctx context.Context) error {
	j.mu.Lock()
	if j.inFlight {
		j.mu.Unlock()
		return whalesignal.ErrJobAlreadyRunning
	}
	j.inFlight = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.inFlight = false
		j.mu.Unlock()
	}()

	start := time.Now()
	whales, err := j.whales.GetTopWhales(ctx, j.topN)
	if err != nil {
		return fmt.Errorf("snapshotjob: get top whales: %w", err)
	}

	blockHeight, err := j.blocks.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("snapshotjob: get block number: %w", err)
	}

	addresses := make([]common.Address, len(whales))
	for i, w := range whales {
		addresses[i] = w.Address
	}

	var wethBalances, stethBalances map[common.Address]*big.Int
	if j.lst != nil && len(addresses) > 0 {
		wethBalances, err = j.lst.BatchERC20Balances(ctx, j.wethAddr, addresses)
		if err != nil {
			j.log.Warn("weth balance batch failed, snapshots will carry no weth balance", zap.Error(err))
		}
		stethBalances, err = j.lst.BatchERC20Balances(ctx, j.stethAddr, addresses)
		if err != nil {
			j.log.Warn("steth balance batch failed, snapshots will carry no steth balance", zap.Error(err))
		}
	}

	now := time.Now().UTC().Truncate(time.Hour)
	snapshots := make([]whalesignal.BalanceSnapshot, 0, len(whales))
	skipped := 0
	for _, w := range whales {
		if w.NativeBalance == nil {
			skipped++
			continue
		}
		snapshots = append(snapshots, whalesignal.BalanceSnapshot{
			Address:         w.Address,
			SnapshotInstant: now,
			BlockHeight:     blockHeight,
			NativeBalance:   w.NativeBalance,
			WethBalance:     wethBalances[w.Address],
			StethBalance:    stethBalances[w.Address],
			Rank:            w.Rank,
			Network:         j.network,
		})
	}
	if skipped > 0 {
		j.log.Warn("skipped whales with unreadable balance", zap.Int("skipped", skipped))
	}

	if err := j.saver.SaveSnapshotsBatch(ctx, snapshots); err != nil {
		return fmt.Errorf("snapshotjob: save snapshots batch: %w", err)
	}

	j.log.Info("snapshot tick complete",
		zap.Int("whales", len(whales)),
		zap.Int("snapshots_written", len(snapshots)),
		zap.Uint64("block_height", blockHeight),
		zap.Duration("duration", time.Since(start)))
	return nil
}
