// Package whalelist ranks candidate Ethereum addresses by native balance
// and hands back the current top-N whales, filtering out known
// exchange/bridge/burn addresses first.
package whalelist

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethwhale/whalesignal/internal/logging"
)

// BalanceBatcher is the subset of multicall.Batcher this package needs,
// kept as an interface so tests can supply a fake instead of a live
// chain connection.
type BalanceBatcher interface {
	BatchNativeBalances(ctx context.Context, addresses []common.Address) (map[common.Address]*big.Int, error)
}

// CandidateSource supplies the pool of addresses eligible for whale
// ranking. In production this is a curated, periodically refreshed list
// (large historical holders, known DeFi depositors); tests supply a
// fixed slice.
type CandidateSource interface {
	Addresses(ctx context.Context) ([]common.Address, error)
}

// StaticCandidates is a CandidateSource backed by a fixed in-memory list.
type StaticCandidates []common.Address

func (s StaticCandidates) Addresses(ctx context.Context) ([]common.Address, error) {
	return []common.Address(s), nil
}

// Provider implements WhaleListProvider (spec C2): filter, balance,
// sort, truncate.
type Provider struct {
	candidates CandidateSource
	batcher    BalanceBatcher
	log        *logging.Logger
}

func NewProvider(candidates CandidateSource, batcher BalanceBatcher, log *logging.Logger) *Provider {
	return &Provider{candidates: candidates, batcher: batcher, log: log.Named("whalelist")}
}

// WhaleEntry has the same fields as whalesignal.WhaleEntry; this package
// keeps its own copy and does not import the root package.
type WhaleEntry struct {
	Address       common.Address
	NativeBalance *big.Int
	Rank          int
}

// GetTopWhales returns the top n ranked whales by current native
// balance, deny-listed addresses excluded and addresses with a failed
// (nil) balance read excluded from ranking (they cannot be compared).
// A total failure — no candidate resolves to a usable balance — returns
// an empty, non-nil slice rather than an error, per spec §4.2: a ranking
// with zero members is a valid, if degenerate, result; it is left to
// DataQualityValidator to flag the resulting thin dataset.
func (p *Provider) GetTopWhales(ctx context.Context, n int) ([]WhaleEntry, error) {
	addrs, err := p.candidates.Addresses(ctx)
	if err != nil {
		p.log.Warn("candidate source failed, returning empty whale list")
		return []WhaleEntry{}, nil
	}

	filtered := addrs[:0:0]
	for _, a := range addrs {
		if !IsDenyListed(a) {
			filtered = append(filtered, a)
		}
	}

	balances, err := p.batcher.BatchNativeBalances(ctx, filtered)
	if err != nil {
		p.log.Warn("balance batch failed, returning empty whale list")
		return []WhaleEntry{}, nil
	}

	entries := make([]WhaleEntry, 0, len(filtered))
	for _, a := range filtered {
		bal := balances[a]
		if bal == nil {
			continue
		}
		entries = append(entries, WhaleEntry{Address: a, NativeBalance: bal})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].NativeBalance.Cmp(entries[j].NativeBalance) > 0
	})

	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
