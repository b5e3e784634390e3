package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
)

// SnapshotRepository implements whalesignal C4: persist and query
// BalanceSnapshot rows. Grounded on the teacher's MySQLRecorder
// (internal/db/transaction_recorder.go): a struct wrapping *gorm.DB,
// AutoMigrate on construction, query methods returning domain types.
type SnapshotRepository struct {
	db  *gorm.DB
	log *logging.Logger
}

// NewSnapshotRepository builds a SnapshotRepository and migrates its
// schema.
func NewSnapshotRepository(db *gorm.DB, log *logging.Logger) (*SnapshotRepository, error) {
	if err := db.AutoMigrate(&SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("storage: migrate snapshot schema: %w", err)
	}
	return &SnapshotRepository{db: db, log: log.Named("storage.snapshot")}, nil
}

// SaveSnapshotsBatch writes every snapshot in one transaction (spec
// §4.5: "one atomic transactional batch write", no per-row retries).
// Idempotent on (address, snapshot_instant): a conflicting row is left
// unchanged rather than erroring, so a re-run of a partially-committed
// job tick is safe.
func (r *SnapshotRepository) SaveSnapshotsBatch(ctx context.Context, snapshots []whalesignal.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	records := make([]SnapshotRecord, len(snapshots))
	for i, s := range snapshots {
		records[i] = SnapshotRecord{
			Address:         s.Address.Hex(),
			SnapshotInstant: s.SnapshotInstant,
			BlockHeight:     s.BlockHeight,
			NativeBalance:   bigIntToString(s.NativeBalance),
			WethBalance:     bigIntPtrToStringPtr(s.WethBalance),
			StethBalance:    bigIntPtrToStringPtr(s.StethBalance),
			Rank:            s.Rank,
			Network:         string(s.Network),
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&records)
		if result.Error != nil {
			return fmt.Errorf("storage: save snapshot batch: %w", result.Error)
		}
		return nil
	})
}

// GetSnapshotsBatchAtTime returns, for each address, the snapshot whose
// instant is nearest to at and within toleranceHours — ties resolved to
// the earlier instant (spec §4.4). An address with no row inside the
// tolerance window is absent from the returned map.
func (r *SnapshotRepository) GetSnapshotsBatchAtTime(
	ctx context.Context,
	addresses []common.Address,
	at time.Time,
	toleranceHours float64,
	network whalesignal.Network,
) (map[common.Address]whalesignal.BalanceSnapshot, error) {
	if len(addresses) == 0 {
		return map[common.Address]whalesignal.BalanceSnapshot{}, nil
	}

	hexAddrs := make([]string, len(addresses))
	for i, a := range addresses {
		hexAddrs[i] = a.Hex()
	}

	window := time.Duration(toleranceHours * float64(time.Hour))
	var records []SnapshotRecord
	result := r.db.WithContext(ctx).
		Where("address IN ? AND network = ? AND snapshot_instant BETWEEN ? AND ?",
			hexAddrs, string(network), at.Add(-window), at.Add(window)).
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("storage: get snapshots batch at time: %w", result.Error)
	}

	type candidate struct {
		record SnapshotRecord
		delta  time.Duration
	}
	best := make(map[string]candidate, len(addresses))
	for _, rec := range records {
		delta := rec.SnapshotInstant.Sub(at)
		if delta < 0 {
			delta = -delta
		}
		cur, ok := best[rec.Address]
		if !ok || delta < cur.delta ||
			(delta == cur.delta && rec.SnapshotInstant.Before(cur.record.SnapshotInstant)) {
			best[rec.Address] = candidate{record: rec, delta: delta}
		}
	}

	out := make(map[common.Address]whalesignal.BalanceSnapshot, len(best))
	for _, c := range best {
		out[common.HexToAddress(c.record.Address)] = recordToSnapshot(c.record)
	}
	return out, nil
}

// GetAddressesInTopAtTime returns the addresses ranked 1..topN in the
// snapshot taken nearest to at (within toleranceHours), per network.
// Used by the calculator's Step A to build the HISTORICAL half of the
// union address set.
func (r *SnapshotRepository) GetAddressesInTopAtTime(
	ctx context.Context,
	at time.Time,
	toleranceHours float64,
	topN int,
	network whalesignal.Network,
) ([]common.Address, error) {
	window := time.Duration(toleranceHours * float64(time.Hour))

	var nearestInstant time.Time
	result := r.db.WithContext(ctx).
		Model(&SnapshotRecord{}).
		Select("snapshot_instant").
		Where("network = ? AND snapshot_instant BETWEEN ? AND ?", string(network), at.Add(-window), at.Add(window)).
		Order(fmt.Sprintf("ABS(TIMESTAMPDIFF(SECOND, snapshot_instant, '%s')) ASC", at.UTC().Format("2006-01-02 15:04:05"))).
		Limit(1).
		Pluck("snapshot_instant", &nearestInstant)
	if result.Error != nil {
		return nil, fmt.Errorf("storage: find nearest instant: %w", result.Error)
	}
	if nearestInstant.IsZero() {
		return nil, nil
	}

	var records []SnapshotRecord
	result = r.db.WithContext(ctx).
		Where("network = ? AND snapshot_instant = ? AND rank <= ? AND rank > 0", string(network), nearestInstant, topN).
		Order("rank ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("storage: get addresses in top at time: %w", result.Error)
	}

	addrs := make([]common.Address, len(records))
	for i, rec := range records {
		addrs[i] = common.HexToAddress(rec.Address)
	}
	return addrs, nil
}

// GetWindow returns every snapshot recorded for network with an instant
// at or after since, grouped by address and ordered oldest first within
// each group. The orchestrator uses this to assemble the recent-history
// population the data-quality checks run over (spec §4.7).
func (r *SnapshotRepository) GetWindow(ctx context.Context, network whalesignal.Network, since time.Time) (map[common.Address][]whalesignal.BalanceSnapshot, error) {
	var records []SnapshotRecord
	result := r.db.WithContext(ctx).
		Where("network = ? AND snapshot_instant >= ?", string(network), since).
		Order("address ASC, snapshot_instant ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("storage: get window: %w", result.Error)
	}

	out := make(map[common.Address][]whalesignal.BalanceSnapshot)
	for _, rec := range records {
		addr := common.HexToAddress(rec.Address)
		out[addr] = append(out[addr], recordToSnapshot(rec))
	}
	return out, nil
}

// GetLatestSnapshotInstant returns the most recent snapshot_instant for
// network, and false if no snapshot has ever been recorded.
func (r *SnapshotRepository) GetLatestSnapshotInstant(ctx context.Context, network whalesignal.Network) (time.Time, bool, error) {
	var rec SnapshotRecord
	result := r.db.WithContext(ctx).
		Where("network = ?", string(network)).
		Order("snapshot_instant DESC").
		Limit(1).
		Find(&rec)
	if result.Error != nil {
		return time.Time{}, false, fmt.Errorf("storage: get latest snapshot instant: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return time.Time{}, false, nil
	}
	return rec.SnapshotInstant, true, nil
}

func recordToSnapshot(rec SnapshotRecord) whalesignal.BalanceSnapshot {
	return whalesignal.BalanceSnapshot{
		Address:         common.HexToAddress(rec.Address),
		SnapshotInstant: rec.SnapshotInstant,
		BlockHeight:     rec.BlockHeight,
		NativeBalance:   stringToBigInt(rec.NativeBalance),
		WethBalance:     stringPtrToBigIntPtr(rec.WethBalance),
		StethBalance:    stringPtrToBigIntPtr(rec.StethBalance),
		Rank:            rec.Rank,
		Network:         whalesignal.Network(rec.Network),
	}
}
