package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(true, -1)
	require.NoError(t, err)
	return log
}

func TestSnapshotRepository_SaveSnapshotsBatch(t *testing.T) {
	gormDB, mock := newMockDB(t)
	repo := &SnapshotRepository{db: gormDB, log: testLogger(t)}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `balance_snapshots`").
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	snapshots := []whalesignal.BalanceSnapshot{
		{
			Address:         common.HexToAddress("0xaaaa"),
			SnapshotInstant: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			BlockHeight:     100,
			NativeBalance:   big.NewInt(1000),
			Rank:            1,
			Network:         whalesignal.NetworkEthereum,
		},
		{
			Address:         common.HexToAddress("0xbbbb"),
			SnapshotInstant: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			BlockHeight:     100,
			NativeBalance:   big.NewInt(2000),
			Rank:            2,
			Network:         whalesignal.NetworkEthereum,
		},
	}

	err := repo.SaveSnapshotsBatch(context.Background(), snapshots)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_SaveSnapshotsBatch_Empty(t *testing.T) {
	gormDB, mock := newMockDB(t)
	repo := &SnapshotRepository{db: gormDB, log: testLogger(t)}

	err := repo.SaveSnapshotsBatch(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "an empty batch must not open a transaction")
}

func TestBigIntToString(t *testing.T) {
	require.Equal(t, "0", bigIntToString(nil))
	require.Equal(t, "123456789", bigIntToString(big.NewInt(123456789)))
}

func TestSnapshotRecord_TableName(t *testing.T) {
	require.Equal(t, "balance_snapshots", SnapshotRecord{}.TableName())
}

func TestMetricRecord_TableName(t *testing.T) {
	require.Equal(t, "accumulation_metrics", MetricRecord{}.TableName())
}

// Integration test example (requires an actual MySQL instance).
// Uncomment and configure DSN to run outside of CI.
/*
func TestSnapshotRepository_Integration(t *testing.T) {
	dsn := "testuser:testpass@tcp(localhost:3306)/whalesignal_test?charset=utf8mb4&parseTime=True&loc=Local"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	repo, err := NewSnapshotRepository(db, testLogger(t))
	require.NoError(t, err)

	instant, ok, err := repo.GetLatestSnapshotInstant(context.Background(), whalesignal.NetworkEthereum)
	require.NoError(t, err)
	t.Logf("latest snapshot instant: %v present=%v", instant, ok)
}
*/
