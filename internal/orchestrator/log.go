package orchestrator

import (
	"math/big"

	"go.uber.org/zap"

	"github.com/ethwhale/whalesignal/internal/logging"
)

// cronLogger adapts internal/logging.Logger to cron.Logger so
// robfig/cron's own Recover/SkipIfStillRunning wrappers log through the
// project's structured logger instead of the standard library log
// package.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, zap.Any("fields", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, zap.Error(err), zap.Any("fields", keysAndValues))
}

func zapErr(err error) zap.Field   { return zap.Error(err) }
func zapStr(k, v string) zap.Field { return zap.String(k, v) }

// weiToFloat converts a Wei balance to float64 for the quality package's
// statistical checks only — never used for balance comparisons or any
// monetary arithmetic (spec §9).
func weiToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}
