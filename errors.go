package whalesignal

import "errors"

// Sentinel errors per the error-handling taxonomy (spec §7). Components
// wrap these with fmt.Errorf("...: %w", ErrX) so callers can classify a
// failure with errors.Is without depending on component internals.
var (
	// ErrInsufficientData is returned by the calculator when no address in
	// the union set has a historical balance, making the native score
	// denominator zero and every derived score undefined.
	ErrInsufficientData = errors.New("whalesignal: insufficient historical data to compute a signal")

	// ErrDataQualityCritical is returned by the calculator's Compute when
	// the quality gate status is critical; no metric is computed and no
	// AccumulationMetric row is written.
	ErrDataQualityCritical = errors.New("whalesignal: data quality is critical, calculator gated")

	// ErrJobAlreadyRunning is returned by the snapshot job's Run when it
	// is invoked while its previous invocation is still in flight
	// (max_instances = 1).
	ErrJobAlreadyRunning = errors.New("whalesignal: job already running")

	// ErrInvalidConfig is returned by Config.Validate for a non-positive
	// count or an unparsable threshold; the process must not start.
	ErrInvalidConfig = errors.New("whalesignal: invalid configuration")
)
