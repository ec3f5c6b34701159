package analysis

// Tuning is the single table of numeric thresholds the pipeline reads.
// Defaults are tuned for 1 Hz outdoor running telemetry; callers override
// individual values through configuration rather than editing call sites.
type Tuning struct {
	// HR validation thresholds
	MinValidHeartrate int // bpm floor for a plausible reading
	MaxValidHeartrate int // bpm ceiling

	// Minimum speed for pace aggregation (m/s), filters out stopped time
	MinSpeedForPace float64

	// Runs shorter than this degrade confidence
	MinAnalysisSeconds int

	// Segmentation
	TrendWindowSeconds   int     // rolling window for effort smoothing and trends
	RecoveryCeiling      float64 // effort ratio below which a point is easy
	SteadyOnset          float64 // effort ratio that opens the steady phase
	MinSegmentSeconds    int     // merge floor; shorter interior runs are absorbed
	Tier2ThresholdFactor float64 // pseudo-threshold as a fraction of max HR
	PaceEffortScale      float64 // effort assigned to median pace when HR is absent

	// Moment detection
	AnomalyZScore       float64 // grade-adjusted deviation cutoff
	AnomalyPersistence  int     // consecutive seconds before an excursion counts
	AnomalyMinSpacing   int     // seconds between reported moments
	SurgeRisePct        float64 // rolling velocity rise that opens a surge
	SurgeWindowSeconds  int     // window the rise is measured over
	SurgeSustainSeconds int     // seconds the rise must hold

	// Cadence plausibility. Medians inside the ambiguous band look like
	// per-step counts rather than steps per minute; values are passed
	// through untouched and the trend is withheld.
	CadencePlausibleMin int
	CadencePlausibleMax int
	CadenceAmbiguousMin int
	CadenceAmbiguousMax int

	// Drift on HR:pace ratio instead of raw HR
	UseHRPaceRatio bool
}

// DefaultTuning returns the stock threshold table.
func DefaultTuning() Tuning {
	return Tuning{
		MinValidHeartrate:    50,
		MaxValidHeartrate:    220,
		MinSpeedForPace:      0.5,
		MinAnalysisSeconds:   600,
		TrendWindowSeconds:   60,
		RecoveryCeiling:      0.80,
		SteadyOnset:          0.92,
		MinSegmentSeconds:    20,
		Tier2ThresholdFactor: 0.88,
		PaceEffortScale:      0.95,
		AnomalyZScore:        2.5,
		AnomalyPersistence:   5,
		AnomalyMinSpacing:    60,
		SurgeRisePct:         8.0,
		SurgeWindowSeconds:   30,
		SurgeSustainSeconds:  20,
		CadencePlausibleMin:  120,
		CadencePlausibleMax:  240,
		CadenceAmbiguousMin:  45,
		CadenceAmbiguousMax:  110,
	}
}
