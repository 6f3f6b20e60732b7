package contracts

// Principal identifies an account in the settlement pipeline: a member,
// the administrator, or an insurer. Opaque to the core — equality is the
// only operation the pipeline performs on it.
type Principal string

// MetricRule bounds one tracked metric of a diet plan ("calories" or a
// nutrient name). A day satisfies the rule when the logged value falls
// inside [Min, Max].
type MetricRule struct {
	Metric string `json:"metric"`
	Min    uint64 `json:"min"`
	Max    uint64 `json:"max"`
}

// PlanDetails is a diet plan as served by the plan registry. Immutable
// once a verification has referenced it.
type PlanDetails struct {
	Rules     []MetricRule `json:"rules"`
	Threshold uint64       `json:"threshold"` // passing score, 1..100
}

// Nutrient is one logged nutrient reading for a day.
type Nutrient struct {
	Nutrient string `json:"nutrient"`
	Value    uint64 `json:"value"`
}

// DailyLog is one day's diet log, keyed by (member, block height).
// Owned by the logging collaborator; read-only to the core.
type DailyLog struct {
	Hash      []byte     `json:"hash"`
	Calories  uint64     `json:"calories"`
	Nutrients []Nutrient `json:"nutrients"`
}
