package model

import "fmt"

// Feature column names, in table order. Time of day is a point on the unit
// circle and therefore occupies two columns.
const (
	FeatInterCommandTiming  = "inter_command_timing"
	FeatSessionDuration     = "session_duration"
	FeatTimeOfDaySin        = "time_of_day_sin"
	FeatTimeOfDayCos        = "time_of_day_cos"
	FeatUniqueCommandsRatio = "unique_commands_ratio"
	FeatCommandDiversity    = "command_diversity_ratio"
	FeatToolSignatures      = "tool_signatures"
	FeatReconVsExploit      = "reconnaissance_vs_exploitation_ratio"
	FeatErrorRate           = "error_rate"
	FeatCorrectionAttempts  = "command_correction_attempts"
)

var featureNames = []string{
	FeatInterCommandTiming,
	FeatSessionDuration,
	FeatTimeOfDaySin,
	FeatTimeOfDayCos,
	FeatUniqueCommandsRatio,
	FeatCommandDiversity,
	FeatToolSignatures,
	FeatReconVsExploit,
	FeatErrorRate,
	FeatCorrectionAttempts,
}

// FeatureNames returns a copy of the column names in table order.
func FeatureNames() []string {
	out := make([]string, len(featureNames))
	copy(out, featureNames)
	return out
}

// FeatureIndex returns the column position of name, or -1.
func FeatureIndex(name string) int {
	for i, n := range featureNames {
		if n == name {
			return i
		}
	}
	return -1
}

// FeatureVector holds the nine behavioral features of one session.
type FeatureVector struct {
	InterCommandTiming  float64 `json:"inter_command_timing"`
	SessionDuration     float64 `json:"session_duration"`
	TimeOfDaySin        float64 `json:"time_of_day_sin"`
	TimeOfDayCos        float64 `json:"time_of_day_cos"`
	UniqueCommandsRatio float64 `json:"unique_commands_ratio"`
	CommandDiversity    float64 `json:"command_diversity_ratio"`
	ToolSignatures      float64 `json:"tool_signatures"`
	ReconVsExploit      float64 `json:"reconnaissance_vs_exploitation_ratio"`
	ErrorRate           float64 `json:"error_rate"`
	CorrectionAttempts  float64 `json:"command_correction_attempts"`
}

// NeutralFeatureVector is the vector of a session without usable data.
func NeutralFeatureVector() FeatureVector {
	return FeatureVector{ReconVsExploit: 0.5}
}

// Values flattens v in FeatureNames order.
func (v FeatureVector) Values() []float64 {
	return []float64{
		v.InterCommandTiming,
		v.SessionDuration,
		v.TimeOfDaySin,
		v.TimeOfDayCos,
		v.UniqueCommandsRatio,
		v.CommandDiversity,
		v.ToolSignatures,
		v.ReconVsExploit,
		v.ErrorRate,
		v.CorrectionAttempts,
	}
}

// FeatureVectorFromValues is the inverse of Values.
func FeatureVectorFromValues(vals []float64) (FeatureVector, error) {
	if len(vals) != len(featureNames) {
		return FeatureVector{}, fmt.Errorf("feature vector: want %d values, got %d", len(featureNames), len(vals))
	}
	return FeatureVector{
		InterCommandTiming:  vals[0],
		SessionDuration:     vals[1],
		TimeOfDaySin:        vals[2],
		TimeOfDayCos:        vals[3],
		UniqueCommandsRatio: vals[4],
		CommandDiversity:    vals[5],
		ToolSignatures:      vals[6],
		ReconVsExploit:      vals[7],
		ErrorRate:           vals[8],
		CorrectionAttempts:  vals[9],
	}, nil
}
