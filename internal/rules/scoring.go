package rules

import "math"

// FinalConfidence derives the final confidence from the AI's own score.
// Each invalid code halves the confidence independently, so both invalid
// quarters it. The result is clamped to [0, 1] and rounded to 2 decimals.
func FinalConfidence(aiConfidence float64, accountNumber, vatCode string) float64 {
	confidence := aiConfidence

	validation := ValidateSuggestion(accountNumber, vatCode)
	if !validation.AccountValid {
		confidence *= 0.5
	}
	if !validation.VATValid {
		confidence *= 0.5
	}

	return round2(clamp01(confidence))
}

// riskMultipliers dampen confidence per risk level.
var riskMultipliers = map[RiskLevel]float64{
	RiskLow:    1.0,
	RiskMedium: 0.9,
	RiskHigh:   0.7,
}

// AdjustForRisk dampens a confidence score by the risk level. It is not
// part of the stored scoring, which keeps FinalConfidence untouched; it
// exists for consumers that want one risk-weighted number, such as
// ranking a review queue. Unknown levels use a conservative 0.8.
func AdjustForRisk(confidence float64, risk RiskLevel) float64 {
	multiplier, ok := riskMultipliers[risk]
	if !ok {
		multiplier = 0.8
	}
	return round2(clamp01(confidence * multiplier))
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
