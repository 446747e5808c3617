package scoring

import (
	"fmt"
	"math"
	"strconv"
)

// RiskClass is the binary screening outcome. Values align with the
// classifier's output indices: index 0 is at-risk, index 1 is low-risk.
type RiskClass int

const (
	AtRisk RiskClass = iota
	LowRisk
)

// String implements fmt.Stringer with stable storage-friendly labels.
func (c RiskClass) String() string {
	switch c {
	case AtRisk:
		return "at_risk"
	case LowRisk:
		return "low_risk"
	default:
		return fmt.Sprintf("risk_class(%d)", int(c))
	}
}

// Calibration constants from the original model training. The asymmetric
// boundaries (12.4 at-risk, 12.5 low-risk) and the 9.0/16.0 physiological
// bounds are fixed domain choices, not derivable from first principles.
const (
	atRiskBoundary  = 12.4
	atRiskFloor     = 9.0
	lowRiskBoundary = 12.5
	healthyCeiling  = 16.0
)

var messages = map[RiskClass]string{
	AtRisk:  "Possible anemia risk detected. Please consult a healthcare professional.",
	LowRisk: "No anemia risk indicated.",
}

// Result is the terminal artifact of one screening run.
type Result struct {
	Class               RiskClass
	Confidence          float64
	EstimatedHemoglobin float64
	Message             string
}

// Interpret maps a class probability vector to a risk class, a confidence,
// and an estimated hemoglobin concentration in g/dL. Pure and deterministic;
// equal probabilities resolve to the lowest index (at-risk).
func Interpret(vector []float32) (Result, error) {
	if len(vector) != 2 {
		return Result{}, fmt.Errorf("expected 2 class probabilities, got %d", len(vector))
	}

	best := 0
	for i, v := range vector {
		if v > vector[best] {
			best = i
		}
	}

	class := RiskClass(best)
	confidence := widenProbability(vector[best])

	var estimate float64
	if class == AtRisk {
		estimate = atRiskBoundary - confidence*(atRiskBoundary-atRiskFloor)
	} else {
		estimate = lowRiskBoundary + confidence*(healthyCeiling-lowRiskBoundary)
	}

	return Result{
		Class:               class,
		Confidence:          confidence,
		EstimatedHemoglobin: roundToTenth(estimate),
		Message:             messages[class],
	}, nil
}

// widenProbability converts a float32 probability to float64 through its
// shortest decimal representation. A direct conversion keeps the float32
// truncation error (float32(0.9) widens to 0.89999997...), which shifts the
// calibrated estimate across a rounding boundary; re-parsing the shortest
// decimal yields the value the model actually reported.
func widenProbability(v float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	if err != nil {
		return float64(v)
	}
	return f
}

// roundToTenth rounds half away from zero to one decimal place.
func roundToTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
