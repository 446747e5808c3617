package scoring

import "testing"

func TestInterpretAtRiskVector(t *testing.T) {
	result, err := Interpret([]float32{0.9, 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Class != AtRisk {
		t.Fatalf("expected at-risk class, got %s", result.Class)
	}
	if result.Confidence < 0.89 || result.Confidence > 0.91 {
		t.Fatalf("unexpected confidence: %f", result.Confidence)
	}
	// 12.4 - 0.9*(12.4-9.0) = 9.34, rounds half away from zero to 9.3.
	if result.EstimatedHemoglobin != 9.3 {
		t.Fatalf("expected estimate 9.3, got %f", result.EstimatedHemoglobin)
	}
	if result.Message != messages[AtRisk] {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestInterpretLowRiskVector(t *testing.T) {
	result, err := Interpret([]float32{0.1, 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Class != LowRisk {
		t.Fatalf("expected low-risk class, got %s", result.Class)
	}
	// 12.5 + 0.9*(16.0-12.5) = 15.65; the rounding rule is pinned to half
	// away from zero, so the estimate is 15.7.
	if result.EstimatedHemoglobin != 15.7 {
		t.Fatalf("expected estimate 15.7, got %f", result.EstimatedHemoglobin)
	}
	if result.Message != messages[LowRisk] {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestInterpretWidensProbabilitiesExactly(t *testing.T) {
	// float32(0.9) carries truncation error; a naive float64 conversion
	// yields 0.89999997... and pulls 12.5 + 0.9*3.5 below the 15.65
	// rounding boundary. The confidence must be the reported decimal.
	result, err := Interpret([]float32{0.1, 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confidence != 0.9 {
		t.Fatalf("expected confidence exactly 0.9, got %.17f", result.Confidence)
	}
	if result.EstimatedHemoglobin != 15.7 {
		t.Fatalf("expected estimate 15.7, got %f", result.EstimatedHemoglobin)
	}
}

func TestInterpretTieBreaksToAtRisk(t *testing.T) {
	result, err := Interpret([]float32{0.5, 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Class != AtRisk {
		t.Fatalf("expected tie to resolve to at-risk, got %s", result.Class)
	}
}

func TestInterpretIsDeterministic(t *testing.T) {
	vector := []float32{0.37, 0.63}
	first, err := Interpret(vector)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 100; i++ {
		again, err := Interpret(vector)
		if err != nil {
			t.Fatalf("unexpected error on run %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

func TestInterpretRejectsWrongLength(t *testing.T) {
	for _, vector := range [][]float32{nil, {0.5}, {0.2, 0.3, 0.5}} {
		if _, err := Interpret(vector); err == nil {
			t.Fatalf("expected error for vector of length %d", len(vector))
		}
	}
}

func TestInterpretFullConfidenceBounds(t *testing.T) {
	atRisk, err := Interpret([]float32{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atRisk.EstimatedHemoglobin != 9.0 {
		t.Fatalf("expected severe bound 9.0, got %f", atRisk.EstimatedHemoglobin)
	}

	lowRisk, err := Interpret([]float32{0, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lowRisk.EstimatedHemoglobin != 16.0 {
		t.Fatalf("expected healthy bound 16.0, got %f", lowRisk.EstimatedHemoglobin)
	}
}
