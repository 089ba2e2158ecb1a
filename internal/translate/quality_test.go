package translate_test

import "testing"
import "clipline/internal/translate"

func TestValidateQualityGoodTranslationHighConfidence(t *testing.T) {
	confidence, flags := translate.ValidateQuality("hello there", "こんにちは", "ja")
	if confidence != 1.0 {
		t.Fatalf("expected full confidence, got %f flags=%v", confidence, flags)
	}
	if len(flags) != 0 {
		t.Fatalf("expected no flags, got %v", flags)
	}
}

func TestValidateQualityLengthRatioOutOfRangeHalvesConfidence(t *testing.T) {
	confidence, flags := translate.ValidateQuality("a", "this translation is absurdly long for a single letter input by far", "en")
	if confidence != 0.5 {
		t.Fatalf("expected confidence halved to 0.5, got %f", confidence)
	}
	if !contains(flags, "length_ratio_out_of_range") {
		t.Fatalf("expected length_ratio_out_of_range flag, got %v", flags)
	}
}

func TestValidateQualityErrorMarkerZeroesConfidence(t *testing.T) {
	confidence, flags := translate.ValidateQuality("hello", "I'm sorry, I can't translate that", "en")
	if confidence != 0 {
		t.Fatalf("expected zero confidence, got %f", confidence)
	}
	if !contains(flags, "error_marker_detected") {
		t.Fatalf("expected error_marker_detected flag, got %v", flags)
	}
}

func TestValidateQualitySourceResidueDetection(t *testing.T) {
	confidence, flags := translate.ValidateQuality("hello world", "hello world remains untranslated here", "ja")
	if confidence != 0 {
		t.Fatalf("expected zero confidence for source residue, got %f", confidence)
	}
	if !contains(flags, "source_language_residue") {
		t.Fatalf("expected source_language_residue flag, got %v", flags)
	}
}

func contains(flags []string, target string) bool {
	for _, f := range flags {
		if f == target {
			return true
		}
	}
	return false
}
