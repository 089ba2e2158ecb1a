package translate

import (
	"strings"
	"unicode"
)

const (
	defaultMinLengthRatio  = 0.3
	defaultMaxLengthRatio  = 2.0
	defaultQualityThreshold = 0.7
	residueRunLength        = 6
)

var errorMarkers = []string{
	"i cannot translate", "unable to translate", "[translation error]",
	"as an ai language model", "i'm sorry, i can't",
}

// ValidateQuality scores a translated segment per spec §4.6(c): out-of-range
// length ratio halves confidence, detected source-language residue and
// placeholder/error markers zero it, and the final score below threshold
// flags but does not discard the segment.
func ValidateQuality(original, translated, targetLanguage string) (confidence float64, flags []string) {
	confidence = 1.0

	ratio := lengthRatio(original, translated)
	if ratio < defaultMinLengthRatio || ratio > defaultMaxLengthRatio {
		confidence *= 0.5
		flags = append(flags, "length_ratio_out_of_range")
	}

	if hasSourceResidue(translated, targetLanguage) {
		confidence = 0
		flags = append(flags, "source_language_residue")
	}

	if hasErrorMarker(translated) {
		confidence = 0
		flags = append(flags, "error_marker_detected")
	}

	if confidence < defaultQualityThreshold {
		flags = append(flags, "low_confidence")
	}
	return confidence, flags
}

func lengthRatio(original, translated string) float64 {
	origLen := len([]rune(strings.TrimSpace(original)))
	if origLen == 0 {
		return 1.0
	}
	transLen := len([]rune(strings.TrimSpace(translated)))
	return float64(transLen) / float64(origLen)
}

// hasSourceResidue detects a long alphabetic (non-ideographic) run inside a
// translation whose target language is ideographic -- a sign the model left
// untranslated source text in place.
func hasSourceResidue(translated, targetLanguage string) bool {
	if !targetIsIdeographic(targetLanguage) {
		return false
	}
	run := 0
	for _, r := range translated {
		if unicode.IsLetter(r) && r < unicode.MaxLatin1 {
			run++
			if run >= residueRunLength {
				return true
			}
			continue
		}
		run = 0
	}
	return false
}

func targetIsIdeographic(lang string) bool {
	switch strings.ToLower(lang) {
	case "ja", "japanese", "zh", "zh-cn", "zh-tw", "chinese", "ko", "korean":
		return true
	default:
		return false
	}
}

func hasErrorMarker(translated string) bool {
	lower := strings.ToLower(translated)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
