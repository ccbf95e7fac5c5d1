// Package validator checks that a translated unit is in the expected target
// language before it is written out.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/chaptran/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// MaxHanRatio is the largest share of Han letters tolerated in a translation
// whose target is not Chinese.
const MaxHanRatio = 0.3

// Validator is expensive to build; reuse one per process.
type Validator struct {
	det *detector.Detector
}

func New() *Validator {
	return &Validator{det: detector.New()}
}

// IsValid returns true when translatedText appears to be written in
// targetLang. Region subtags are ignored ("zh-CN" is checked as "zh").
// Short texts and texts whose language cannot be determined pass.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	target := baseLang(targetLang)
	if target == "" {
		return true, nil
	}

	text := strings.TrimSpace(translatedText)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}

	if target != "zh" {
		if ratio := detector.HanRatio(text); ratio > MaxHanRatio {
			return false, fmt.Errorf("translation still %.0f%% Han characters", ratio*100)
		}
	}

	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	if !strings.EqualFold(detected, target) {
		return false, fmt.Errorf("expected %s but detected %s", target, strings.ToLower(detected))
	}

	return true, nil
}

func baseLang(tag string) string {
	tag = strings.TrimSpace(strings.ToLower(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}
