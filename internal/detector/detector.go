package detector

import (
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Languages the pipeline ever sees: the source, the target, and the English
// that models occasionally answer in.
var languages = []lingua.Language{lingua.Chinese, lingua.Vietnamese, lingua.English}

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// HanRatio is the share of letters in text that are Han ideographs.
func HanRatio(text string) float64 {
	var letters, han int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(han) / float64(letters)
}
