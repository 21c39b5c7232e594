// Package langdetect identifies the language of final transcripts so
// the daemon can follow the speaker between its configured languages.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// minWords guards against flip-flopping on one-word answers, which
// carry almost no language signal.
const minWords = 2

// Detector restricts detection to a fixed language set.
type Detector struct {
	codes []string

	once     sync.Once
	detector lingua.LanguageDetector
}

// New creates a detector over the given ISO 639-1 codes. Codes lingua
// does not know are ignored.
func New(codes []string) *Detector {
	return &Detector{codes: append([]string(nil), codes...)}
}

func (d *Detector) init() {
	var langs []lingua.Language
	for _, code := range d.codes {
		if l, ok := linguaLanguage(code); ok {
			langs = append(langs, l)
		}
	}
	if len(langs) < 2 {
		return // nothing to distinguish
	}
	d.detector = lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		WithPreloadedLanguageModels().
		Build()
}

// Detect returns the ISO code and English display name of text's
// language. ok is false when the text is too short, the detector has
// fewer than two candidate languages, or detection is inconclusive.
func (d *Detector) Detect(text string) (code, name string, ok bool) {
	if len(strings.Fields(text)) < minWords {
		return "", "", false
	}
	d.once.Do(d.init)
	if d.detector == nil {
		return "", "", false
	}

	detected, exists := d.detector.DetectLanguageOf(text)
	if !exists {
		return "", "", false
	}

	code = strings.ToLower(detected.IsoCode639_1().String())
	name = display.English.Languages().Name(language.Make(code))
	return code, name, true
}

func linguaLanguage(code string) (lingua.Language, bool) {
	for _, l := range lingua.AllLanguages() {
		if strings.EqualFold(l.IsoCode639_1().String(), code) {
			return l, true
		}
	}
	return lingua.Unknown, false
}
