// Package language normalizes and validates the language codes accepted by
// repositories, examples and translations.
package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Supported lists the codes accepted by the NLP service, in display order.
var Supported = []string{
	"en", "de", "es", "pt", "fr", "it", "nl", "pt_br", "id", "mn", "ar",
	"bn", "hi", "ru", "th", "vi", "km", "sw", "ca", "da", "el", "fa",
	"fi", "ga", "he", "hr", "hu", "ja", "ko", "lt", "nb", "pl", "ro",
	"si", "sv", "te", "tr", "tt", "uk", "ur", "zh", "ka", "kk",
}

var supported = func() map[string]bool {
	m := make(map[string]bool, len(Supported))
	for _, code := range Supported {
		m[code] = true
	}
	return m
}()

// Normalize turns a user supplied tag ("pt-BR", "EN", "pt_br") into the
// stored form ("pt_br", "en") and reports whether it is supported.
func Normalize(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("language is required")
	}

	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("%q is not a valid language: %w", code, err)
	}

	base, _ := tag.Base()
	out := base.String()
	if region, conf := tag.Region(); conf == language.Exact {
		withRegion := out + "_" + strings.ToLower(region.String())
		if supported[withRegion] {
			return withRegion, nil
		}
	}

	if !supported[out] {
		return "", fmt.Errorf("%q is not a supported language", code)
	}
	return out, nil
}

// IsSupported reports whether code is already in stored form and supported.
func IsSupported(code string) bool {
	return supported[code]
}
