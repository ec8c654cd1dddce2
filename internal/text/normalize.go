// Package text normalizes raw input text before phonemization: abbreviations
// and integers are spelled out, reference markers and URLs are stripped, and
// whitespace and typographic punctuation are flattened to plain forms.
package text

import (
	"regexp"
	"strconv"
	"strings"
)

// Bounds of the integer-to-words conversion.
const (
	numberBaseTen      = 10
	numberBaseTwenty   = 20
	numberBaseHundred  = 100
	numberBaseThousand = 1000
	maxNumberForWords  = 999999
)

// Regex patterns applied during normalization.
const (
	urlRegexPattern        = `https?://\S+`
	integerRegexPattern    = `\d+`
	referenceRegexPattern  = `\[\d+\]|\(\d+\)|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	whitespaceRegexPattern = `\s+`
)

// Normalizer prepares text for the phonemizer. Patterns are compiled once; a
// single Normalizer is safe for concurrent use.
type Normalizer struct {
	urlPattern        *regexp.Regexp
	integerPattern    *regexp.Regexp
	referencePattern  *regexp.Regexp
	whitespacePattern *regexp.Regexp
	abbreviations     *strings.Replacer
	punctuation       *strings.Replacer
}

// NewNormalizer creates a Normalizer with compiled patterns and replacers.
func NewNormalizer() *Normalizer {
	abbreviations := []string{
		"Mr.", "Mister",
		"Mrs.", "Misses",
		"Ms.", "Miss",
		"Dr.", "Doctor",
		"St.", "Saint",
		"Co.", "Company",
		"Ltd.", "Limited",
		"Corp.", "Corporation",
		"Inc.", "Incorporated",
		"etc.", "et cetera",
		"vs.", "versus",
	}

	punctuation := []string{
		"—", ", ",
		"–", ", ",
		"‒", ", ",
		"…", "...",
		"\r\n", " ",
		"\n", " ",
		"\t", " ",
	}

	return &Normalizer{
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		integerPattern:    regexp.MustCompile(integerRegexPattern),
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		abbreviations:     strings.NewReplacer(abbreviations...),
		punctuation:       strings.NewReplacer(punctuation...),
	}
}

// Normalize runs the full pipeline. Cheaper transformations run first.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	normalized := n.abbreviations.Replace(text)
	normalized = n.punctuation.Replace(normalized)
	normalized = n.urlPattern.ReplaceAllString(normalized, " ")
	normalized = n.referencePattern.ReplaceAllString(normalized, " ")
	normalized = n.spellOutIntegers(normalized)
	normalized = n.whitespacePattern.ReplaceAllString(normalized, " ")

	return strings.TrimSpace(normalized)
}

// spellOutIntegers replaces each integer with its spoken form. Numbers too
// large to spell are left as digits.
func (n *Normalizer) spellOutIntegers(text string) string {
	return n.integerPattern.ReplaceAllStringFunc(text, func(match string) string {
		value, err := strconv.Atoi(match)
		if err != nil || value > maxNumberForWords {
			return match
		}

		return integerToWords(value)
	})
}

var (
	onesWords = []string{
		"zero", "one", "two", "three", "four",
		"five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	tensWords = []string{
		"", "", "twenty", "thirty", "forty",
		"fifty", "sixty", "seventy", "eighty", "ninety",
	}
)

func integerToWords(value int) string {
	switch {
	case value < numberBaseTwenty:
		return onesWords[value]
	case value < numberBaseHundred:
		word := tensWords[value/numberBaseTen]
		if value%numberBaseTen != 0 {
			word += " " + onesWords[value%numberBaseTen]
		}

		return word
	case value < numberBaseThousand:
		word := onesWords[value/numberBaseHundred] + " hundred"
		if value%numberBaseHundred != 0 {
			word += " " + integerToWords(value%numberBaseHundred)
		}

		return word
	default:
		word := integerToWords(value/numberBaseThousand) + " thousand"
		if value%numberBaseThousand != 0 {
			word += " " + integerToWords(value%numberBaseThousand)
		}

		return word
	}
}
