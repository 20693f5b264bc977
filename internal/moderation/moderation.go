// Package moderation scores free text submitted by guests and hosts.
//
// Analyze is a pure function: the same text always produces the same
// result. The context wrappers add hard limits on top of the score for
// specific fields.
package moderation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Threshold is the first score that is rejected.
const Threshold = 50

const (
	ReasonMalicious = "Content contains potentially harmful code"
	ReasonProfanity = "Content contains inappropriate language"
	ReasonSpam      = "Content appears to be spam"
	ReasonGeneric   = "Content does not meet community guidelines"
)

type Categories struct {
	Profanity     bool `json:"profanity"`
	Spam          bool `json:"spam"`
	Malicious     bool `json:"malicious"`
	Inappropriate bool `json:"inappropriate"`
}

type Result struct {
	IsApproved bool       `json:"isApproved"`
	Reason     string     `json:"reason,omitempty"`
	Score      int        `json:"score"`
	Categories Categories `json:"categories"`
}

// Analyze scores text. Contributions are cumulative:
//
//	+80 any malicious pattern
//	+15 per profane word
//	+20 per spam pattern
//	+25 per suspicious pattern
//	+15 more than half the letters upper case, text of 10+ chars
//	+5  per word longer than 3 chars repeated more than 3 times
//	+10 trimmed length of 1-2 chars or over 1000
//
// The score is clamped to 0..100 and approved below Threshold.
func Analyze(text string) Result {
	var (
		score int
		cat   Categories
	)

	if ContainsMalicious(text) {
		score += 80
		cat.Malicious = true
	}

	if n := countProfanity(text); n > 0 {
		score += 15 * n
		cat.Profanity = true
		cat.Inappropriate = true
	}

	if n := countSpam(text); n > 0 {
		score += 20 * n
		cat.Spam = true
	}

	if n := countMatches(suspicious, text); n > 0 {
		score += 25 * n
		cat.Malicious = true
	}

	if excessiveCaps(text) {
		score += 15
		cat.Inappropriate = true
	}

	if n := repeatedWords(text); n > 0 {
		score += 5 * n
		cat.Inappropriate = true
	}

	if n := utf8.RuneCountInString(strings.TrimSpace(text)); (n > 0 && n < 3) || n > 1000 {
		score += 10
	}

	score = min(max(score, 0), 100)
	res := Result{Score: score, Categories: cat, IsApproved: score < Threshold}
	if !res.IsApproved {
		res.Reason = reasonFor(cat)
	}
	return res
}

// reasonFor picks by fixed priority, regardless of which category added
// the most score.
func reasonFor(c Categories) string {
	switch {
	case c.Malicious:
		return ReasonMalicious
	case c.Profanity:
		return ReasonProfanity
	case c.Spam:
		return ReasonSpam
	}
	return ReasonGeneric
}

func countProfanity(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, w := range profanity {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

func countSpam(text string) int {
	n := countMatches(spamPatterns, text)
	if hasCharRun(text, 5) {
		n++
	}
	return n
}

var spamPatterns = []*regexp.Regexp{capsRun, linkRE, digitRun, specialRun}

func countMatches(res []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range res {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

func excessiveCaps(text string) bool {
	if utf8.RuneCountInString(text) < 10 {
		return false
	}
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters > 0 && float64(upper)/float64(letters) > 0.5
}

func repeatedWords(text string) int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	counts := make(map[string]int, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) > 3 {
			counts[w]++
		}
	}
	n := 0
	for _, c := range counts {
		if c > 3 {
			n++
		}
	}
	return n
}
