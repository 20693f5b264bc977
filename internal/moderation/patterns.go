package moderation

import "regexp"

// profanity is matched case-insensitively as a substring. Keep entries long
// enough that they do not fire inside ordinary words.
var profanity = []string{
	"fuck", "shit", "bitch", "bastard", "asshole", "cunt", "dickhead",
	"pussy", "slut", "whore", "wanker", "twat", "bollocks", "motherf",
	"anjing", "bangsat", "bajingan", "kampret", "goblok", "tolol", "brengsek",
}

var malicious = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)<\s*script\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)expression\s*\(`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed)\b`),
}

// suspicious overlaps with malicious on purpose: it scores how much script
// machinery a payload carries, not just whether it has any.
var suspicious = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<[^>]*script`),
	regexp.MustCompile(`(?i)document\.(cookie|write|location)`),
	regexp.MustCompile(`(?i)window\.location`),
	regexp.MustCompile(`(?i)\.innerhtml`),
	regexp.MustCompile(`(?i)\balert\s*\(`),
	regexp.MustCompile(`(?i)fromcharcode`),
	regexp.MustCompile(`(?i)<\s*(img|svg)\b[^>]*>`),
	regexp.MustCompile(`(?i)%3c\s*script`),
}

// spam patterns other than repeated characters, which RE2 cannot express
// and is checked by hasCharRun.
var (
	capsRun    = regexp.MustCompile(`[A-Z]{5,}`)
	linkRE     = regexp.MustCompile(`(?i)https?://\S+|www\.\S+`)
	digitRun   = regexp.MustCompile(`\d{3,}`)
	specialRun = regexp.MustCompile(`[!?@#$%^&*()~]{3,}`)
)

// ContainsMalicious reports whether s carries script or event-handler
// markup. The validator uses it for fields that must never hold markup.
func ContainsMalicious(s string) bool {
	for _, re := range malicious {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ContainsLink reports whether s embeds a URL.
func ContainsLink(s string) bool { return linkRE.MatchString(s) }

// hasCharRun reports a run of at least n identical characters.
func hasCharRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= n {
			return true
		}
	}
	return false
}
