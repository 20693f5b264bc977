package moderation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Context selects the field-specific rules layered over Analyze.
type Context string

const (
	General     Context = "general"
	GuestName   Context = "guest_name"
	RSVPMessage Context = "rsvp_message"
	GuestWish   Context = "guest_wish"
)

const (
	maxNameLength    = 100
	minNameLength    = 2
	maxRSVPLength    = 500
	minWishLength    = 2
	maxWishLength    = 1000
	reasonNoLinks    = "Links are not allowed"
	reasonNameLength = "Name must be between 2 and 100 characters"
	reasonNameChars  = "Name contains invalid characters"
)

var nameChars = regexp.MustCompile(`^[\p{L}\p{M}\s.'’,&-]+$`)

// Moderate dispatches to the wrapper for c.
func Moderate(c Context, text string) Result {
	switch c {
	case GuestName:
		return ModerateGuestName(text)
	case RSVPMessage:
		return ModerateRSVPMessage(text)
	case GuestWish:
		return ModerateGuestWish(text)
	}
	return Analyze(text)
}

// ModerateGuestName allows letters, spaces and a little punctuation, 2-100
// characters, and no profanity at any score.
func ModerateGuestName(name string) Result {
	res := Analyze(name)
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n < minNameLength || n > maxNameLength:
		return reject(res, reasonNameLength)
	case !nameChars.MatchString(trimmed):
		return reject(res, reasonNameChars)
	case res.Categories.Profanity && res.IsApproved:
		return reject(res, ReasonProfanity)
	}
	return res
}

// ModerateRSVPMessage accepts an empty message; anything else is capped at
// 500 characters and may not carry links.
func ModerateRSVPMessage(msg string) Result {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" {
		return Result{IsApproved: true}
	}
	res := Analyze(msg)
	switch {
	case !res.IsApproved:
		return res
	case utf8.RuneCountInString(trimmed) > maxRSVPLength:
		return reject(res, "Message must be 500 characters or fewer")
	case ContainsLink(trimmed):
		return reject(res, reasonNoLinks)
	}
	return res
}

// ModerateGuestWish is the strictest wrapper: wishes are shown publicly on
// the invitation, so profanity and links are rejected at any score.
func ModerateGuestWish(msg string) Result {
	res := Analyze(msg)
	trimmed := strings.TrimSpace(msg)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case !res.IsApproved:
		return res
	case n < minWishLength:
		return reject(res, "Wish is too short")
	case n > maxWishLength:
		return reject(res, "Wish must be 1000 characters or fewer")
	case res.Categories.Profanity:
		return reject(res, ReasonProfanity)
	case ContainsLink(trimmed):
		return reject(res, reasonNoLinks)
	}
	return res
}

func reject(res Result, reason string) Result {
	res.IsApproved = false
	res.Reason = reason
	return res
}
