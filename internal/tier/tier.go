// Package tier holds the membership-tier rules for invitations: how long
// after creation an invitation stays editable, how many gallery photos it
// may carry, and which fields only the top tier may set.
package tier

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Tier string

const (
	Free    Tier = "free"
	Premium Tier = "premium"
	Elite   Tier = "elite"
)

// Unlimited marks a limit that does not apply.
const Unlimited = -1

// EliteFields may only be set on invitations owned by elite members.
var EliteFields = []string{"custom_domain", "background_music_url", "custom_css", "video_url"}

type Limits struct {
	// EditWindow is how long after creation edits are accepted, 0 for no limit.
	EditWindow   time.Duration
	GalleryLimit int
}

var limits = map[Tier]Limits{
	Free:    {EditWindow: 30 * 24 * time.Hour, GalleryLimit: 5},
	Premium: {EditWindow: 180 * 24 * time.Hour, GalleryLimit: 30},
	Elite:   {EditWindow: 0, GalleryLimit: Unlimited},
}

// Parse maps stored tier names, treating unknown or empty values as Free.
func Parse(s string) Tier {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case Premium, Elite:
		return t
	}
	return Free
}

func (t Tier) Limits() Limits {
	if l, ok := limits[t]; ok {
		return l
	}
	return limits[Free]
}

// CanEdit reports whether an invitation created at createdAt may still be
// edited at now.
func (t Tier) CanEdit(createdAt, now time.Time) bool {
	w := t.Limits().EditWindow
	return w == 0 || now.Before(createdAt.Add(w))
}

// EditDeadline returns the end of the edit window, zero when unlimited.
func (t Tier) EditDeadline(createdAt time.Time) time.Time {
	w := t.Limits().EditWindow
	if w == 0 {
		return time.Time{}
	}
	return createdAt.Add(w)
}

// CheckGallery returns an error when adding n photos to existing would
// exceed the tier's gallery limit.
func (t Tier) CheckGallery(existing, n int) error {
	l := t.Limits().GalleryLimit
	if l == Unlimited || existing+n <= l {
		return nil
	}
	return fmt.Errorf("%s plan allows %d gallery photos", t, l)
}

// StripEliteFields removes elite-only keys from fields for non-elite tiers
// and returns the names removed, sorted.
func (t Tier) StripEliteFields(fields map[string]any) []string {
	if t == Elite {
		return nil
	}
	var removed []string
	for _, f := range EliteFields {
		if _, ok := fields[f]; ok {
			delete(fields, f)
			removed = append(removed, f)
		}
	}
	sort.Strings(removed)
	return removed
}
