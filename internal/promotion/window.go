package promotion

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
)

const dateOnlyLayout = "2006-01-02"

// zoned layouts carry no offset and are read in the configured location.
var zonedLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// Window is a promotional period with its entries multiplier. Both bounds are inclusive.
type Window struct {
	Multiplier decimal.Decimal
	Start      time.Time
	End        time.Time
}

// Contains reports whether t falls inside [Start, End].
func (w Window) Contains(t time.Time) bool {
	if w.Start.IsZero() || w.End.IsZero() {
		return false
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// EffectiveMultiplier is the configured multiplier inside the window and zero outside it.
func (w Window) EffectiveMultiplier(now time.Time) decimal.Decimal {
	if !w.Multiplier.IsPositive() || !w.Contains(now) {
		return decimal.Zero
	}
	return w.Multiplier
}

// ParseInfo normalises the served promotion config. Date-only bounds expand to
// the start and end of that day in loc. A missing or invalid multiplier is zero.
func ParseInfo(info shopify.PromotionInfo, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	window := Window{Multiplier: parseMultiplier(info.Multiplier)}

	start, err := parseBound(info.StartDate, loc, false)
	if err != nil {
		return Window{}, pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "promotion startDate")
	}
	end, err := parseBound(info.EndDate, loc, true)
	if err != nil {
		return Window{}, pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, err, "promotion endDate")
	}
	window.Start = start
	window.End = end
	return window, nil
}

func parseMultiplier(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || value.IsNegative() {
		return decimal.Zero
	}
	return value
}

func parseBound(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if day, err := time.ParseInLocation(dateOnlyLayout, raw, loc); err == nil {
		if endOfDay {
			return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return day, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}
