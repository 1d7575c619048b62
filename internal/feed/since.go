package feed

import (
	"strings"
	"time"

	"shopsy-inventory-api/internal/model"
)

// Layouts accepted for a poll cursor, tried in order. Layouts without a zone
// are read as UTC.
var sinceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseSince parses a poll cursor. An empty value means the last PollWindow.
func (f *Feed) ParseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return f.now().Add(-f.cfg.PollWindow), nil
	}
	if t, ok := parseTimestamp(raw); ok {
		return t, nil
	}
	// An unescaped "+" in a query string arrives as a space.
	if i := strings.LastIndex(raw, " "); i > len("2006-01-02") {
		if t, ok := parseTimestamp(raw[:i] + "+" + raw[i+1:]); ok {
			return t, nil
		}
	}
	return time.Time{}, model.NewError(model.KindMalformedCursor,
		"Invalid datetime format %q. Use ISO format (e.g., 2024-01-01T00:00:00Z)", raw)
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range sinceLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
