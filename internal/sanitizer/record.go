package sanitizer

import (
	"path"
	"strings"

	"mailtriage/contracts/db"
	"mailtriage/internal/model"
)

// NormalizedKey derives the output key: the input basename up to its first
// dot, with a .json extension.
func NormalizedKey(key string) string {
	base := path.Base(key)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base + ".json"
}

// ToRecord projects email onto its persisted JSON shape.
func ToRecord(email model.NormalizedEmail) db.NormalizedEmailRecord {
	return db.NormalizedEmailRecord{
		From:        email.FromAddress,
		To:          email.To,
		Subject:     email.Subject,
		Body:        email.Body,
		DisplayName: email.FromDisplay,
		Timestamp:   db.FormatTimestamp(email.Timestamp),
	}
}
