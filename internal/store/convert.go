package store

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// toPgText converts a string to pgtype.Text, invalid (NULL) for blank
// input so optional columns stay NULL rather than "".
func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
