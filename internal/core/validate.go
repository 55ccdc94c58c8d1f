package core

// validate.go applies required-field and type checks to parsed rows using
// the caller-supplied field mappings.
//
// Two classes of findings:
//   - errors block the row (required field unmapped or empty, bad price)
//   - warnings never block (zero price, unparseable stock)

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateRow checks one row against the field mappings.
func ValidateRow(row ParsedRow, mappings []FieldMapping) RowIssues {
	var issues RowIssues

	for _, field := range requiredFields {
		m, ok := mappingFor(mappings, field)
		if !ok {
			issues.Errors = append(issues.Errors, fmt.Sprintf("required field %q is not mapped", field))
			continue
		}
		if strings.TrimSpace(row.Cells[m.Source]) == "" {
			issues.Errors = append(issues.Errors, fmt.Sprintf("missing value for %q", field))
		}
	}

	if m, ok := mappingFor(mappings, FieldPrice); ok {
		if raw := strings.TrimSpace(row.Cells[m.Source]); raw != "" {
			price, ok := parsePrice(raw)
			switch {
			case !ok || price < 0:
				issues.Errors = append(issues.Errors, fmt.Sprintf("invalid price %q", raw))
			case price == 0:
				issues.Warnings = append(issues.Warnings, "price is zero")
			}
		}
	}

	if m, ok := mappingFor(mappings, FieldStock); ok {
		if raw := strings.TrimSpace(row.Cells[m.Source]); raw != "" {
			if _, ok := parseStock(raw); !ok {
				// Transform coerces the value to zero; the row still imports.
				issues.Warnings = append(issues.Warnings, fmt.Sprintf("invalid stock %q, defaulting to 0", raw))
			}
		}
	}

	return issues
}

// mappingFor returns the first mapping entry targeting the given field.
func mappingFor(mappings []FieldMapping, target string) (FieldMapping, bool) {
	for _, m := range mappings {
		if m.Target == target {
			return m, true
		}
	}
	return FieldMapping{}, false
}

// parsePrice coerces a raw cell into a price value. Everything except
// digits, '.' and '-' is stripped, with ',' treated as a decimal separator.
func parsePrice(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseStock coerces a raw cell into a stock count by keeping digits only.
func parseStock(raw string) (int, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return v, true
}
