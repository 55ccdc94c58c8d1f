package core

// transform.go coerces raw string cells into typed values per target field.
// Invoked only on rows that passed validation.

import "strings"

// listSeparators are accepted between items in list-valued cells.
const listSeparators = ",;|"

// TransformRow builds a typed Record from a validated row.
//
// Coercion rules by target field:
//   - price, cost_price, weight: float64, defaulting to 0 when unparseable
//   - stock: int, defaulting to 0 when unparseable or absent
//   - images, tags: ordered list of trimmed, non-empty strings
//   - anything else: trimmed string, absent when empty
func TransformRow(row ParsedRow, mappings []FieldMapping) Record {
	fields := make(map[string]any, len(mappings))

	for _, m := range mappings {
		if m.Target == "" {
			continue
		}
		raw := row.Cells[m.Source]

		switch m.Target {
		case FieldPrice, FieldCostPrice, FieldWeight:
			v, _ := parsePrice(raw)
			fields[m.Target] = v
		case FieldStock:
			v, _ := parseStock(raw)
			fields[m.Target] = v
		case FieldImages, FieldTags:
			if items := splitList(raw); len(items) > 0 {
				fields[m.Target] = items
			}
		default:
			if v := strings.TrimSpace(raw); v != "" {
				fields[m.Target] = v
			}
		}
	}

	return Record{Line: row.Line, Fields: fields}
}

// splitList splits a cell on any list separator, trimming each piece and
// dropping empties. Order is preserved.
func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return strings.ContainsRune(listSeparators, r)
	})
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}
