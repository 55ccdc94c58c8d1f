package core

// mapping.go suggests field mappings from CSV headers. Suggestions are a
// starting point for the caller's mapping step; the pipeline itself only
// consumes whatever mappings it is given.

import "strings"

// targetAliases lists normalized header names recognized per target field.
// The first alias is the canonical name and scores highest.
var targetAliases = map[string][]string{
	FieldName:        {"name", "productname", "title", "product", "itemname"},
	FieldPrice:       {"price", "saleprice", "sellprice", "unitprice", "amount"},
	FieldCostPrice:   {"costprice", "cost", "buyprice", "purchaseprice", "wholesaleprice"},
	FieldStock:       {"stock", "stockquantity", "quantity", "qty", "inventory", "onhand"},
	FieldWeight:      {"weight", "shippingweight", "grossweight"},
	FieldSKU:         {"sku", "productsku", "productcode", "itemnumber", "articlenumber"},
	FieldDescription: {"description", "productdescription", "details", "longdescription"},
	FieldCategory:    {"category", "productcategory", "categoryname", "producttype"},
	FieldBrand:       {"brand", "brandname", "manufacturer", "vendor"},
	FieldImages:      {"images", "image", "imageurl", "imageurls", "photos", "pictures"},
	FieldTags:        {"tags", "keywords", "labels"},
}

// SuggestMappings proposes a mapping entry for every header. Headers that
// match no known target get an entry with an empty target, which the
// pipeline ignores; the caller may fill it in manually.
func SuggestMappings(headers []string) []FieldMapping {
	taken := make(map[string]bool, len(targetAliases))
	out := make([]FieldMapping, 0, len(headers))

	for _, h := range headers {
		target, confidence := matchTarget(normalizeHeader(h))
		if target != "" && taken[target] {
			target, confidence = "", 0
		}
		if target != "" {
			taken[target] = true
		}
		out = append(out, FieldMapping{
			Source:     h,
			Target:     target,
			Confidence: confidence,
		})
	}
	return out
}

// matchTarget scores a normalized header against the alias table.
func matchTarget(norm string) (string, float64) {
	if norm == "" {
		return "", 0
	}

	for target, aliases := range targetAliases {
		if norm == aliases[0] {
			return target, 1.0
		}
	}
	for target, aliases := range targetAliases {
		for _, a := range aliases[1:] {
			if norm == a {
				return target, 0.9
			}
		}
	}
	// Weak fallback: header contains the canonical name.
	for target, aliases := range targetAliases {
		if strings.Contains(norm, aliases[0]) {
			return target, 0.6
		}
	}
	return "", 0
}

// normalizeHeader lowercases and strips separators so "Stock_Quantity" and
// "stock quantity" compare equal.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		switch r {
		case ' ', '_', '-', '.', '/':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
