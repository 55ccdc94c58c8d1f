// Package suppliers normalizes product payloads pushed by external
// sources into the import record shape. Each source has its own typed
// payload; the source tag decides which decoder runs, and unknown tags
// are rejected instead of guessing the shape.
package suppliers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/castlebay/importsvc/internal/core"
)

// Source identifies where a pushed product payload came from.
type Source string

const (
	// SourceCJ is the CJ dropshipping product API.
	SourceCJ Source = "cj"
	// SourceExtension is the browser extension's scraped product shape.
	SourceExtension Source = "extension"
)

// CJProduct is the payload shape the CJ product API delivers. Prices
// arrive as strings, sometimes as a "low -- high" range.
type CJProduct struct {
	PID           string `json:"pid"`
	ProductName   string `json:"productName"`
	ProductNameEn string `json:"productNameEn"`
	ProductSku    string `json:"productSku"`
	SellPrice     string `json:"sellPrice"`
	ProductImage  string `json:"productImage"`
	ProductWeight string `json:"productWeight"`
	CategoryName  string `json:"categoryName"`
	Description   string `json:"description"`
}

// ExtensionProduct is the payload the browser extension scrapes from a
// supplier product page.
type ExtensionProduct struct {
	Title       string   `json:"title"`
	Price       float64  `json:"price"`
	SKU         string   `json:"sku"`
	Stock       int      `json:"stock"`
	Images      []string `json:"images"`
	Description string   `json:"description"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	SourceURL   string   `json:"source_url"`
}

// Normalize decodes a raw payload from the given source into an import
// record. Line is zero because pushed products have no file position.
func Normalize(source Source, payload []byte) (core.Record, error) {
	switch source {
	case SourceCJ:
		var p CJProduct
		if err := json.Unmarshal(payload, &p); err != nil {
			return core.Record{}, fmt.Errorf("decode cj payload: %w", err)
		}
		return p.record()
	case SourceExtension:
		var p ExtensionProduct
		if err := json.Unmarshal(payload, &p); err != nil {
			return core.Record{}, fmt.Errorf("decode extension payload: %w", err)
		}
		return p.record()
	default:
		return core.Record{}, fmt.Errorf("unknown supplier source %q", source)
	}
}

func (p CJProduct) record() (core.Record, error) {
	name := strings.TrimSpace(p.ProductNameEn)
	if name == "" {
		name = strings.TrimSpace(p.ProductName)
	}
	if name == "" {
		return core.Record{}, fmt.Errorf("cj product has no name")
	}

	price, ok := parseCJPrice(p.SellPrice)
	if !ok {
		return core.Record{}, fmt.Errorf("cj product %q has invalid price %q", name, p.SellPrice)
	}

	fields := map[string]any{
		core.FieldName:  name,
		core.FieldPrice: price,
		core.FieldStock: 0,
	}
	if sku := strings.TrimSpace(p.ProductSku); sku != "" {
		fields[core.FieldSKU] = sku
	}
	if p.ProductImage != "" {
		fields[core.FieldImages] = []string{p.ProductImage}
	}
	if cat := strings.TrimSpace(p.CategoryName); cat != "" {
		fields[core.FieldCategory] = cat
	}
	if desc := strings.TrimSpace(p.Description); desc != "" {
		fields[core.FieldDescription] = desc
	}
	if w, ok := parseCJPrice(p.ProductWeight); ok {
		fields[core.FieldWeight] = w
	}

	return core.Record{Fields: fields}, nil
}

// parseCJPrice reads CJ's string-typed numbers. Ranged values like
// "2.50 -- 3.10" resolve to the lower bound.
func parseCJPrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if i := strings.Index(raw, "--"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if value < 0 {
		return 0, false
	}
	return value, true
}

func (p ExtensionProduct) record() (core.Record, error) {
	name := strings.TrimSpace(p.Title)
	if name == "" {
		return core.Record{}, fmt.Errorf("extension product has no title")
	}
	if p.Price < 0 {
		return core.Record{}, fmt.Errorf("extension product %q has negative price", name)
	}

	stock := p.Stock
	if stock < 0 {
		stock = 0
	}

	fields := map[string]any{
		core.FieldName:  name,
		core.FieldPrice: p.Price,
		core.FieldStock: stock,
	}
	if sku := strings.TrimSpace(p.SKU); sku != "" {
		fields[core.FieldSKU] = sku
	}
	if len(p.Images) > 0 {
		fields[core.FieldImages] = p.Images
	}
	if desc := strings.TrimSpace(p.Description); desc != "" {
		fields[core.FieldDescription] = desc
	}
	if brand := strings.TrimSpace(p.Brand); brand != "" {
		fields[core.FieldBrand] = brand
	}
	if cat := strings.TrimSpace(p.Category); cat != "" {
		fields[core.FieldCategory] = cat
	}

	return core.Record{Fields: fields}, nil
}
