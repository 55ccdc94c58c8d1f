package core

import (
	"reflect"
	"testing"
)

func TestTransformRow_Coercion(t *testing.T) {
	mappings := []FieldMapping{
		{Source: "Product", Target: FieldName},
		{Source: "Price", Target: FieldPrice},
		{Source: "Cost", Target: FieldCostPrice},
		{Source: "Stock", Target: FieldStock},
		{Source: "Weight", Target: FieldWeight},
		{Source: "Images", Target: FieldImages},
		{Source: "Tags", Target: FieldTags},
		{Source: "Desc", Target: FieldDescription},
	}
	in := ParsedRow{
		Line: 4,
		Cells: map[string]string{
			"Product": "Widget",
			"Price":   "12,50",
			"Cost":    "8.00",
			"Stock":   "100",
			"Weight":  "0,5",
			"Images":  "a.jpg, b.jpg; c.jpg | d.jpg",
			"Tags":    "new;sale",
			"Desc":    "  padded  ",
		},
	}

	rec := TransformRow(in, mappings)

	if rec.Line != 4 {
		t.Errorf("line = %d, want 4", rec.Line)
	}
	if got := rec.Fields[FieldPrice]; got != 12.5 {
		t.Errorf("price = %v, want 12.5", got)
	}
	if got := rec.Fields[FieldCostPrice]; got != 8.0 {
		t.Errorf("cost_price = %v, want 8", got)
	}
	if got := rec.Fields[FieldStock]; got != 100 {
		t.Errorf("stock = %v, want 100", got)
	}
	if got := rec.Fields[FieldWeight]; got != 0.5 {
		t.Errorf("weight = %v, want 0.5", got)
	}
	wantImages := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}
	if got := rec.Fields[FieldImages]; !reflect.DeepEqual(got, wantImages) {
		t.Errorf("images = %v, want %v", got, wantImages)
	}
	wantTags := []string{"new", "sale"}
	if got := rec.Fields[FieldTags]; !reflect.DeepEqual(got, wantTags) {
		t.Errorf("tags = %v, want %v", got, wantTags)
	}
	if got := rec.Fields[FieldDescription]; got != "padded" {
		t.Errorf("description = %v, want trimmed string", got)
	}
}

func TestTransformRow_Defaults(t *testing.T) {
	mappings := []FieldMapping{
		{Source: "Product", Target: FieldName},
		{Source: "Price", Target: FieldPrice},
		{Source: "Stock", Target: FieldStock},
		{Source: "Brand", Target: FieldBrand},
		{Source: "Tags", Target: FieldTags},
	}
	in := ParsedRow{
		Line: 2,
		Cells: map[string]string{
			"Product": "Widget",
			"Price":   "oops",
			"Stock":   "abc",
			"Brand":   "   ",
			"Tags":    " ;, ",
		},
	}

	rec := TransformRow(in, mappings)

	if got := rec.Fields[FieldPrice]; got != 0.0 {
		t.Errorf("unparseable price = %v, want 0", got)
	}
	if got := rec.Fields[FieldStock]; got != 0 {
		t.Errorf("unparseable stock = %v, want 0", got)
	}
	if _, ok := rec.Fields[FieldBrand]; ok {
		t.Error("blank brand should be absent, not empty string")
	}
	if _, ok := rec.Fields[FieldTags]; ok {
		t.Error("empty tag list should be absent")
	}
}

func TestTransformRow_IgnoresUnmappedEntries(t *testing.T) {
	mappings := []FieldMapping{
		{Source: "Product", Target: FieldName},
		{Source: "Notes", Target: ""},
	}
	rec := TransformRow(ParsedRow{Cells: map[string]string{"Product": "W", "Notes": "x"}}, mappings)
	if len(rec.Fields) != 1 {
		t.Errorf("fields = %v, want only name", rec.Fields)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{"a; b |c", []string{"a", "b", "c"}},
		{"", nil},
		{" , ; ", nil},
	}

	for _, tt := range tests {
		got := splitList(tt.input)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
