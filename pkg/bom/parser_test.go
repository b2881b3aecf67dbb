package bom

import (
	"errors"
	"strings"
	"testing"
)

const kicadBOM = `"Comment","Designator","Footprint","LCSC","Quantity"
"100nF/16V/0603","C1,C2,C3","C_0603_1608Metric","C14663","3"
"10k","R1","R_0402_1005Metric","C25744","1"
"MountingHole","H1","MountingHole_3.2mm","",""
"","","","",""
"LED","D1","LED_0603","X123","2"
`

func TestParseCSV(t *testing.T) {
	res, err := ParseCSV(strings.NewReader(kicadBOM))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}

	if len(res.Items) != 4 {
		t.Fatalf("got %d items, want 4", len(res.Items))
	}

	first := res.Items[0]
	if first.Comment != "100nF/16V/0603" || first.Designator != "C1,C2,C3" ||
		first.Footprint != "C_0603_1608Metric" || first.PartNumber != "C14663" || first.Quantity != 3 {
		t.Errorf("first item = %+v", first)
	}

	if res.Items[2].Quantity != 0 {
		t.Errorf("empty quantity parsed as %d, want 0", res.Items[2].Quantity)
	}

	want := []string{
		"Row 3: Quantity must be positive",
		"Row 4: Invalid LCSC part number format (should be C followed by numbers)",
	}
	if len(res.Warnings) != len(want) {
		t.Fatalf("warnings = %q, want %q", res.Warnings, want)
	}
	for i := range want {
		if res.Warnings[i] != want[i] {
			t.Errorf("warning[%d] = %q, want %q", i, res.Warnings[i], want[i])
		}
	}
}

func TestParseCSV_HeaderNormalization(t *testing.T) {
	input := "\ufeff  QUANTITY , lcsc ,Designator\n5,C1000,U1\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(res.Items))
	}
	got := res.Items[0]
	if got.Quantity != 5 || got.PartNumber != "C1000" || got.Designator != "U1" {
		t.Errorf("item = %+v", got)
	}
}

func TestParseCSV_NegativeQuantity(t *testing.T) {
	input := "Comment,Designator,LCSC,Quantity\n10k,R1,C1000,-3\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(res.Items))
	}
	if q := res.Items[0].Quantity; q != 0 {
		t.Errorf("Quantity = %d, want 0", q)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "Row 1: Quantity must be positive" {
		t.Errorf("warnings = %q", res.Warnings)
	}
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	if !errors.Is(err, ErrEmptyBOM) {
		t.Errorf("error = %v, want ErrEmptyBOM", err)
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"31", 31},
		{" 12 ", 12},
		{"3.5", 3},
		{"12pcs", 12},
		{"", 0},
		{"abc", 0},
		{"-4", 0},
		{"+7", 7},
	}

	for _, tt := range tests {
		if got := parseQuantity(tt.in); got != tt.want {
			t.Errorf("parseQuantity(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidPartNumber(t *testing.T) {
	tests := []struct {
		pn   string
		want bool
	}{
		{"C17168", true},
		{"C1", true},
		{"", false},
		{"C", false},
		{"X123", false},
		{"c123", false},
		{"C12a", false},
		{" C12", false},
	}

	for _, tt := range tests {
		if got := ValidPartNumber(tt.pn); got != tt.want {
			t.Errorf("ValidPartNumber(%q) = %v, want %v", tt.pn, got, tt.want)
		}
		wantStatus := StatusSkipped
		if tt.want {
			wantStatus = StatusPending
		}
		if got := InitialStatus(tt.pn); got != wantStatus {
			t.Errorf("InitialStatus(%q) = %s, want %s", tt.pn, got, wantStatus)
		}
	}
}

func TestPriceTier_Contains(t *testing.T) {
	max := 9
	bounded := PriceTier{MinQty: 1, MaxQty: &max, Price: 0.1}
	open := PriceTier{MinQty: 100, Price: 0.05}

	if !bounded.Contains(1) || !bounded.Contains(9) || bounded.Contains(10) || bounded.Contains(0) {
		t.Error("bounded tier boundaries wrong")
	}
	if !open.Contains(100) || !open.Contains(1_000_000) || open.Contains(99) {
		t.Error("open tier boundaries wrong")
	}
}
