package usecase

import (
	"reflect"
	"testing"

	"github.com/diysmart/productinfo/internal/domain"
)

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.Category
	}{
		{"tools", domain.CategoryTools},
		{"TOOLS", domain.CategoryTools},
		{"  Materials ", domain.CategoryMaterials},
		{"Power Tools > Drills", domain.CategoryTools},
		{"Cordless Drill", domain.CategoryTools},
		{"Screwdriver Set", domain.CategoryTools},
		{"PVC Pipe", domain.CategoryMaterials},
		{"Deck Screws", domain.CategoryMaterials},
		{"Safety Glasses", domain.CategorySafety},
		{"Work Gloves", domain.CategorySafety},
		{"Battery Pack", domain.CategoryAccessories},
		{"Garden Hose", domain.CategoryOther},
		{"Wireless Doorbell", domain.CategoryOther},
		{"Staircase Railing", domain.CategoryOther},
		{"Harvest Table", domain.CategoryOther},
		{"Wireless Keyboard", domain.CategoryOther},
		{"Copper Wire", domain.CategoryMaterials},
		{"Carrying Cases", domain.CategoryAccessories},
		{"Hi-Vis Safety Vests", domain.CategorySafety},
		{"Reflective Vest", domain.CategorySafety},
		{"MDF Boards", domain.CategoryMaterials},
		{"power-tools", domain.CategoryTools},
		{"Ear Muffs", domain.CategorySafety},
		{"", domain.CategoryOther},
		{"   ", domain.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := NormalizeCategory(tt.raw); got != tt.want {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeCategory_Idempotent(t *testing.T) {
	inputs := []string{
		"tools", "materials", "safety", "accessories", "other",
		"Drill Bits", "Lumber & Composites", "Hard Hat", "Charger", "Lamp", "",
	}

	for _, raw := range inputs {
		once := NormalizeCategory(raw)
		twice := NormalizeCategory(string(once))
		if once != twice {
			t.Errorf("NormalizeCategory not idempotent for %q: %q then %q", raw, once, twice)
		}
		if !once.Valid() {
			t.Errorf("NormalizeCategory(%q) = %q, outside vocabulary", raw, once)
		}
	}
}

func TestNormalizeProjectTypes(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []domain.ProjectType
	}{
		{
			name: "nil defaults to general",
			raw:  nil,
			want: []domain.ProjectType{domain.ProjectGeneral},
		},
		{
			name: "unrecognized defaults to general",
			raw:  []string{"space travel"},
			want: []domain.ProjectType{domain.ProjectGeneral},
		},
		{
			name: "vocabulary values with dashes",
			raw:  []string{"home-improvement"},
			want: []domain.ProjectType{domain.ProjectHomeImprovement},
		},
		{
			name: "free form mapped",
			raw:  []string{"Wood working", "home improvement"},
			want: []domain.ProjectType{domain.ProjectHomeImprovement, domain.ProjectWoodworking},
		},
		{
			name: "stems only match at word starts",
			raw:  []string{"homeowner tips", "hardwood floors"},
			want: []domain.ProjectType{domain.ProjectGeneral},
		},
		{
			name: "sorted and de-duplicated",
			raw:  []string{"plumbing", "Electrical", "electrical", "pipe repair"},
			want: []domain.ProjectType{domain.ProjectElectrical, domain.ProjectPlumbing},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeProjectTypes(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeProjectTypes(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeProjectTypes_Idempotent(t *testing.T) {
	first := NormalizeProjectTypes([]string{"Lighting", "cabinet making", "garage"})
	second := NormalizeProjectTypes(projectTypeStrings(first))
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second pass = %v, want %v", second, first)
	}
}
