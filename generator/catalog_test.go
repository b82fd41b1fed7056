package generator

import (
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	if len(catalog.Styles) != 10 || len(catalog.Categories) != 5 {
		t.Fatalf("catalog has %d styles and %d categories", len(catalog.Styles), len(catalog.Categories))
	}
	if _, ok := catalog.LookupStyle("anime"); !ok {
		t.Fatal("LookupStyle should be case-insensitive")
	}
	if _, ok := catalog.LookupCategory("Spaceship"); ok {
		t.Fatal("unknown category resolved")
	}
}

func TestCatalogOverride(t *testing.T) {
	t.Setenv("STYLE_CATALOG", `{"styles":[{"id":" Noir "},{"id":"noir"},{"id":""}]}`)
	t.Setenv("STYLE_CATALOG_FILE", "")
	catalog := LoadCatalog()
	if len(catalog.Styles) != 1 || catalog.Styles[0].ID != "Noir" || catalog.Styles[0].Label != "Noir" {
		t.Fatalf("styles = %+v", catalog.Styles)
	}
	if len(catalog.Categories) != 5 {
		t.Fatalf("categories should fall back to the defaults, got %d", len(catalog.Categories))
	}

	t.Setenv("STYLE_CATALOG", "not json")
	if got := LoadCatalog(); len(got.Styles) != 10 {
		t.Fatalf("invalid override should fall back, got %d styles", len(got.Styles))
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("Watercolor", "Vehicle", "  rainy street ")
	for _, want := range []string{"Target Object: Vehicle.", "Style: Watercolor.", "Details: rainy street", "Watercolor materials"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !IsSupportedAspectRatio("21:9") || IsSupportedAspectRatio("2:1") {
		t.Fatal("aspect ratio table mismatch")
	}
}
