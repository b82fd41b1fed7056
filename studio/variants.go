package studio

import (
	"fmt"
	"os"
	"strings"

	"sketchmagic_back/generator"
)

const defaultVariants = "square=1:1,portrait=9:16,landscape=16:9"

// Variant is one aspect-ratio rendition requested for every submission.
type Variant struct {
	Name        string `json:"name"`
	AspectRatio string `json:"aspect_ratio"`
}

// ParseVariants reads "name=ratio,name=ratio". Names must be unique and
// ratios supported by the image model.
func ParseVariants(raw string) ([]Variant, error) {
	var out []Variant
	seen := map[string]struct{}{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, ratio, ok := strings.Cut(item, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		ratio = strings.TrimSpace(ratio)
		if !ok || name == "" {
			return nil, fmt.Errorf("studio: invalid variant %q", item)
		}
		if !generator.IsSupportedAspectRatio(ratio) {
			return nil, fmt.Errorf("studio: variant %s has unsupported aspect ratio %q", name, ratio)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("studio: duplicate variant %q", name)
		}
		seen[name] = struct{}{}
		out = append(out, Variant{Name: name, AspectRatio: ratio})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("studio: no variants configured")
	}
	return out, nil
}

// VariantsFromEnv reads STUDIO_VARIANTS, defaulting to square, portrait and
// landscape.
func VariantsFromEnv() ([]Variant, error) {
	raw := strings.TrimSpace(os.Getenv("STUDIO_VARIANTS"))
	if raw == "" {
		raw = defaultVariants
	}
	return ParseVariants(raw)
}
