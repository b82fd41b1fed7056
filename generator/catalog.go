package generator

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// StyleOption is one rendering style offered in the picker.
type StyleOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

// CategoryOption is the kind of subject the sketch depicts.
type CategoryOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Catalog lists the styles and categories a submission may pick from.
type Catalog struct {
	Styles     []StyleOption    `json:"styles"`
	Categories []CategoryOption `json:"categories"`
}

var defaultStyles = []StyleOption{
	{ID: "Realistic", Label: "Real Photo", Icon: "fa-camera", Description: "Looks like a real photograph"},
	{ID: "iPhone Photo", Label: "iPhone Camera", Icon: "fa-mobile-screen-button", Description: "Shot on an iPhone 15 Pro"},
	{ID: "Kids Drawing", Label: "Kids Doodle", Icon: "fa-child", Description: "Crayon drawing by a child"},
	{ID: "Watercolor", Label: "Watercolor", Icon: "fa-palette", Description: "Artistic watercolor painting"},
	{ID: "Anime", Label: "Anime", Icon: "fa-clapperboard", Description: "Vibrant and clean line art"},
	{ID: "Classic Comic", Label: "Classic Comic", Icon: "fa-book-open", Description: "Vintage 60s comic style"},
	{ID: "Cinematic", Label: "Cinematic", Icon: "fa-film", Description: "Epic big-screen visuals"},
	{ID: "Dark Fantasy", Label: "Mysterious", Icon: "fa-moon", Description: "Dark and dramatic"},
	{ID: "Sci-Fi / Cyberpunk", Label: "Future", Icon: "fa-rocket", Description: "Robots and technology"},
	{ID: "Epic Fantasy", Label: "Magic World", Icon: "fa-hat-wizard", Description: "Dragons and knights"},
}

var defaultCategories = []CategoryOption{
	{ID: "Character", Label: "Character"},
	{ID: "Creature", Label: "Monster / Animal"},
	{ID: "Vehicle", Label: "Vehicle"},
	{ID: "Object", Label: "Object"},
	{ID: "Environment", Label: "Landscape"},
}

// DefaultCatalog returns a copy of the built-in catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Styles:     append([]StyleOption(nil), defaultStyles...),
		Categories: append([]CategoryOption(nil), defaultCategories...),
	}
}

// LoadCatalog returns the STYLE_CATALOG / STYLE_CATALOG_FILE override, or the
// built-in catalog when neither is set or parses.
func LoadCatalog() Catalog {
	if catalog, ok := loadCatalogFromEnv(); ok {
		return catalog
	}
	return DefaultCatalog()
}

// loadCatalogFromEnv reads STYLE_CATALOG, then STYLE_CATALOG_FILE; ok is
// false when neither yields a usable catalog.
func loadCatalogFromEnv() (Catalog, bool) {
	if raw := strings.TrimSpace(os.Getenv("STYLE_CATALOG")); raw != "" {
		if catalog, ok := parseCatalogJSON(raw); ok {
			return catalog, true
		}
		log.Printf("generator: failed to parse STYLE_CATALOG override")
	}

	if rawPath := strings.TrimSpace(os.Getenv("STYLE_CATALOG_FILE")); rawPath != "" {
		data, err := os.ReadFile(filepath.Clean(rawPath))
		if err != nil {
			log.Printf("generator: read STYLE_CATALOG_FILE failed: %v", err)
		} else if catalog, ok := parseCatalogJSON(string(data)); ok {
			return catalog, true
		} else {
			log.Printf("generator: failed to parse catalog file %s", rawPath)
		}
	}
	return Catalog{}, false
}

// parseCatalogJSON accepts a partial override; a missing list keeps the
// built-in one.
func parseCatalogJSON(raw string) (Catalog, bool) {
	var decoded Catalog
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &decoded); err != nil {
		return Catalog{}, false
	}
	styles := normalizeStyles(decoded.Styles)
	categories := normalizeCategories(decoded.Categories)
	if len(styles) == 0 && len(categories) == 0 {
		return Catalog{}, false
	}

	catalog := DefaultCatalog()
	if len(styles) > 0 {
		catalog.Styles = styles
	}
	if len(categories) > 0 {
		catalog.Categories = categories
	}
	return catalog, true
}

// normalizeStyles trims ids and drops blank or duplicate styles.
func normalizeStyles(list []StyleOption) []StyleOption {
	result := make([]StyleOption, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		key := strings.ToLower(id)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}

		option := StyleOption{
			ID:          id,
			Label:       strings.TrimSpace(item.Label),
			Icon:        strings.TrimSpace(item.Icon),
			Description: strings.TrimSpace(item.Description),
		}
		if option.Label == "" {
			option.Label = id
		}
		result = append(result, option)
	}
	return result
}

// normalizeCategories trims ids and drops blank or duplicate categories.
func normalizeCategories(list []CategoryOption) []CategoryOption {
	result := make([]CategoryOption, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		key := strings.ToLower(id)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		label := strings.TrimSpace(item.Label)
		if label == "" {
			label = id
		}
		result = append(result, CategoryOption{ID: id, Label: label})
	}
	return result
}

// LookupStyle resolves a style id case-insensitively.
func (c Catalog) LookupStyle(id string) (StyleOption, bool) {
	needle := strings.TrimSpace(id)
	for _, s := range c.Styles {
		if strings.EqualFold(s.ID, needle) {
			return s, true
		}
	}
	return StyleOption{}, false
}

// LookupCategory resolves a category id case-insensitively.
func (c Catalog) LookupCategory(id string) (CategoryOption, bool) {
	needle := strings.TrimSpace(id)
	for _, cat := range c.Categories {
		if strings.EqualFold(cat.ID, needle) {
			return cat, true
		}
	}
	return CategoryOption{}, false
}
