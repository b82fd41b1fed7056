package generator

import (
	"fmt"
	"strings"
)

const defaultDetail = "8k resolution, cinematic lighting, masterpiece."

// SupportedAspectRatios are the ratios the image model accepts.
var SupportedAspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}

const DefaultAspectRatio = "1:1"

// IsSupportedAspectRatio reports whether ratio is accepted by the model.
func IsSupportedAspectRatio(ratio string) bool {
	for _, r := range SupportedAspectRatios {
		if r == ratio {
			return true
		}
	}
	return false
}

// BuildPrompt renders the transformation instructions sent next to the
// sketch.
func BuildPrompt(style, category, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = defaultDetail
	}
	var b strings.Builder
	b.WriteString("Advanced Image Transformation from Sketch.\n")
	fmt.Fprintf(&b, "Target Object: %s.\n", strings.TrimSpace(category))
	fmt.Fprintf(&b, "Style: %s.\n", strings.TrimSpace(style))
	fmt.Fprintf(&b, "Details: %s\n\n", detail)
	b.WriteString("STRICT COMPLIANCE RULES:\n")
	b.WriteString("1. POSE & STRUCTURE: Strictly follow the anatomical structure, pose and silhouette of the input sketch.\n")
	b.WriteString("2. CHARACTER IDENTITY: For characters, the facial structure and proportions of the sketch are the ground truth. Do not invent new poses.\n")
	fmt.Fprintf(&b, "3. TEXTURE: Replace pencil lines with %s materials (skin, metal, cloth and so on).\n", strings.TrimSpace(style))
	b.WriteString("4. BACKGROUND: Place the subject in an environment that fits the style.")
	return b.String()
}

// BuildSketchPrompt renders the instructions for a reference underdrawing
// of subject.
func BuildSketchPrompt(subject string) string {
	var b strings.Builder
	b.WriteString("Task: Professional Character/Object Underdrawing.\n")
	fmt.Fprintf(&b, "Subject: %s.\n\n", strings.TrimSpace(subject))
	b.WriteString("QUALITY GUIDELINES:\n")
	b.WriteString("- Characters use professional anatomical structure, a clear silhouette and correct proportions.\n")
	b.WriteString("- Clean rough pencil line art.\n")
	b.WriteString("- Stark black lines on a pure white background (#FFFFFF).\n")
	b.WriteString("- No colors, no heavy shading, no background details.\n")
	b.WriteString("- Thin, precise lines usable as a reference base.")
	return b.String()
}
