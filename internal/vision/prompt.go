// internal/vision/prompt.go
package vision

import (
	"fmt"
	"strconv"
	"strings"

	"meal-companion/internal/models"
)

const depthPreviewLen = 5

// BuildPrompt embeds the prior session state and a depth preview into the
// analysis instruction.
func BuildPrompt(prior models.Session, depth models.DepthSummary) string {
	return fmt.Sprintf(`
Analyze this meal plate with depth information.

Previous total consumed: %s%%
Capture number: %d

Depth info: %dx%d pixels
Sample depth values: %s...

Return JSON only:
{
    "food_items": [{"name": "item", "category": "protein/carb/vegetable/etc"}],
    "remaining_percent": 75.0,
    "consumed_since_last": 25.0,
    "estimated_calories": 150,
    "confidence": 0.85
}

Use depth data to estimate 3D volume changes accurately.
`,
		formatNumber(prior.TotalConsumed),
		prior.Captures+1,
		depth.Width, depth.Height,
		depthPreview(depth.Values),
	)
}

func depthPreview(values []float64) string {
	n := min(len(values), depthPreviewLen)
	parts := make([]string, n)
	for i := range n {
		parts[i] = formatNumber(values[i])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
