package classify

import (
	"fmt"

	"pulseboard/internal/domain"
)

var badgeColors = map[string]string{
	"blocker":  "#EF4444",
	"decision": "#10B981",
	"action":   "#3B82F6",
	"risk":     "#F59E0B",
}

// Badges condenses an analysis into per-kind UI badges. Kinds with no
// detections are omitted; order is fixed blocker, decision, action, risk.
func Badges(a domain.Analysis) []domain.Badge {
	badges := []domain.Badge{}
	for _, kind := range []struct {
		name       string
		detections []domain.Detection
		label      string
	}{
		{"blocker", a.Blockers, "Blocker"},
		{"decision", a.Decisions, "Decision"},
		{"action", a.Actions, "Action"},
		{"risk", a.Risks, "Risk"},
	} {
		n := len(kind.detections)
		if n == 0 {
			continue
		}
		label := fmt.Sprintf("%d %s", n, kind.label)
		if n > 1 {
			label += "s"
		}
		badges = append(badges, domain.Badge{
			Type:  kind.name,
			Count: n,
			Label: label,
			Color: badgeColors[kind.name],
		})
	}
	return badges
}
