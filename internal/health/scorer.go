package health

import (
	"fmt"
	"math"
	"time"

	"pulseboard/internal/domain"
)

// Component weights. They sum to 1.0; the weight strings in the report are
// display values and must match these.
const (
	weightCompletion = 0.40
	weightOnTime     = 0.25
	weightBalance    = 0.20
	weightBlockers   = 0.15
)

const recentWindow = time.Hour

// Scorer computes the weighted project health report from repo snapshots.
// Pure: it never touches storage. Now is injectable for trend and overdue
// determinism in tests.
type Scorer struct {
	Now func() time.Time
}

func (s Scorer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Score folds task, message and contribution snapshots into a single report.
func (s Scorer) Score(tasks []domain.Task, messages []domain.Message, contributions []domain.Contribution) domain.HealthReport {
	start := time.Now()
	now := s.now()

	var completed, inProgress, pending, overdue int
	for _, t := range tasks {
		switch t.Status {
		case domain.StatusCompleted:
			completed++
		case domain.StatusInProgress:
			inProgress++
		case domain.StatusPending:
			pending++
		}
		if t.Status != domain.StatusCompleted && t.Deadline != nil && *t.Deadline != "" {
			if dl, err := time.Parse(time.RFC3339, *t.Deadline); err == nil && dl.Before(now) {
				overdue++
			}
		}
	}

	activeBlockers := 0
	for _, m := range messages {
		if m.Analysis != nil && len(m.Analysis.Blockers) > 0 {
			activeBlockers++
		}
	}

	// Sub-scores stay unrounded for the weighted combination; rounding
	// happens only in the details/components display fields.
	completionScore := completionScore(tasks, completed)
	onTimeScore := onTimeScore(tasks)
	balanceScore := balanceScore(contributions)
	blockerScore := blockerScore(activeBlockers)

	weighted := completionScore*weightCompletion +
		onTimeScore*weightOnTime +
		balanceScore*weightBalance +
		float64(blockerScore)*weightBlockers
	score := int(math.Round(weighted))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	status, message, color := statusFor(score)

	report := domain.HealthReport{
		Score:   score,
		Status:  status,
		Message: message,
		Color:   color,
		Trend:   s.trend(score, tasks, messages, now),
		Details: domain.HealthDetails{
			TotalTasks:         len(tasks),
			CompletedTasks:     completed,
			InProgressTasks:    inProgress,
			PendingTasks:       pending,
			OverdueTasks:       overdue,
			ActiveBlockers:     activeBlockers,
			TotalMessages:      len(messages),
			TeamSize:           len(contributions),
			CompletionRate:     int(math.Round(completionScore)),
			OnTimeRate:         int(math.Round(onTimeScore)),
			TeamBalanceScore:   int(math.Round(balanceScore)),
			BlockerImpactScore: blockerScore,
		},
		Components: domain.HealthComponents{
			Completion:    domain.HealthComponent{Score: int(math.Round(completionScore)), Weight: "40%"},
			OnTime:        domain.HealthComponent{Score: int(math.Round(onTimeScore)), Weight: "25%"},
			TeamBalance:   domain.HealthComponent{Score: int(math.Round(balanceScore)), Weight: "20%"},
			BlockerImpact: domain.HealthComponent{Score: blockerScore, Weight: "15%"},
		},
		CalculatedAt: now.Format(time.RFC3339),
	}
	report.Recommendations = recommendations(report)
	report.ProcessingTimeMs = time.Since(start).Milliseconds()
	return report
}

// completionScore is the percentage of tasks completed; an empty board is
// treated as fully complete.
func completionScore(tasks []domain.Task, completed int) float64 {
	if len(tasks) == 0 {
		return 100
	}
	return float64(completed) / float64(len(tasks)) * 100
}

// onTimeScore looks at completed tasks only. A completed task with no
// deadline, or never updated, counts as on time. Unparseable stamps do not.
func onTimeScore(tasks []domain.Task) float64 {
	completed := 0
	onTime := 0
	for _, t := range tasks {
		if t.Status != domain.StatusCompleted {
			continue
		}
		completed++
		if t.Deadline == nil || *t.Deadline == "" || t.UpdatedAt == "" {
			onTime++
			continue
		}
		dl, errDL := time.Parse(time.RFC3339, *t.Deadline)
		up, errUp := time.Parse(time.RFC3339, t.UpdatedAt)
		if errDL == nil && errUp == nil && !up.After(dl) {
			onTime++
		}
	}
	if completed == 0 {
		return 100
	}
	return float64(onTime) / float64(completed) * 100
}

// balanceScore measures workload spread via the coefficient of variation of
// per-member completed-task counts. A mean of zero uses an effective mean of
// 10 so an idle team scores high rather than dividing by zero.
func balanceScore(contributions []domain.Contribution) float64 {
	switch len(contributions) {
	case 0:
		return 50
	case 1:
		return 100
	}
	var sum float64
	for _, c := range contributions {
		sum += float64(c.TasksCompleted)
	}
	mean := sum / float64(len(contributions))
	var variance float64
	for _, c := range contributions {
		d := float64(c.TasksCompleted) - mean
		variance += d * d
	}
	variance /= float64(len(contributions))
	stddev := math.Sqrt(variance)
	effectiveMean := mean
	if effectiveMean <= 0 {
		effectiveMean = 10
	}
	score := 100 - stddev/effectiveMean*100
	if score < 0 {
		score = 0
	}
	return score
}

// blockerScore drops 5 points per message carrying active blockers.
func blockerScore(activeBlockers int) int {
	score := 100 - activeBlockers*5
	if score < 0 {
		score = 0
	}
	return score
}

func statusFor(score int) (status, message, color string) {
	switch {
	case score >= 80:
		return "green", "All systems go! Project on track.", "#10B981"
	case score >= 60:
		return "yellow", "At Risk - Team needs support.", "#F59E0B"
	case score >= 40:
		return "orange", "Critical - Intervention needed.", "#F97316"
	default:
		return "red", "Emergency Mode - Immediate action required.", "#EF4444"
	}
}

// trend is a coarse activity heuristic over the trailing hour: busy chat or a
// burst of task updates reads as improving when the score is already healthy,
// total silence reads as declining.
func (s Scorer) trend(score int, tasks []domain.Task, messages []domain.Message, now time.Time) string {
	cutoff := now.Add(-recentWindow)
	recentMessages := 0
	for _, m := range messages {
		if ts, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil && ts.After(cutoff) {
			recentMessages++
		}
	}
	recentUpdates := 0
	for _, t := range tasks {
		stamp := t.UpdatedAt
		if stamp == "" {
			stamp = t.CreatedAt
		}
		if ts, err := time.Parse(time.RFC3339, stamp); err == nil && ts.After(cutoff) {
			recentUpdates++
		}
	}
	switch {
	case recentMessages > 5 || recentUpdates > 2:
		if score >= 70 {
			return "improving"
		}
		return "stable"
	case recentMessages == 0 && recentUpdates == 0:
		return "declining"
	default:
		return "stable"
	}
}

// recommendations emits the advisory list in fixed rule order.
func recommendations(r domain.HealthReport) []domain.Recommendation {
	recs := []domain.Recommendation{}
	if r.Details.CompletionRate < 50 {
		recs = append(recs, domain.Recommendation{
			Priority: "high",
			Category: "completion",
			Action:   "Focus team on completing in-progress tasks before starting new ones",
			Impact:   "Improves completion rate by 15-20%",
		})
	}
	if r.Details.OnTimeRate < 60 {
		recs = append(recs, domain.Recommendation{
			Priority: "high",
			Category: "deadlines",
			Action:   "Review task estimates and adjust deadlines to be more realistic",
			Impact:   "Reduces deadline pressure and improves quality",
		})
	}
	if r.Details.TeamBalanceScore < 60 {
		recs = append(recs, domain.Recommendation{
			Priority: "medium",
			Category: "team_balance",
			Action:   "Redistribute tasks to balance workload across team members",
			Impact:   "Prevents burnout and improves team morale",
		})
	}
	if n := r.Details.ActiveBlockers; n > 3 {
		recs = append(recs, domain.Recommendation{
			Priority: "critical",
			Category: "blockers",
			Action:   fmt.Sprintf("Address %d active blockers immediately", n),
			Impact:   "Unblocks team and restores velocity",
		})
	} else if n > 0 {
		recs = append(recs, domain.Recommendation{
			Priority: "medium",
			Category: "blockers",
			Action:   fmt.Sprintf("Resolve %d blocker(s) to maintain momentum", n),
			Impact:   "Prevents blockers from accumulating",
		})
	}
	if n := r.Details.OverdueTasks; n > 0 {
		recs = append(recs, domain.Recommendation{
			Priority: "high",
			Category: "overdue",
			Action:   fmt.Sprintf("Prioritize %d overdue task(s) for immediate completion", n),
			Impact:   "Improves on-time delivery rate",
		})
	}
	if r.Score >= 80 && len(recs) == 0 {
		recs = append(recs, domain.Recommendation{
			Priority: "low",
			Category: "momentum",
			Action:   "Maintain current pace and celebrate team wins",
			Impact:   "Sustains high performance and morale",
		})
	}
	return recs
}
