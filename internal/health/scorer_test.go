package health

import (
	"fmt"
	"testing"
	"time"

	"pulseboard/internal/domain"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedScorer() Scorer {
	return Scorer{Now: func() time.Time { return testNow }}
}

func stamp(t time.Time) string { return t.Format(time.RFC3339) }

func TestScoreEmptyInputsNeutral(t *testing.T) {
	r := fixedScorer().Score(nil, nil, nil)
	if r.Components.Completion.Score != 100 {
		t.Fatalf("completion %d", r.Components.Completion.Score)
	}
	if r.Components.OnTime.Score != 100 {
		t.Fatalf("on_time %d", r.Components.OnTime.Score)
	}
	if r.Components.TeamBalance.Score != 50 {
		t.Fatalf("team_balance %d", r.Components.TeamBalance.Score)
	}
	if r.Components.BlockerImpact.Score != 100 {
		t.Fatalf("blocker_impact %d", r.Components.BlockerImpact.Score)
	}
	if r.Score != 90 {
		t.Fatalf("overall %d", r.Score)
	}
	if r.Status != "green" || r.Color != "#10B981" {
		t.Fatalf("status %s color %s", r.Status, r.Color)
	}
	if r.Trend != "declining" {
		t.Fatalf("trend %s", r.Trend)
	}
}

func TestScoreScenario(t *testing.T) {
	var tasks []domain.Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, domain.Task{
			ID:        fmt.Sprintf("t%d", i),
			Title:     "done",
			Status:    domain.StatusCompleted,
			Progress:  100,
			CreatedAt: stamp(testNow.Add(-48 * time.Hour)),
			UpdatedAt: stamp(testNow.Add(-24 * time.Hour)),
		})
	}
	for i := 6; i < 8; i++ {
		tasks = append(tasks, domain.Task{
			ID:        fmt.Sprintf("t%d", i),
			Status:    domain.StatusInProgress,
			CreatedAt: stamp(testNow.Add(-48 * time.Hour)),
			UpdatedAt: stamp(testNow.Add(-24 * time.Hour)),
		})
	}
	for i := 8; i < 10; i++ {
		tasks = append(tasks, domain.Task{
			ID:        fmt.Sprintf("t%d", i),
			Status:    domain.StatusPending,
			CreatedAt: stamp(testNow.Add(-48 * time.Hour)),
			UpdatedAt: stamp(testNow.Add(-24 * time.Hour)),
		})
	}
	contributions := []domain.Contribution{
		{MemberID: "m1", TasksCompleted: 3},
		{MemberID: "m2", TasksCompleted: 3},
		{MemberID: "m3", TasksCompleted: 3},
		{MemberID: "m4", TasksCompleted: 3},
	}

	r := fixedScorer().Score(tasks, nil, contributions)
	if r.Components.Completion.Score != 60 {
		t.Fatalf("completion %d", r.Components.Completion.Score)
	}
	if r.Components.OnTime.Score != 100 {
		t.Fatalf("on_time %d", r.Components.OnTime.Score)
	}
	if r.Components.TeamBalance.Score != 100 {
		t.Fatalf("team_balance %d", r.Components.TeamBalance.Score)
	}
	if r.Components.BlockerImpact.Score != 100 {
		t.Fatalf("blocker_impact %d", r.Components.BlockerImpact.Score)
	}
	if r.Score != 84 {
		t.Fatalf("overall %d", r.Score)
	}
	if r.Status != "green" {
		t.Fatalf("status %s", r.Status)
	}
	if r.Details.TotalTasks != 10 || r.Details.CompletedTasks != 6 || r.Details.InProgressTasks != 2 || r.Details.PendingTasks != 2 {
		t.Fatalf("details %+v", r.Details)
	}
	if len(r.Recommendations) != 1 || r.Recommendations[0].Category != "momentum" {
		t.Fatalf("recommendations %+v", r.Recommendations)
	}
}

func TestScoreFractionalCompletion(t *testing.T) {
	old := stamp(testNow.Add(-48 * time.Hour))
	var tasks []domain.Task
	for i := 0; i < 7; i++ {
		status := domain.StatusCompleted
		if i >= 5 {
			status = domain.StatusPending
		}
		tasks = append(tasks, domain.Task{
			ID:        fmt.Sprintf("t%d", i),
			Status:    status,
			CreatedAt: old,
			UpdatedAt: old,
		})
	}
	contributions := []domain.Contribution{{MemberID: "m1", TasksCompleted: 5}}

	// 5/7 completed is 71.43%; the weighted sum runs over the unrounded
	// rate, so round(71.43*0.40 + 100*0.25 + 100*0.20 + 100*0.15) = 89,
	// not 88 as rounding the rate first would give.
	r := fixedScorer().Score(tasks, nil, contributions)
	if r.Score != 89 {
		t.Fatalf("overall %d, want 89", r.Score)
	}
	if r.Components.Completion.Score != 71 {
		t.Fatalf("completion display %d, want 71", r.Components.Completion.Score)
	}
	if r.Details.CompletionRate != 71 {
		t.Fatalf("completion rate %d, want 71", r.Details.CompletionRate)
	}
}

func TestStatusBands(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{80, "green"},
		{79, "yellow"},
		{60, "yellow"},
		{59, "orange"},
		{40, "orange"},
		{39, "red"},
		{0, "red"},
		{100, "green"},
	}
	for _, c := range cases {
		status, _, _ := statusFor(c.score)
		if status != c.want {
			t.Fatalf("score %d: got %s, want %s", c.score, status, c.want)
		}
	}
}

func TestBlockerImpactMonotonic(t *testing.T) {
	prev := 105
	for n := 0; n <= 25; n++ {
		got := blockerScore(n)
		want := 100 - n*5
		if want < 0 {
			want = 0
		}
		if got != want {
			t.Fatalf("blockers %d: got %d, want %d", n, got, want)
		}
		if got > prev {
			t.Fatalf("score rose from %d to %d at %d blockers", prev, got, n)
		}
		prev = got
	}
}

func TestBlockerMessagesLowerScore(t *testing.T) {
	s := fixedScorer()
	analysis := &domain.Analysis{Blockers: []domain.Detection{{Text: "blocked by CI", Keyword: "blocked by"}}}
	old := stamp(testNow.Add(-2 * time.Hour))
	base := s.Score(nil, []domain.Message{{ID: "m0", Content: "hi", CreatedAt: old}}, nil)
	withBlocker := s.Score(nil, []domain.Message{
		{ID: "m0", Content: "hi", CreatedAt: old},
		{ID: "m1", Content: "blocked by CI", Analysis: analysis, CreatedAt: old},
	}, nil)
	if withBlocker.Score >= base.Score {
		t.Fatalf("blocker did not lower score: %d >= %d", withBlocker.Score, base.Score)
	}
	if withBlocker.Details.ActiveBlockers != 1 {
		t.Fatalf("active blockers %d", withBlocker.Details.ActiveBlockers)
	}
}

func TestTeamBalanceSpread(t *testing.T) {
	even := balanceScore([]domain.Contribution{{TasksCompleted: 4}, {TasksCompleted: 4}})
	if even != 100 {
		t.Fatalf("even split scored %v", even)
	}
	skewed := balanceScore([]domain.Contribution{{TasksCompleted: 8}, {TasksCompleted: 0}})
	if skewed >= even {
		t.Fatalf("skewed %v not below even %v", skewed, even)
	}
	single := balanceScore([]domain.Contribution{{TasksCompleted: 2}})
	if single != 100 {
		t.Fatalf("single member scored %v", single)
	}
	idle := balanceScore([]domain.Contribution{{}, {}})
	if idle != 100 {
		t.Fatalf("idle team scored %v", idle)
	}
}

func TestOverdueTasks(t *testing.T) {
	past := stamp(testNow.Add(-24 * time.Hour))
	tasks := []domain.Task{
		{ID: "t1", Status: domain.StatusInProgress, Deadline: &past, CreatedAt: past, UpdatedAt: past},
		{ID: "t2", Status: domain.StatusCompleted, Deadline: &past, CreatedAt: past, UpdatedAt: past},
	}
	r := fixedScorer().Score(tasks, nil, nil)
	if r.Details.OverdueTasks != 1 {
		t.Fatalf("overdue %d", r.Details.OverdueTasks)
	}
	found := false
	for _, rec := range r.Recommendations {
		if rec.Category == "overdue" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected overdue recommendation, got %+v", r.Recommendations)
	}
}

func TestTrend(t *testing.T) {
	recent := stamp(testNow.Add(-10 * time.Minute))
	var busy []domain.Message
	for i := 0; i < 6; i++ {
		busy = append(busy, domain.Message{ID: fmt.Sprintf("m%d", i), CreatedAt: recent})
	}
	s := fixedScorer()

	if r := s.Score(nil, busy, nil); r.Trend != "improving" {
		t.Fatalf("busy healthy project: trend %s", r.Trend)
	}

	quietTask := []domain.Task{{ID: "t1", Status: domain.StatusPending, CreatedAt: stamp(testNow.Add(-3 * time.Hour)), UpdatedAt: stamp(testNow.Add(-3 * time.Hour))}}
	if r := s.Score(quietTask, []domain.Message{{ID: "m1", CreatedAt: recent}}, nil); r.Trend != "stable" {
		t.Fatalf("light activity: trend %s", r.Trend)
	}

	if r := s.Score(quietTask, nil, nil); r.Trend != "declining" {
		t.Fatalf("silent project: trend %s", r.Trend)
	}
}
