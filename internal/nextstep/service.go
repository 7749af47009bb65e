package nextstep

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pulseboard/internal/domain"
)

const (
	requestTimeout = 5 * time.Second
	cacheTTL       = 10 * time.Minute
	cacheCap       = 50
)

// Context is the project snapshot handed to the adapter alongside the task
// title.
type Context struct {
	Progress       int
	TeamMembers    []string
	Blockers       []string
	CompletedTasks int
	TotalTasks     int
	Deadline       string
}

type cacheEntry struct {
	step     domain.NextStep
	storedAt time.Time
}

// Service produces a next-step suggestion for a task. It caches model answers
// and degrades to deterministic fallback rules on any model failure; Suggest
// never returns an error.
type Service struct {
	Client Client
	Now    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string
}

func NewService(client Client) *Service {
	return &Service{
		Client: client,
		cache:  make(map[string]cacheEntry),
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Suggest returns the recommended next step for taskTitle given the project
// context.
func (s *Service) Suggest(ctx context.Context, taskTitle string, pc Context) domain.NextStep {
	start := time.Now()
	key := fmt.Sprintf("%s_%d_%d", taskTitle, pc.Progress, len(pc.Blockers))

	if step, ok := s.lookup(key); ok {
		step.Cached = true
		step.ProcessingTimeMs = time.Since(start).Milliseconds()
		return step
	}

	step, ok := s.fromModel(ctx, taskTitle, pc)
	if !ok {
		step = fallback(pc)
	}
	step.ProcessingTimeMs = time.Since(start).Milliseconds()
	if step.Source == "model" {
		s.store(key, step)
	}
	return step
}

func (s *Service) lookup(key string) (domain.NextStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return domain.NextStep{}, false
	}
	if s.now().Sub(entry.storedAt) > cacheTTL {
		delete(s.cache, key)
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return domain.NextStep{}, false
	}
	return entry.step, true
}

func (s *Service) store(key string, step domain.NextStep) {
	step.Cached = false
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		s.cache = make(map[string]cacheEntry)
	}
	if _, exists := s.cache[key]; !exists {
		if len(s.order) >= cacheCap {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.cache, oldest)
		}
		s.order = append(s.order, key)
	}
	s.cache[key] = cacheEntry{step: step, storedAt: s.now()}
}

func (s *Service) fromModel(ctx context.Context, taskTitle string, pc Context) (domain.NextStep, bool) {
	if s.Client == nil {
		return domain.NextStep{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	raw, err := s.Client.Suggest(ctx, buildPrompt(taskTitle, pc))
	if err != nil {
		return domain.NextStep{}, false
	}
	step := domain.NextStep{
		Next:       raw.Next,
		Who:        raw.Who,
		Time:       raw.Time,
		Why:        raw.Why,
		Confidence: 85,
		Source:     "model",
	}
	if step.Who == "" {
		step.Who = "Team Lead"
	}
	if step.Time == "" {
		step.Time = "2-4 hours"
	}
	if step.Why == "" {
		step.Why = "Maintain project momentum"
	}
	return step, true
}

func buildPrompt(taskTitle string, pc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current task: %s\n", taskTitle)
	fmt.Fprintf(&b, "Progress: %d%%\n", pc.Progress)
	fmt.Fprintf(&b, "Tasks completed: %d of %d\n", pc.CompletedTasks, pc.TotalTasks)
	if len(pc.TeamMembers) > 0 {
		fmt.Fprintf(&b, "Team: %s\n", strings.Join(pc.TeamMembers, ", "))
	}
	if pc.Deadline != "" {
		fmt.Fprintf(&b, "Deadline: %s\n", pc.Deadline)
	}
	if len(pc.Blockers) > 0 {
		fmt.Fprintf(&b, "Active blockers:\n")
		for _, blocker := range pc.Blockers {
			fmt.Fprintf(&b, "- %s\n", blocker)
		}
	}
	b.WriteString("What is the single most valuable next step?")
	return b.String()
}

// fallback picks a canned suggestion from the project state when the model is
// unavailable.
func fallback(pc Context) domain.NextStep {
	step := domain.NextStep{
		Confidence: 70,
		Source:     "fallback",
	}
	switch {
	case len(pc.Blockers) > 0:
		step.Next = "Address any blockers from team chat"
		step.Who = "Team Lead"
		step.Time = "2 hours"
		step.Why = "Unblock team and maintain velocity"
	case pc.Progress > 80:
		step.Next = "Update stakeholders on progress"
		step.Who = "Product Owner"
		step.Time = "30 minutes"
		step.Why = "Maintain transparency and alignment"
	default:
		step.Next = "Review and prioritize remaining tasks"
		step.Who = "Project Manager"
		step.Time = "1 hour"
		step.Why = "Ensure team alignment on priorities"
	}
	return step
}
