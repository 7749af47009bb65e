package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulseboard/internal/classify"
	"pulseboard/internal/config"
	"pulseboard/internal/domain"
	"pulseboard/internal/events"
	"pulseboard/internal/health"
	"pulseboard/internal/repo"
)

// Event types appended by engine mutations.
const (
	EventMessagePosted      = "message.posted"
	EventTaskCreated        = "task.created"
	EventTaskUpdated        = "task.updated"
	EventContributionUpdate = "contribution.updated"
	EventHealthChanged      = "health.changed"
)

// Engine holds the mutation and query logic over the workspace store.
// Mutations run in a transaction and append to the event log before commit.
type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Classifier classify.Classifier
	Scorer     health.Scorer
	Now        func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e Engine) clock() func() time.Time {
	if e.Now != nil {
		return e.Now
	}
	return nil
}

// Classify runs the pattern catalog over text without storing anything.
func (e Engine) Classify(text, username, timestamp string) domain.Analysis {
	c := e.Classifier
	if c.Now == nil {
		c.Now = e.clock()
	}
	return c.Classify(text, classify.Metadata{Username: username, Timestamp: timestamp})
}

type MessageCreate struct {
	Username string
	UserID   string
	Content  string
	ActorID  string
}

// PostMessage classifies and stores a chat message, appending a
// message.posted event that carries the analysis for downstream fan-out.
func (e Engine) PostMessage(ctx context.Context, in MessageCreate) (domain.Message, error) {
	if strings.TrimSpace(in.Username) == "" {
		return domain.Message{}, errors.New("username is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.Message{}, errors.New("content is required")
	}
	now := e.now().Format(time.RFC3339)
	analysis := e.Classify(in.Content, in.Username, now)
	msg := domain.Message{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Username:  in.Username,
		Content:   in.Content,
		Analysis:  &analysis,
		CreatedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMessage(ctx, tx, msg); err != nil {
		return domain.Message{}, err
	}
	if err := e.Events.Append(ctx, tx, EventMessagePosted, "message", msg.ID, e.actor(in.ActorID), events.EventPayload{
		"username": msg.Username,
		"analysis": analysis,
		"badges":   classify.Badges(analysis),
	}); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (e Engine) ListMessages(ctx context.Context, f repo.MessageFilters) ([]domain.Message, error) {
	return e.Repo.ListMessages(ctx, f)
}

// BatchAnalysis pairs a stored message with a fresh classification of its
// content.
type BatchAnalysis struct {
	MessageID string          `json:"message_id"`
	Content   string          `json:"content"`
	Analysis  domain.Analysis `json:"analysis"`
}

// ClassifyBatch re-runs the classifier over the whole message log. Useful
// after a catalog change; stored analyses are left untouched.
func (e Engine) ClassifyBatch(ctx context.Context) ([]BatchAnalysis, error) {
	messages, err := e.Repo.AllMessages(ctx)
	if err != nil {
		return nil, err
	}
	out := []BatchAnalysis{}
	for _, m := range messages {
		out = append(out, BatchAnalysis{
			MessageID: m.ID,
			Content:   m.Content,
			Analysis:  e.Classify(m.Content, m.Username, m.CreatedAt),
		})
	}
	return out, nil
}

type TaskCreate struct {
	ID       string
	Title    string
	Status   string
	Progress int
	Assignee string
	Deadline string
	ActorID  string
}

func (e Engine) CreateTask(ctx context.Context, in TaskCreate) (domain.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Task{}, errors.New("title is required")
	}
	status := domain.StatusPending
	if in.Status != "" {
		status = domain.NormalizeStatus(in.Status)
		if status == "" {
			return domain.Task{}, fmt.Errorf("invalid status %q", in.Status)
		}
	}
	if in.Progress < 0 || in.Progress > 100 {
		return domain.Task{}, errors.New("progress must be between 0 and 100")
	}
	if in.Deadline != "" {
		if _, err := time.Parse(time.RFC3339, in.Deadline); err != nil {
			return domain.Task{}, fmt.Errorf("invalid deadline: %w", err)
		}
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now().Format(time.RFC3339)
	task := domain.Task{
		ID:        id,
		Title:     in.Title,
		Status:    status,
		Progress:  in.Progress,
		Assignee:  in.Assignee,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Deadline != "" {
		task.Deadline = &in.Deadline
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, task); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, EventTaskCreated, "task", task.ID, e.actor(in.ActorID), events.EventPayload{
		"title":  task.Title,
		"status": task.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// TaskUpdate carries a partial update; nil fields are left unchanged.
type TaskUpdate struct {
	ID       string
	Title    *string
	Status   *string
	Progress *int
	Assignee *string
	Deadline *string
	ActorID  string
}

func (e Engine) UpdateTask(ctx context.Context, in TaskUpdate) (domain.Task, error) {
	task, err := e.Repo.GetTask(ctx, in.ID)
	if err != nil {
		return domain.Task{}, err
	}
	fromStatus := task.Status

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return domain.Task{}, errors.New("title is required")
		}
		task.Title = *in.Title
	}
	if in.Status != nil {
		status := domain.NormalizeStatus(*in.Status)
		if status == "" {
			return domain.Task{}, fmt.Errorf("invalid status %q", *in.Status)
		}
		task.Status = status
	}
	if in.Progress != nil {
		if *in.Progress < 0 || *in.Progress > 100 {
			return domain.Task{}, errors.New("progress must be between 0 and 100")
		}
		task.Progress = *in.Progress
	}
	if in.Assignee != nil {
		task.Assignee = *in.Assignee
	}
	if in.Deadline != nil {
		if *in.Deadline == "" {
			task.Deadline = nil
		} else {
			if _, err := time.Parse(time.RFC3339, *in.Deadline); err != nil {
				return domain.Task{}, fmt.Errorf("invalid deadline: %w", err)
			}
			task.Deadline = in.Deadline
		}
	}
	task.UpdatedAt = e.now().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, task); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, EventTaskUpdated, "task", task.ID, e.actor(in.ActorID), events.EventPayload{
		"from_status": fromStatus,
		"to_status":   task.Status,
		"progress":    task.Progress,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

// SetContribution upserts a per-member analytics record.
func (e Engine) SetContribution(ctx context.Context, c domain.Contribution, actorID string) (domain.Contribution, error) {
	if strings.TrimSpace(c.MemberID) == "" {
		return domain.Contribution{}, errors.New("member_id is required")
	}
	if c.TasksCompleted < 0 {
		return domain.Contribution{}, errors.New("tasks_completed must be >= 0")
	}
	if c.ImpactScore < 0 || c.ImpactScore > 100 {
		return domain.Contribution{}, errors.New("impact_score must be between 0 and 100")
	}
	c.UpdatedAt = e.now().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contribution{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertContribution(ctx, tx, c); err != nil {
		return domain.Contribution{}, err
	}
	if err := e.Events.Append(ctx, tx, EventContributionUpdate, "contribution", c.MemberID, e.actor(actorID), events.EventPayload{
		"tasks_completed": c.TasksCompleted,
		"impact_score":    c.ImpactScore,
	}); err != nil {
		return domain.Contribution{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contribution{}, err
	}
	return c, nil
}

func (e Engine) ListContributions(ctx context.Context) ([]domain.Contribution, error) {
	return e.Repo.ListContributions(ctx)
}

// Health computes the report from current snapshots. When the score moved
// since the last health.changed event, a new one is appended so webhook
// subscribers see transitions without polling the endpoint themselves.
func (e Engine) Health(ctx context.Context, actorID string) (domain.HealthReport, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return domain.HealthReport{}, err
	}
	messages, err := e.Repo.AllMessages(ctx)
	if err != nil {
		return domain.HealthReport{}, err
	}
	contributions, err := e.Repo.ListContributions(ctx)
	if err != nil {
		return domain.HealthReport{}, err
	}

	scorer := e.Scorer
	if scorer.Now == nil {
		scorer.Now = e.clock()
	}
	report := scorer.Score(tasks, messages, contributions)

	changed := true
	last, err := e.Repo.LastEventOfType(ctx, EventHealthChanged)
	if err == nil {
		var payload struct {
			Score int `json:"score"`
		}
		if json.Unmarshal([]byte(last.Payload), &payload) == nil && payload.Score == report.Score {
			changed = false
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.HealthReport{}, err
	}

	if changed {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return domain.HealthReport{}, err
		}
		defer tx.Rollback()
		if err := e.Events.Append(ctx, tx, EventHealthChanged, "project", e.Config.Project.ID, e.actor(actorID), events.EventPayload{
			"score":  report.Score,
			"status": report.Status,
			"trend":  report.Trend,
		}); err != nil {
			return domain.HealthReport{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.HealthReport{}, err
		}
	}
	return report, nil
}

// CreateAPIKey mints a key for actorID and stores only its hash. The
// plaintext is returned once and never again.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", errors.New("actor_id is required")
	}
	plaintext := "pbk_" + uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}

func (e Engine) actor(actorID string) string {
	if actorID != "" {
		return actorID
	}
	return "system"
}

// Seed loads a small demo board so the health report and classifier have
// something to chew on in a fresh workspace.
func (e Engine) Seed(ctx context.Context, actorID string) error {
	deadline := e.now().Add(72 * time.Hour).Format(time.RFC3339)
	tasks := []TaskCreate{
		{Title: "Design landing page", Status: domain.StatusCompleted, Progress: 100, Assignee: "alice", ActorID: actorID},
		{Title: "Implement auth flow", Status: domain.StatusInProgress, Progress: 60, Assignee: "bob", Deadline: deadline, ActorID: actorID},
		{Title: "Write onboarding docs", Status: domain.StatusPending, Assignee: "carol", ActorID: actorID},
	}
	for _, t := range tasks {
		if _, err := e.CreateTask(ctx, t); err != nil {
			return err
		}
	}
	messages := []MessageCreate{
		{Username: "alice", Content: "Landing page shipped, @bob should wire the signup button", ActorID: actorID},
		{Username: "bob", Content: "I'm blocked by the OAuth credentials, waiting for approval from IT", ActorID: actorID},
		{Username: "carol", Content: "We decided to go with the short onboarding flow", ActorID: actorID},
	}
	for _, m := range messages {
		if _, err := e.PostMessage(ctx, m); err != nil {
			return err
		}
	}
	contributions := []domain.Contribution{
		{MemberID: "alice", Name: "Alice", TasksCompleted: 4, ImpactScore: 80, TotalHours: 32},
		{MemberID: "bob", Name: "Bob", TasksCompleted: 3, ImpactScore: 70, TotalHours: 30},
		{MemberID: "carol", Name: "Carol", TasksCompleted: 3, ImpactScore: 65, TotalHours: 28},
	}
	for _, c := range contributions {
		if _, err := e.SetContribution(ctx, c, actorID); err != nil {
			return err
		}
	}
	return nil
}
