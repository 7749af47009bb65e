package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
	"pulseboard/internal/repo"
)

func newTestEnv(t *testing.T) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("pulseboard"))
	eng.Now = func() time.Time {
		return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	eng.Events.Now = eng.Now
	return eng
}

func TestPostMessageStoresAnalysisAndEvent(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()

	msg, err := eng.PostMessage(ctx, engine.MessageCreate{
		Username: "bob",
		Content:  "I'm blocked by the staging environment",
		ActorID:  "bob",
	})
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	if msg.Analysis == nil || len(msg.Analysis.Blockers) != 1 {
		t.Fatalf("expected one blocker, got %+v", msg.Analysis)
	}
	if msg.Analysis.Metadata.Confidence != 25 {
		t.Fatalf("confidence %d", msg.Analysis.Metadata.Confidence)
	}

	stored, err := eng.Repo.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if stored.Analysis == nil || len(stored.Analysis.Blockers) != 1 {
		t.Fatalf("analysis not persisted: %+v", stored.Analysis)
	}

	evts, err := eng.Repo.LatestEvents(ctx, 10)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 1 || evts[0].Type != engine.EventMessagePosted {
		t.Fatalf("events %+v", evts)
	}
	var payload struct {
		Analysis domain.Analysis `json:"analysis"`
		Badges   []domain.Badge  `json:"badges"`
	}
	if err := json.Unmarshal([]byte(evts[0].Payload), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Analysis.Blockers) != 1 || len(payload.Badges) != 1 {
		t.Fatalf("payload %+v", payload)
	}
}

func TestPostMessageValidation(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	if _, err := eng.PostMessage(ctx, engine.MessageCreate{Username: "", Content: "hi"}); err == nil {
		t.Fatal("expected error for missing username")
	}
	if _, err := eng.PostMessage(ctx, engine.MessageCreate{Username: "bob", Content: "  "}); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestTaskLifecycle(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()

	task, err := eng.CreateTask(ctx, engine.TaskCreate{Title: "Ship feature", ActorID: "alice"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != domain.StatusPending || task.Progress != 0 {
		t.Fatalf("defaults %+v", task)
	}

	status := "in-progress"
	progress := 40
	updated, err := eng.UpdateTask(ctx, engine.TaskUpdate{ID: task.ID, Status: &status, Progress: &progress, ActorID: "alice"})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Status != domain.StatusInProgress {
		t.Fatalf("legacy status not normalized: %s", updated.Status)
	}
	if updated.Progress != 40 {
		t.Fatalf("progress %d", updated.Progress)
	}

	bad := "archived"
	if _, err := eng.UpdateTask(ctx, engine.TaskUpdate{ID: task.ID, Status: &bad}); err == nil {
		t.Fatal("expected error for unknown status")
	}
	over := 140
	if _, err := eng.UpdateTask(ctx, engine.TaskUpdate{ID: task.ID, Progress: &over}); err == nil {
		t.Fatal("expected error for out-of-range progress")
	}

	evts, err := eng.Repo.LatestEvents(ctx, 10)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[0].Type != engine.EventTaskUpdated || evts[1].Type != engine.EventTaskCreated {
		t.Fatalf("event order %s, %s", evts[0].Type, evts[1].Type)
	}
}

func TestUpdateMissingTask(t *testing.T) {
	eng := newTestEnv(t)
	title := "nope"
	_, err := eng.UpdateTask(context.Background(), engine.TaskUpdate{ID: "missing", Title: &title})
	if err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContributionUpsert(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()

	if _, err := eng.SetContribution(ctx, domain.Contribution{MemberID: "alice", Name: "Alice", TasksCompleted: 2}, "alice"); err != nil {
		t.Fatalf("set contribution: %v", err)
	}
	if _, err := eng.SetContribution(ctx, domain.Contribution{MemberID: "alice", Name: "Alice", TasksCompleted: 5}, "alice"); err != nil {
		t.Fatalf("upsert contribution: %v", err)
	}
	list, err := eng.ListContributions(ctx)
	if err != nil {
		t.Fatalf("list contributions: %v", err)
	}
	if len(list) != 1 || list[0].TasksCompleted != 5 {
		t.Fatalf("contributions %+v", list)
	}
}

func TestHealthEmptyWorkspace(t *testing.T) {
	eng := newTestEnv(t)
	report, err := eng.Health(context.Background(), "tester")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if report.Score != 90 || report.Status != "green" {
		t.Fatalf("report %d %s", report.Score, report.Status)
	}
}

func TestHealthChangeEventAppendedOnce(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()

	if _, err := eng.Health(ctx, "tester"); err != nil {
		t.Fatalf("health: %v", err)
	}
	if _, err := eng.Health(ctx, "tester"); err != nil {
		t.Fatalf("health again: %v", err)
	}
	evts, err := eng.Repo.LatestEvents(ctx, 50)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	changes := 0
	for _, e := range evts {
		if e.Type == engine.EventHealthChanged {
			changes++
		}
	}
	if changes != 1 {
		t.Fatalf("expected one health.changed event, got %d", changes)
	}
}

func TestClassifyBatch(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	for _, content := range []string{"waiting for review", "all good here"} {
		if _, err := eng.PostMessage(ctx, engine.MessageCreate{Username: "bob", Content: content}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	batch, err := eng.ClassifyBatch(ctx)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch size %d", len(batch))
	}
	blockers := 0
	for _, b := range batch {
		blockers += len(b.Analysis.Blockers)
	}
	if blockers != 1 {
		t.Fatalf("expected 1 blocker across batch, got %d", blockers)
	}
}

func TestSeedPopulatesWorkspace(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	if err := eng.Seed(ctx, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tasks, err := eng.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("tasks %d", len(tasks))
	}
	report, err := eng.Health(ctx, "seed")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if report.Details.ActiveBlockers == 0 {
		t.Fatal("expected seeded blocker message to register")
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	eng := newTestEnv(t)
	ctx := context.Background()
	key, plaintext, err := eng.CreateAPIKey(ctx, "alice", "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if plaintext == "" || key.KeyHash == "" {
		t.Fatalf("key %+v plaintext %q", key, plaintext)
	}
	got, err := eng.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plaintext))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ActorID != "alice" {
		t.Fatalf("actor %q", got.ActorID)
	}
}
