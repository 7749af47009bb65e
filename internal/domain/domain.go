package domain

// Canonical task statuses. The board UI historically used a different
// vocabulary (backlog/in-progress/review/done); NormalizeStatus folds it
// into these classes at the boundary.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusCompleted  = "completed"
)

var legacyStatuses = map[string]string{
	"backlog":     StatusPending,
	"in-progress": StatusInProgress,
	"review":      StatusSubmitted,
	"done":        StatusCompleted,
}

// NormalizeStatus maps legacy board statuses onto the canonical set.
// Canonical values pass through unchanged; unknown values return "".
func NormalizeStatus(s string) string {
	switch s {
	case StatusPending, StatusInProgress, StatusSubmitted, StatusCompleted:
		return s
	}
	return legacyStatuses[s]
}

type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Analysis  *Analysis `json:"analysis,omitempty"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}

// Detection is one classifier rule firing on a message. Exactly one of the
// attribute fields (severity/impact/urgency/priority) is set, matching the
// signal kind the detection belongs to.
type Detection struct {
	Text        string `json:"text"`
	FullMessage string `json:"full_message"`
	Severity    string `json:"severity,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Urgency     string `json:"urgency,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	Keyword     string `json:"keyword"`
	DetectedAt  string `json:"detected_at" format:"date-time"`
}

type Analysis struct {
	Blockers  []Detection      `json:"blockers"`
	Decisions []Detection      `json:"decisions"`
	Actions   []Detection      `json:"actions"`
	Risks     []Detection      `json:"risks"`
	Metadata  AnalysisMetadata `json:"metadata"`
}

type AnalysisMetadata struct {
	AnalyzedAt       string `json:"analyzed_at" format:"date-time"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Confidence       int    `json:"confidence"`
	TotalDetections  int    `json:"total_detections"`
	Username         string `json:"username,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
}

// Badge is a compact per-kind summary of an Analysis for UI display.
type Badge struct {
	Type  string `json:"type" enum:"blocker,decision,action,risk"`
	Count int    `json:"count"`
	Label string `json:"label"`
	Color string `json:"color"`
}

type Task struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Status    string  `json:"status" enum:"pending,in_progress,submitted,completed"`
	Progress  int     `json:"progress" minimum:"0" maximum:"100"`
	Assignee  string  `json:"assignee,omitempty"`
	Deadline  *string `json:"deadline,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// Contribution is a per-member aggregate from the analytics feed, read-only
// input to the health scorer.
type Contribution struct {
	MemberID       string  `json:"member_id"`
	Name           string  `json:"name"`
	TasksCompleted int     `json:"tasks_completed"`
	ImpactScore    int     `json:"impact_score" minimum:"0" maximum:"100"`
	TotalHours     float64 `json:"total_hours"`
	UpdatedAt      string  `json:"updated_at,omitempty" format:"date-time"`
}

type HealthReport struct {
	Score            int              `json:"score" minimum:"0" maximum:"100"`
	Status           string           `json:"status" enum:"green,yellow,orange,red"`
	Message          string           `json:"message"`
	Color            string           `json:"color"`
	Trend            string           `json:"trend" enum:"improving,stable,declining"`
	Details          HealthDetails    `json:"details"`
	Components       HealthComponents `json:"components"`
	Recommendations  []Recommendation `json:"recommendations"`
	CalculatedAt     string           `json:"calculated_at" format:"date-time"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
}

type HealthDetails struct {
	TotalTasks         int `json:"total_tasks"`
	CompletedTasks     int `json:"completed_tasks"`
	InProgressTasks    int `json:"in_progress_tasks"`
	PendingTasks       int `json:"pending_tasks"`
	OverdueTasks       int `json:"overdue_tasks"`
	ActiveBlockers     int `json:"active_blockers"`
	TotalMessages      int `json:"total_messages"`
	TeamSize           int `json:"team_size"`
	CompletionRate     int `json:"completion_rate"`
	OnTimeRate         int `json:"on_time_rate"`
	TeamBalanceScore   int `json:"team_balance_score"`
	BlockerImpactScore int `json:"blocker_impact_score"`
}

type HealthComponent struct {
	Score  int    `json:"score"`
	Weight string `json:"weight"`
}

type HealthComponents struct {
	Completion    HealthComponent `json:"completion"`
	OnTime        HealthComponent `json:"on_time"`
	TeamBalance   HealthComponent `json:"team_balance"`
	BlockerImpact HealthComponent `json:"blocker_impact"`
}

type Recommendation struct {
	Priority string `json:"priority" enum:"low,medium,high,critical"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Impact   string `json:"impact"`
}

// NextStep is the AI adapter's suggestion payload. Source is "model" when it
// came from the upstream model and "fallback" when locally computed.
type NextStep struct {
	Next             string `json:"next"`
	Who              string `json:"who"`
	Time             string `json:"time"`
	Why              string `json:"why"`
	Confidence       int    `json:"confidence" minimum:"0" maximum:"100"`
	Source           string `json:"source" enum:"model,fallback"`
	Cached           bool   `json:"cached"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
