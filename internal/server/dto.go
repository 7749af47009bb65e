package server

import (
	"pulseboard/internal/domain"
)

type ClassifyRequest struct {
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type BadgesRequest struct {
	Analysis domain.Analysis `json:"analysis"`
}

type CreateMessageRequest struct {
	Username string  `json:"username"`
	UserID   *string `json:"user_id,omitempty"`
	Content  string  `json:"content"`
}

type MessageListResponse struct {
	Items      []domain.Message `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type CreateTaskRequest struct {
	ID       *string `json:"id,omitempty"`
	Title    string  `json:"title"`
	Status   *string `json:"status,omitempty"`
	Progress *int    `json:"progress,omitempty"`
	Assignee *string `json:"assignee,omitempty"`
	Deadline *string `json:"deadline,omitempty"`
}

type UpdateTaskRequest struct {
	Title    *string `json:"title,omitempty"`
	Status   *string `json:"status,omitempty"`
	Progress *int    `json:"progress,omitempty"`
	Assignee *string `json:"assignee,omitempty"`
	Deadline *string `json:"deadline,omitempty"`
}

type ContributionRequest struct {
	Name           string  `json:"name,omitempty"`
	TasksCompleted int     `json:"tasks_completed"`
	ImpactScore    int     `json:"impact_score"`
	TotalHours     float64 `json:"total_hours"`
}

type NextStepRequest struct {
	TaskTitle      string    `json:"task_title"`
	Progress       int       `json:"progress,omitempty"`
	TeamMembers    []string  `json:"team_members,omitempty"`
	Blockers       *[]string `json:"blockers,omitempty"`
	CompletedTasks int       `json:"completed_tasks,omitempty"`
	TotalTasks     int       `json:"total_tasks,omitempty"`
	Deadline       string    `json:"deadline,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Source  string   `json:"source"`
	Roles   []string `json:"roles,omitempty"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
