package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pulseboard/internal/app"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/nextstep"
	"pulseboard/internal/repo"
	"pulseboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pb",
	Short: "Pulseboard CLI",
	Long: `Pulseboard watches team chat and the task board, extracts blockers,
decisions, actions and risks from messages, and scores project health.

- Workspace: the .pulseboard directory holding the sqlite database.
- Messages: posting a message classifies it on the spot.
- Tasks: a small board (pending -> in_progress -> submitted -> completed).
- Contributions: per-member analytics used by the health scorer.
- Health: weighted score over completion, deadlines, balance and blockers.
- Event log: diary of changes, view with 'pb log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PULSEBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(contributionCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(nextStepCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func classifyCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify a message without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				analysis := e.Classify(args[0], username, time.Now().UTC().Format(time.RFC3339))
				return printJSONOrTable(analysis)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "message author")
	return cmd
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{Use: "message", Short: "Chat messages"}
	msg.AddCommand(messagePostCmd())
	msg.AddCommand(messageListCmd())
	return msg
}

func messagePostCmd() *cobra.Command {
	var username, userID string
	cmd := &cobra.Command{
		Use:   "post <content>",
		Short: "Post a message (classified on write)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				msg, err := e.PostMessage(ctx, engine.MessageCreate{
					Username: username,
					UserID:   userID,
					Content:  args[0],
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(msg)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "message author (defaults to actor id)")
	cmd.Flags().StringVar(&userID, "user-id", "", "author user id")
	return cmd
}

func messageListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages (newest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMessages(ctx, repo.MessageFilters{Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Content", "Detections", "Created"})
				for _, m := range items {
					detections := 0
					if m.Analysis != nil {
						detections = m.Analysis.Metadata.TotalDetections
					}
					tw.AppendRow(table.Row{m.ID, m.Username, m.Content, detections, m.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 20, "number of messages")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Task board"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, status, assignee, deadline string
	var progress int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				task, err := e.CreateTask(ctx, engine.TaskCreate{
					Title:    title,
					Status:   status,
					Progress: progress,
					Assignee: assignee,
					Deadline: deadline,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&status, "status", "", "status (pending, in_progress, submitted, completed)")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress 0-100")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, assignee string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if status != "" {
					normalized := domain.NormalizeStatus(status)
					if normalized == "" {
						return fmt.Errorf("invalid status %q", status)
					}
					status = normalized
				}
				tasks, err := e.ListTasks(ctx, repo.TaskFilters{Status: status, Assignee: assignee})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Progress", "Assignee", "Deadline"})
				for _, t := range tasks {
					deadline := ""
					if t.Deadline != nil {
						deadline = *t.Deadline
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, fmt.Sprintf("%d%%", t.Progress), t.Assignee, deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				task, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, status, assignee, deadline string
	var progress int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				update := engine.TaskUpdate{ID: args[0], ActorID: viper.GetString("actor-id")}
				if cmd.Flags().Changed("title") {
					update.Title = &title
				}
				if cmd.Flags().Changed("status") {
					update.Status = &status
				}
				if cmd.Flags().Changed("progress") {
					update.Progress = &progress
				}
				if cmd.Flags().Changed("assignee") {
					update.Assignee = &assignee
				}
				if cmd.Flags().Changed("deadline") {
					update.Deadline = &deadline
				}
				task, err := e.UpdateTask(ctx, update)
				if err != nil {
					return err
				}
				return printJSONOrTable(task)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress 0-100")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339, empty to clear)")
	return cmd
}

func contributionCmd() *cobra.Command {
	contrib := &cobra.Command{Use: "contribution", Short: "Member contributions"}
	contrib.AddCommand(contributionSetCmd())
	contrib.AddCommand(contributionListCmd())
	return contrib
}

func contributionSetCmd() *cobra.Command {
	var name string
	var tasksCompleted, impactScore int
	var totalHours float64
	cmd := &cobra.Command{
		Use:   "set <member-id>",
		Short: "Upsert a member contribution record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SetContribution(ctx, domain.Contribution{
					MemberID:       args[0],
					Name:           name,
					TasksCompleted: tasksCompleted,
					ImpactScore:    impactScore,
					TotalHours:     totalHours,
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&tasksCompleted, "tasks-completed", 0, "completed task count")
	cmd.Flags().IntVar(&impactScore, "impact", 0, "impact score 0-100")
	cmd.Flags().Float64Var(&totalHours, "hours", 0, "total hours")
	return cmd
}

func contributionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListContributions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Member", "Name", "Completed", "Impact", "Hours"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.MemberID, c.Name, c.TasksCompleted, c.ImpactScore, c.TotalHours})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Compute the project health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Health(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Score: %d (%s) — %s\n", report.Score, report.Status, report.Message)
				fmt.Printf("Trend: %s\n\n", report.Trend)

				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Component", "Score", "Weight"})
				tw.AppendRow(table.Row{"completion", report.Components.Completion.Score, report.Components.Completion.Weight})
				tw.AppendRow(table.Row{"on_time", report.Components.OnTime.Score, report.Components.OnTime.Weight})
				tw.AppendRow(table.Row{"team_balance", report.Components.TeamBalance.Score, report.Components.TeamBalance.Weight})
				tw.AppendRow(table.Row{"blocker_impact", report.Components.BlockerImpact.Score, report.Components.BlockerImpact.Weight})
				tw.Render()

				if len(report.Recommendations) > 0 {
					fmt.Println()
					rw := table.NewWriter()
					rw.SetOutputMirror(os.Stdout)
					rw.AppendHeader(table.Row{"Priority", "Category", "Action"})
					for _, rec := range report.Recommendations {
						rw.AppendRow(table.Row{rec.Priority, rec.Category, rec.Action})
					}
					rw.Render()
				}
				return nil
			})
		},
	}
	return cmd
}

func nextStepCmd() *cobra.Command {
	var progress int
	cmd := &cobra.Command{
		Use:   "next-step <task-title>",
		Short: "Suggest the next step for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				svc := nextstep.NewService(buildModelClient(e))
				pc := nextstep.Context{Progress: progress}
				messages, err := e.Repo.AllMessages(ctx)
				if err != nil {
					return err
				}
				for _, m := range messages {
					if m.Analysis == nil {
						continue
					}
					for _, b := range m.Analysis.Blockers {
						pc.Blockers = append(pc.Blockers, b.Text)
					}
				}
				return printJSONOrTable(svc.Suggest(ctx, args[0], pc))
			})
		},
	}
	cmd.Flags().IntVar(&progress, "progress", 0, "task progress 0-100")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a demo board into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Seed(ctx, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("Seeded demo tasks, messages and contributions.")
				return nil
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plaintext, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				fmt.Printf("API key (store it now, it is not shown again): %s\n", plaintext)
				return printJSONOrTable(key)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			e, conn, err := app.Open(workspace, viper.GetString("project"))
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{JWTSecret: e.Config.JWTSecret()}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("%s is required for bearer auth", jwtSecretEnvName(e))
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     authCfg,
				NextStep: nextstep.NewService(buildModelClient(e)),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Pulseboard API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// buildModelClient returns a live model client when the AI adapter is enabled
// and its key is present, nil otherwise (fallback rules still apply).
func buildModelClient(e engine.Engine) nextstep.Client {
	cfg := e.Config
	if cfg == nil || !cfg.AI.Enabled {
		return nil
	}
	apiKey := os.Getenv(cfg.AI.APIKeyEnv)
	if apiKey == "" {
		return nil
	}
	return nextstep.NewOpenAIClient(nextstep.OpenAIOptions{
		APIKey:  apiKey,
		Model:   cfg.AI.Model,
		BaseURL: cfg.AI.BaseURL,
	})
}

func jwtSecretEnvName(e engine.Engine) string {
	if e.Config != nil && e.Config.Auth.JWTSecretEnv != "" {
		return e.Config.Auth.JWTSecretEnv
	}
	return "PULSEBOARD_JWT_SECRET"
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, conn, err := app.Open(viper.GetString("workspace"), viper.GetString("project"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	_, conn, err := app.Open(viper.GetString("workspace"), viper.GetString("project"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
