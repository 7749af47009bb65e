package app

import (
	"database/sql"
	"fmt"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
)

// Open prepares the workspace: ensures the state directory, opens the sqlite
// database, applies migrations, and resolves the config. projectOverride
// takes precedence over pulseboard.yml; when neither names a project, the
// default project id is used.
func Open(workspace, projectOverride string) (engine.Engine, *sql.DB, error) {
	projectID := projectOverride
	if projectID == "" {
		projectID = "pulseboard"
	}
	cfg, err := config.LoadOptional(workspace, projectID)
	if err != nil {
		return engine.Engine{}, nil, fmt.Errorf("load config: %w", err)
	}
	if projectOverride != "" {
		cfg.Project.ID = projectOverride
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	return engine.New(conn, cfg), conn, nil
}
