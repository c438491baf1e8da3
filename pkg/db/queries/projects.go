package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

const projectColumns = `id, user_id, name, description, project_type, data, thumbnail_url, is_public, created_at, updated_at`

type ProjectQueries struct {
	db *sqlx.DB
}

func NewProjectQueries(dbx *sqlx.DB) *ProjectQueries {
	return &ProjectQueries{db: dbx}
}

// CreateProject inserts the project and fills in its generated fields.
func (q *ProjectQueries) CreateProject(ctx context.Context, project *db.Project) (*db.Project, error) {
	query := `
		INSERT INTO projects (user_id, name, description, project_type, data, thumbnail_url, is_public)
		VALUES (:user_id, :name, :description, :project_type, :data, :thumbnail_url, :is_public)
		RETURNING id, created_at, updated_at`

	rows, err := q.db.NamedQueryContext(ctx, query, project)
	if err != nil {
		log.Errorf("Error creating project: %v", err)
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		log.Error("No rows returned after project creation.")
		return nil, fmt.Errorf("no rows returned after project creation")
	}
	if err := rows.Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt); err != nil {
		log.Errorf("Error scanning project data after creation: %v", err)
		return nil, fmt.Errorf("error scanning project after creation: %w", err)
	}

	log.Infof("Project '%s' created for user ID: %s (ID: %s)", project.Name, project.UserID.String(), project.ID.String())
	return project, nil
}

// FindProjectByID returns nil, nil when the project does not exist.
func (q *ProjectQueries) FindProjectByID(ctx context.Context, projectID uuid.UUID) (*db.Project, error) {
	project := &db.Project{}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	err := q.db.GetContext(ctx, project, query, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Project with ID '%s' not found.", projectID.String())
			return nil, nil
		}
		log.Errorf("Error finding project by ID '%s': %v", projectID.String(), err)
		return nil, fmt.Errorf("error finding project by ID: %w", err)
	}
	return project, nil
}

// FindProjectsByUserID lists a user's projects, most recently updated first.
func (q *ProjectQueries) FindProjectsByUserID(ctx context.Context, userID uuid.UUID) ([]db.Project, error) {
	projects := []db.Project{}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = $1 ORDER BY updated_at DESC, id DESC`
	if err := q.db.SelectContext(ctx, &projects, query, userID); err != nil {
		log.Errorf("Error finding projects for user ID '%s': %v", userID.String(), err)
		return nil, fmt.Errorf("error finding projects by user ID: %w", err)
	}
	return projects, nil
}

// UpdateProject writes the mutable fields. Ownership is part of the WHERE clause;
// sql.ErrNoRows means the project is gone or not owned by project.UserID.
func (q *ProjectQueries) UpdateProject(ctx context.Context, project *db.Project) error {
	query := `
		UPDATE projects
		SET name = $3, description = $4, data = $5, thumbnail_url = $6, is_public = $7, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at`

	err := q.db.QueryRowxContext(ctx, query, project.ID, project.UserID,
		project.Name, project.Description, project.Data, project.ThumbnailURL, project.IsPublic).Scan(&project.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warnf("No project found with ID '%s' for user ID '%s' for update.", project.ID.String(), project.UserID.String())
			return sql.ErrNoRows
		}
		log.Errorf("Error updating project with ID '%s': %v", project.ID.String(), err)
		return fmt.Errorf("failed to update project: %w", err)
	}

	log.Infof("Project with ID '%s' updated.", project.ID.String())
	return nil
}

// DeleteProject removes a project owned by userID. sql.ErrNoRows means nothing was deleted.
func (q *ProjectQueries) DeleteProject(ctx context.Context, projectID, userID uuid.UUID) error {
	query := `DELETE FROM projects WHERE id = $1 AND user_id = $2`
	result, err := q.db.ExecContext(ctx, query, projectID, userID)
	if err != nil {
		log.Errorf("Error deleting project with ID '%s' for user ID '%s': %v", projectID.String(), userID.String(), err)
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		log.Warnf("No project found with ID '%s' for user ID '%s' for deletion.", projectID.String(), userID.String())
		return sql.ErrNoRows
	}

	log.Infof("Project with ID '%s' deleted.", projectID.String())
	return nil
}
