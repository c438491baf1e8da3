package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"
)

// CreateProjectRequest defines the structure for creating a new project.
type CreateProjectRequest struct {
	Name         string          `json:"name" binding:"required,min=1,max=255"`
	Description  string          `json:"description" binding:"max=2000"`
	ProjectType  string          `json:"project_type" binding:"omitempty,oneof=image video design"`
	Data         json.RawMessage `json:"data"`
	ThumbnailURL *string         `json:"thumbnail_url" binding:"omitempty,url"`
	IsPublic     bool            `json:"is_public"`
}

// UpdateProjectRequest uses pointers to allow partial updates.
type UpdateProjectRequest struct {
	Name         *string         `json:"name" binding:"omitempty,min=1,max=255"`
	Description  *string         `json:"description" binding:"omitempty,max=2000"`
	Data         json.RawMessage `json:"data"`
	ThumbnailURL *string         `json:"thumbnail_url" binding:"omitempty,url"`
	IsPublic     *bool           `json:"is_public"`
}

type ProjectResponse struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	ProjectType  string          `json:"project_type"`
	Data         json.RawMessage `json:"data"`
	ThumbnailURL *string         `json:"thumbnail_url"`
	IsPublic     bool            `json:"is_public"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func newProjectResponse(p *db.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		Description: p.Description,
		ProjectType: p.ProjectType,
		IsPublic:    p.IsPublic,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Data.Valid && len(p.Data.JSONText) > 0 {
		resp.Data = json.RawMessage(p.Data.JSONText)
	}
	if p.ThumbnailURL.Valid {
		resp.ThumbnailURL = &p.ThumbnailURL.String
	}
	return resp
}

func jsonData(raw json.RawMessage) types.NullJSONText {
	if len(raw) == 0 || string(raw) == "null" {
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: types.JSONText(raw), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// CreateProject handles the creation of a new project.
func (h *Handlers) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("CreateProject: invalid request body: %v", err)
		utils.ResponseWithValidationError(c, err)
		return
	}
	user, ok := currentUser(c)
	if !ok {
		return
	}

	projectType := req.ProjectType
	if projectType == "" {
		projectType = db.ProjectTypeImage
	}
	project := &db.Project{
		UserID:       user.ID,
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		ProjectType:  projectType,
		Data:         jsonData(req.Data),
		ThumbnailURL: nullString(req.ThumbnailURL),
		IsPublic:     req.IsPublic,
	}

	created, err := h.Projects.CreateProject(c.Request.Context(), project)
	if err != nil {
		log.Errorf("CreateProject: failed to create project for user %s: %v", user.ID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create project", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusCreated, "Project created successfully", newProjectResponse(created))
}

// ListProjects returns the caller's own projects.
func (h *Handlers) ListProjects(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	projects, err := h.Projects.FindProjectsByUserID(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("ListProjects: failed to fetch projects for user %s: %v", user.ID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve projects", nil)
		return
	}

	out := make([]ProjectResponse, len(projects))
	for i := range projects {
		out[i] = newProjectResponse(&projects[i])
	}
	log.Debugf("ListProjects: found %d projects for user %s", len(projects), user.ID.String())
	utils.ResponseWithSuccess(c, http.StatusOK, "Projects retrieved successfully", out)
}

// GetProject returns a project owned by the caller or marked public.
func (h *Handlers) GetProject(c *gin.Context) {
	user, project, ok := h.loadProject(c)
	if !ok {
		return
	}
	if !project.ReadableBy(user.ID) {
		utils.ResponseWithError(c, http.StatusForbidden, "You do not have permission to access this project", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Project retrieved successfully", newProjectResponse(project))
}

// UpdateProject applies a partial update to a project owned by the caller.
func (h *Handlers) UpdateProject(c *gin.Context) {
	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("UpdateProject: invalid request body: %v", err)
		utils.ResponseWithValidationError(c, err)
		return
	}

	user, project, ok := h.loadProject(c)
	if !ok {
		return
	}
	if project.UserID != user.ID {
		utils.ResponseWithError(c, http.StatusForbidden, "You do not have permission to modify this project", nil)
		return
	}

	if req.Name != nil {
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		project.Description = strings.TrimSpace(*req.Description)
	}
	if len(req.Data) > 0 {
		project.Data = jsonData(req.Data)
	}
	if req.ThumbnailURL != nil {
		project.ThumbnailURL = nullString(req.ThumbnailURL)
	}
	if req.IsPublic != nil {
		project.IsPublic = *req.IsPublic
	}

	if err := h.Projects.UpdateProject(c.Request.Context(), project); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.ResponseWithError(c, http.StatusNotFound, "Project not found", nil)
			return
		}
		log.Errorf("UpdateProject: failed to update project %s: %v", project.ID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to update project", nil)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Project updated successfully", newProjectResponse(project))
}

// DeleteProject removes a project owned by the caller.
func (h *Handlers) DeleteProject(c *gin.Context) {
	user, project, ok := h.loadProject(c)
	if !ok {
		return
	}
	if project.UserID != user.ID {
		utils.ResponseWithError(c, http.StatusForbidden, "You do not have permission to delete this project", nil)
		return
	}

	if err := h.Projects.DeleteProject(c.Request.Context(), project.ID, user.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.ResponseWithError(c, http.StatusNotFound, "Project not found", nil)
			return
		}
		log.Errorf("DeleteProject: failed to delete project %s: %v", project.ID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to delete project", nil)
		return
	}

	log.Infof("DeleteProject: project %s deleted by user %s", project.ID.String(), user.ID.String())
	utils.ResponseWithSuccess(c, http.StatusOK, "Project deleted successfully", nil)
}

// loadProject parses the id parameter and fetches the project. Existence is
// reported before any permission check.
func (h *Handlers) loadProject(c *gin.Context) (*db.User, *db.Project, bool) {
	idParam := c.Param("id")
	projectID, err := uuid.Parse(idParam)
	if err != nil {
		log.Debugf("loadProject: invalid project ID format '%s': %v", idParam, err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid project ID format", nil)
		return nil, nil, false
	}
	user, ok := currentUser(c)
	if !ok {
		return nil, nil, false
	}

	project, err := h.Projects.FindProjectByID(c.Request.Context(), projectID)
	if err != nil {
		log.Errorf("loadProject: failed to fetch project %s: %v", projectID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve project", nil)
		return nil, nil, false
	}
	if project == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Project not found", nil)
		return nil, nil, false
	}
	return user, project, true
}
