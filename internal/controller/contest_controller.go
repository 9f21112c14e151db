// Package controller exposes the judging core over HTTP and websocket.
package controller

import (
	"github.com/gin-gonic/gin"

	"arena/internal/contest"
	"arena/internal/service"
	"arena/pkg/errors"
	"arena/pkg/utils/response"
)

// ContestController handles contest lifecycle and submission endpoints.
type ContestController struct {
	svc *service.ContestService
}

// NewContestController creates a controller over the service facade.
func NewContestController(svc *service.ContestService) *ContestController {
	return &ContestController{svc: svc}
}

type practiceRunRequest struct {
	TaskID     int64  `json:"task_id" binding:"required"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// PracticeRun judges a submission outside any contest.
func (ctl *ContestController) PracticeRun(c *gin.Context) {
	var req practiceRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, errors.InvalidParams, err.Error())
		return
	}
	result, err := ctl.svc.PracticeRun(c.Request.Context(), req.TaskID, req.Language, req.SourceCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

type createContestRequest struct {
	TaskIDs         []int64 `json:"task_ids" binding:"required,min=1,max=10"`
	DurationMinutes int     `json:"duration_minutes" binding:"required,min=1"`
	Scoring         string  `json:"scoring" binding:"required"`
	Access          string  `json:"access"`
}

// Create registers a new contest.
func (ctl *ContestController) Create(c *gin.Context) {
	var req createContestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, errors.InvalidParams, err.Error())
		return
	}
	created, err := ctl.svc.CreateContest(c.Request.Context(), req.TaskIDs, contest.Config{
		DurationMinutes: req.DurationMinutes,
		Scoring:         contest.ScoringMode(req.Scoring),
		Access:          contest.AccessMode(req.Access),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"contest_id": created.ID,
		"status":     created.Status,
		"task_ids":   created.TaskIDs,
		"config":     created.Config,
	})
}

// Start transitions a contest to running.
func (ctl *ContestController) Start(c *gin.Context) {
	if err := ctl.svc.StartContest(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Finish ends a contest on the host's behalf.
func (ctl *ContestController) Finish(c *gin.Context) {
	if err := ctl.svc.FinishContest(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Disqualify bars a participant and zeroes their scores.
func (ctl *ContestController) Disqualify(c *gin.Context) {
	err := ctl.svc.Disqualify(c.Request.Context(), c.Param("id"), c.Param("participant_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type joinRequest struct {
	Nickname      string `json:"nickname" binding:"required"`
	Organization  string `json:"organization"`
	Password      string `json:"password"`
	ParticipantID string `json:"participant_id"`
}

// Join admits a participant to a contest.
func (ctl *ContestController) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, errors.InvalidParams, err.Error())
		return
	}
	result, err := ctl.svc.Join(c.Request.Context(), c.Param("id"), contest.JoinRequest{
		Nickname:      req.Nickname,
		Organization:  req.Organization,
		Password:      req.Password,
		ParticipantID: req.ParticipantID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"participant_id": result.ParticipantID,
		"status":         result.Status,
		"restored":       result.Restored,
	})
}

type submitRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	TaskID        int64  `json:"task_id" binding:"required"`
	Language      string `json:"language" binding:"required"`
	SourceCode    string `json:"source_code" binding:"required"`
}

// Submit judges a contest submission.
func (ctl *ContestController) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, errors.InvalidParams, err.Error())
		return
	}
	result, err := ctl.svc.Submit(c.Request.Context(), c.Param("id"),
		req.ParticipantID, req.TaskID, req.Language, req.SourceCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

type finishEarlyRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

// FinishEarly records a participant's terminal self-exit.
func (ctl *ContestController) FinishEarly(c *gin.Context) {
	var req finishEarlyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, errors.InvalidParams, err.Error())
		return
	}
	if err := ctl.svc.FinishEarly(c.Request.Context(), c.Param("id"), req.ParticipantID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// State returns the live snapshot, or archived standings after eviction.
func (ctl *ContestController) State(c *gin.Context) {
	state, err := ctl.svc.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, state)
}

type whitelistAddRequest struct {
	Nickname     string `json:"nickname" binding:"required"`
	Organization string `json:"organization"`
	Password     string `json:"password" binding:"required"`
}

// WhitelistAdd provisions one closed-contest credential.
func (ctl *ContestController) WhitelistAdd(c *gin.Context) {
	var req whitelistAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, errors.InvalidParams, err.Error())
		return
	}
	err := ctl.svc.AddWhitelistEntry(c.Request.Context(), c.Param("id"),
		req.Nickname, req.Organization, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// WhitelistRemove deletes one credential.
func (ctl *ContestController) WhitelistRemove(c *gin.Context) {
	err := ctl.svc.RemoveWhitelistEntry(c.Request.Context(), c.Param("id"), c.Param("nickname"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// WhitelistList returns the provisioned entries without passwords.
func (ctl *ContestController) WhitelistList(c *gin.Context) {
	entries, err := ctl.svc.ListWhitelist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}
