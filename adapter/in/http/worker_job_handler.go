// Package http exposes the job trigger and health endpoints.
package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailsync_worker/adapter/out/messaging"
	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/in"
	"mailsync_worker/core/port/out"
	"mailsync_worker/pkg/apperr"
)

// HeaderCorrelationID overrides the payload correlation id when present.
const HeaderCorrelationID = "X-Correlation-ID"

// JobQueue puts a trigger on the job stream.
type JobQueue interface {
	Enqueue(ctx context.Context, trigger domain.JobTrigger) (*messaging.JobMessage, error)
}

// JobResponse is the body returned by the synchronous trigger.
type JobResponse struct {
	Status        string `json:"status"`
	CorrelationID string `json:"correlationId"`
	Error         string `json:"error,omitempty"`
	Processed     int    `json:"processed,omitempty"`
	Failed        int    `json:"failed,omitempty"`
	Skipped       int    `json:"skipped,omitempty"`
	Threads       int    `json:"threads,omitempty"`
}

// EnqueueResponse is the body returned by the queued trigger.
type EnqueueResponse struct {
	Status        string `json:"status"`
	JobID         string `json:"jobId"`
	MessageID     string `json:"messageId"`
	CorrelationID string `json:"correlationId"`
}

type JobHandler struct {
	sync  in.SyncUseCase
	jobs  out.JobCreator
	queue JobQueue
	log   zerolog.Logger
}

// NewJobHandler builds the trigger handler. jobs and queue may be nil, in which
// case only the synchronous endpoint is served.
func NewJobHandler(syncUC in.SyncUseCase, jobs out.JobCreator, queue JobQueue, log zerolog.Logger) *JobHandler {
	return &JobHandler{
		sync:  syncUC,
		jobs:  jobs,
		queue: queue,
		log:   log.With().Str("component", "job_handler").Logger(),
	}
}

func (h *JobHandler) Register(router fiber.Router) {
	router.Post("/jobs", h.RunJob)
	if h.jobs != nil && h.queue != nil {
		router.Post("/jobs/enqueue", h.EnqueueJob)
	}
}

// RunJob runs the job inline. Job failures come back as status "failed" with HTTP 200.
func (h *JobHandler) RunJob(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}

	h.log.Info().
		Str("user_id", req.UserID).
		Str("job_type", string(req.Type)).
		Str("job_id", req.JobID()).
		Str("correlation_id", req.CorrelationID).
		Msg("job received")

	outcome := h.sync.RunJob(c.UserContext(), req)

	resp := JobResponse{
		Status:        "completed",
		CorrelationID: outcome.CorrelationID,
		Processed:     outcome.Processed,
		Failed:        outcome.Failed,
		Skipped:       outcome.Skipped,
		Threads:       outcome.Threads,
	}
	if resp.CorrelationID == "" {
		resp.CorrelationID = req.CorrelationID
	}
	if outcome.Status == domain.JobStatusFailed {
		resp.Status = "failed"
		resp.Error = outcome.Error
	}
	return c.JSON(resp)
}

// EnqueueJob creates a PENDING job row and puts the trigger on the stream.
func (h *JobHandler) EnqueueJob(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}

	// a caller-supplied jobId means the row already exists
	jobID := req.JobID()
	create := jobID == ""
	if create {
		jobID = uuid.New().String()
	}

	trigger := toTrigger(req, jobID)
	if create {
		job := &domain.Job{ID: jobID, UserID: req.UserID, Type: req.Type, CreatedAt: time.Now().UTC()}
		if err := h.jobs.Create(c.UserContext(), job, trigger.Metadata); err != nil {
			return apperr.DatabaseError(err)
		}
	}

	msg, err := h.queue.Enqueue(c.UserContext(), trigger)
	if err != nil {
		return apperr.ExternalError("redis", err)
	}

	h.log.Info().
		Str("user_id", req.UserID).
		Str("job_type", string(req.Type)).
		Str("job_id", jobID).
		Str("message_id", msg.ID).
		Str("correlation_id", req.CorrelationID).
		Msg("job enqueued")

	return c.Status(fiber.StatusAccepted).JSON(EnqueueResponse{
		Status:        "queued",
		JobID:         jobID,
		MessageID:     msg.ID,
		CorrelationID: req.CorrelationID,
	})
}

func (h *JobHandler) parseRequest(c *fiber.Ctx) (domain.JobRequest, error) {
	var trigger domain.JobTrigger
	if err := c.BodyParser(&trigger); err != nil {
		return domain.JobRequest{}, apperr.BadRequest("invalid request body")
	}
	if id := c.Get(HeaderCorrelationID); id != "" {
		trigger.CorrelationID = id
	}

	req, err := trigger.ToRequest()
	switch {
	case errors.Is(err, domain.ErrMissingUserID):
		return req, apperr.BadRequest(err.Error()).WithDetail("field", "userId")
	case err != nil:
		return req, apperr.UnknownJobType(trigger.JobType)
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}
	return req, nil
}

// toTrigger rebuilds the wire payload with the job id filled in.
func toTrigger(req domain.JobRequest, jobID string) domain.JobTrigger {
	md := map[string]any{"jobId": jobID}
	if req.Metadata.BackfillDays != nil {
		md["backfillDays"] = *req.Metadata.BackfillDays
	}
	if len(req.Metadata.ExcludeLabels) > 0 {
		md["excludeLabels"] = req.Metadata.ExcludeLabels
	}
	if req.Metadata.ThreadID != "" {
		md["threadId"] = req.Metadata.ThreadID
	}
	if req.Metadata.MessageID != "" {
		md["messageId"] = req.Metadata.MessageID
	}
	return domain.JobTrigger{
		UserID:        req.UserID,
		JobType:       string(req.Type),
		CorrelationID: req.CorrelationID,
		Metadata:      md,
	}
}
