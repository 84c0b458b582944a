package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"blogwriter/api/internal/blogwriter"
	"blogwriter/api/internal/metatags"
	"blogwriter/api/internal/metrics"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"blogwriter/api/internal/workflow"
	"go.uber.org/zap"
)

const defaultWordCount = 1500

var errGenerationUnavailable = domainError(http.StatusServiceUnavailable, "GENERATION_UNAVAILABLE", "Content backend is not configured", nil)

type GenerationInput struct {
	blogwriter.GenerateRequest
	Async  bool   `json:"async"`
	PostID string `json:"post_id"`
}

type GenerationResult struct {
	QueueItem store.QueueItem      `json:"queue_item"`
	Post      *store.BlogPost      `json:"post,omitempty"`
	Job       *blogwriter.AsyncJob `json:"job,omitempty"`
}

// StartGeneration queues a generation request and either hands it to the
// backend as an async job or runs it inline. The returned status is 202 for
// async jobs and 200 for completed inline runs.
func (s *Service) StartGeneration(ctx context.Context, session Session, orgID string, input GenerationInput) (GenerationResult, int, error) {
	if s.generator == nil {
		return GenerationResult{}, 0, errGenerationUnavailable
	}
	input.Topic = strings.TrimSpace(input.Topic)
	if input.Topic == "" {
		return GenerationResult{}, 0, validationError("topic is required")
	}
	if input.WordCount <= 0 {
		input.WordCount = defaultWordCount
	}
	input.Keywords = workflow.MergeKeywords(nil, input.Keywords)
	if input.PostID != "" {
		if _, err := s.store.GetPost(ctx, orgID, input.PostID); err != nil {
			return GenerationResult{}, 0, err
		}
	}

	request, err := json.Marshal(input)
	if err != nil {
		return GenerationResult{}, 0, err
	}
	item := store.QueueItem{
		ID:             util.NewID(),
		OrganizationID: orgID,
		CreatedBy:      session.UserID,
		PostID:         input.PostID,
		Topic:          input.Topic,
		Keywords:       input.Keywords,
		Status:         store.QueueStatusQueued,
		Request:        request,
	}
	if err := s.store.InsertQueueItem(ctx, item); err != nil {
		return GenerationResult{}, 0, err
	}
	metrics.GenerationJob(input.Async)

	if input.Async {
		job, err := s.generator.GenerateAsync(ctx, input.GenerateRequest)
		if err != nil {
			s.failQueueItem(ctx, orgID, item.ID, err)
			return GenerationResult{}, 0, upstreamFailure(err)
		}
		if err := s.store.MarkQueueGenerating(ctx, orgID, item.ID, job.JobID); err != nil {
			return GenerationResult{}, 0, err
		}
		stored, err := s.store.GetQueueItem(ctx, orgID, item.ID)
		if err != nil {
			return GenerationResult{}, 0, err
		}
		return GenerationResult{QueueItem: stored, Job: &job}, http.StatusAccepted, nil
	}

	if err := s.store.SetQueueStatus(ctx, orgID, item.ID, store.QueueStatusGenerating); err != nil {
		return GenerationResult{}, 0, err
	}
	raw, err := s.generator.Generate(ctx, input.GenerateRequest)
	if err != nil {
		s.failQueueItem(ctx, orgID, item.ID, err)
		return GenerationResult{}, 0, upstreamFailure(err)
	}
	post, err := s.completeGeneration(ctx, item, raw, session.UserName)
	if err != nil {
		s.failQueueItem(ctx, orgID, item.ID, err)
		return GenerationResult{}, 0, upstreamFailure(err)
	}
	stored, err := s.store.GetQueueItem(ctx, orgID, item.ID)
	if err != nil {
		return GenerationResult{}, 0, err
	}
	return GenerationResult{QueueItem: stored, Post: &post}, http.StatusOK, nil
}

// upstreamFailure keeps typed backend errors and reports everything else as
// a generic 502.
func upstreamFailure(err error) error {
	var writerErr *blogwriter.UpstreamError
	var domainErr *DomainError
	if errors.As(err, &writerErr) || errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domainError(http.StatusBadGateway, "GENERATION_FAILED", "Content generation failed", map[string]any{"message": err.Error()})
}

func (s *Service) failQueueItem(ctx context.Context, orgID, itemID string, cause error) {
	if err := s.store.FailQueueItem(context.WithoutCancel(ctx), orgID, itemID, cause.Error()); err != nil {
		s.logger.Warn("mark queue item failed", zap.String("queue_id", itemID), zap.Error(err))
	}
}

// completeGeneration writes a generation result into the item's draft post,
// creating one when the item has none, and marks the item generated.
func (s *Service) completeGeneration(ctx context.Context, item store.QueueItem, raw json.RawMessage, author string) (store.BlogPost, error) {
	blog, err := blogwriter.ParseResult(raw)
	if err != nil {
		return store.BlogPost{}, err
	}

	var post store.BlogPost
	creating := item.PostID == ""
	if creating {
		now := s.now().UTC()
		post = store.BlogPost{
			ID:             util.NewID(),
			OrganizationID: item.OrganizationID,
			CreatedBy:      item.CreatedBy,
			Status:         store.PostStatusDraft,
			Metadata:       json.RawMessage(`{}`),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	} else {
		post, err = s.store.GetPost(ctx, item.OrganizationID, item.PostID)
		if err != nil {
			return store.BlogPost{}, err
		}
	}

	post.Title = strings.TrimSpace(blog.Title)
	if post.Title == "" {
		post.Title = item.Topic
	}
	post.Content = blog.Content
	post.Excerpt = strings.TrimSpace(blog.Excerpt)
	if post.Excerpt == "" {
		post.Excerpt = util.TruncateWords(util.StripMarkup(blog.Content), 200, "...")
	}
	post.Keywords = workflow.MergeKeywords(item.Keywords, blog.Keywords)
	post.WordCount = util.WordCount(post.Content)
	if blog.SEOScore > 0 {
		post.SEOScore = int(blog.SEOScore)
	}

	meta, err := workflow.Metadata(post.Metadata)
	if err != nil {
		return store.BlogPost{}, err
	}
	if blog.MetaTitle != "" || blog.MetaDescription != "" {
		tags := metatags.Tags{
			MetaTitle:       blog.MetaTitle,
			MetaDescription: blog.MetaDescription,
			OGTitle:         blog.MetaTitle,
			OGDescription:   blog.MetaDescription,
			Keywords:        post.Keywords,
			Source:          "generation",
		}
		if err := workflow.SetSEO(meta, tags); err != nil {
			return store.BlogPost{}, err
		}
	}
	meta["generation"] = json.RawMessage(fmt.Sprintf(`{"queue_id":%q}`, item.ID))
	if post.Metadata, err = json.Marshal(meta); err != nil {
		return store.BlogPost{}, err
	}

	if creating {
		post.Slug = util.Slugify(post.Title)
		if post.Slug == "" {
			post.Slug = "post"
		}
		post.Slug = post.Slug + "-" + item.ID[:8]
		if err := s.store.InsertPost(ctx, post); err != nil {
			return store.BlogPost{}, err
		}
	} else if err := s.store.UpdatePost(ctx, post); err != nil {
		return store.BlogPost{}, err
	}

	if err := s.store.CompleteQueueItem(ctx, item.OrganizationID, item.ID, post.ID, raw); err != nil {
		return store.BlogPost{}, err
	}
	s.afterSave(post, author, "Generate content")
	return post, nil
}

type PollResult struct {
	Job        blogwriter.JobStatus `json:"job"`
	QueueItem  store.QueueItem      `json:"queue_item"`
	NextPollMS int                  `json:"next_poll_ms"`
}

// PollJob refreshes a queued async job from the backend and folds the result
// into its queue row.
func (s *Service) PollJob(ctx context.Context, session Session, orgID, jobID string) (PollResult, error) {
	if s.generator == nil {
		return PollResult{}, errGenerationUnavailable
	}
	item, err := s.store.GetQueueItemByJob(ctx, orgID, jobID)
	if err != nil {
		return PollResult{}, err
	}
	job, err := s.jobStatus(ctx, jobID)
	if err != nil {
		return PollResult{}, upstreamFailure(err)
	}

	if !store.QueueTerminal[item.Status] {
		switch job.Status {
		case blogwriter.JobCompleted:
			if _, err := s.completeGeneration(ctx, item, job.Result, session.UserName); err != nil {
				s.failQueueItem(ctx, orgID, item.ID, err)
			}
		case blogwriter.JobFailed:
			message := job.ErrorMessage
			if message == "" {
				message = "generation job failed"
			}
			s.failQueueItem(ctx, orgID, item.ID, errors.New(message))
		default:
			progress := int(job.ProgressPercentage)
			if progress != item.Progress {
				if err := s.store.UpdateQueueProgress(ctx, orgID, item.ID, progress); err != nil {
					return PollResult{}, err
				}
			}
		}
		if item, err = s.store.GetQueueItem(ctx, orgID, item.ID); err != nil {
			return PollResult{}, err
		}
	}

	return PollResult{
		Job:        job,
		QueueItem:  item,
		NextPollMS: nextPollInterval(item, job.Terminal(), s.now()),
	}, nil
}

func (s *Service) jobStatus(ctx context.Context, jobID string) (blogwriter.JobStatus, error) {
	if s.jobs != nil {
		if raw, ok, err := s.jobs.Get(ctx, jobID); err != nil {
			s.logger.Warn("read job cache", zap.String("job_id", jobID), zap.Error(err))
		} else if ok {
			var cached blogwriter.JobStatus
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	job, err := s.generator.JobStatus(ctx, jobID)
	if err != nil {
		return blogwriter.JobStatus{}, err
	}
	if s.jobs != nil {
		if raw, err := json.Marshal(job); err == nil {
			if err := s.jobs.Set(ctx, jobID, raw); err != nil {
				s.logger.Warn("write job cache", zap.String("job_id", jobID), zap.Error(err))
			}
		}
	}
	return job, nil
}

// nextPollInterval backs off as a job ages: 2s for the first 30s, 5s until
// two minutes, then 10s.
func nextPollInterval(item store.QueueItem, terminal bool, now time.Time) int {
	if terminal || store.QueueTerminal[item.Status] {
		return 0
	}
	started := item.CreatedAt
	if item.StartedAt != nil {
		started = *item.StartedAt
	}
	elapsed := now.Sub(started)
	switch {
	case elapsed < 30*time.Second:
		return 2000
	case elapsed < 2*time.Minute:
		return 5000
	default:
		return 10000
	}
}

func validQueueStatus(status string) bool {
	for _, candidate := range store.QueueStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func (s *Service) ListQueue(ctx context.Context, orgID, status string, limit int) ([]store.QueueItem, error) {
	if status != "" && !validQueueStatus(status) {
		return nil, validationError("unknown queue status")
	}
	return s.store.ListQueue(ctx, orgID, status, limit)
}

func (s *Service) GetQueueItem(ctx context.Context, orgID, itemID string) (store.QueueItem, error) {
	return s.store.GetQueueItem(ctx, orgID, itemID)
}

// UpdateQueueStatus sets any known status without transition checks.
func (s *Service) UpdateQueueStatus(ctx context.Context, orgID, itemID, status string) (store.QueueItem, error) {
	status = strings.TrimSpace(status)
	if !validQueueStatus(status) {
		return store.QueueItem{}, validationError("unknown queue status")
	}
	if err := s.store.SetQueueStatus(ctx, orgID, itemID, status); err != nil {
		return store.QueueItem{}, err
	}
	return s.store.GetQueueItem(ctx, orgID, itemID)
}

func (s *Service) CancelQueueItem(ctx context.Context, orgID, itemID string) (store.QueueItem, error) {
	item, err := s.store.GetQueueItem(ctx, orgID, itemID)
	if err != nil {
		return store.QueueItem{}, err
	}
	if store.QueueTerminal[item.Status] {
		return store.QueueItem{}, domainError(http.StatusConflict, "QUEUE_ITEM_FINISHED", "Queue item has already finished", map[string]any{"status": item.Status})
	}
	if err := s.store.SetQueueStatus(ctx, orgID, itemID, store.QueueStatusCancelled); err != nil {
		return store.QueueItem{}, err
	}
	return s.store.GetQueueItem(ctx, orgID, itemID)
}

// OpenGenerationStream opens the backend's streaming generation endpoint. The
// caller owns the response body.
func (s *Service) OpenGenerationStream(ctx context.Context, input GenerationInput) (*http.Response, error) {
	if s.generator == nil {
		return nil, errGenerationUnavailable
	}
	if strings.TrimSpace(input.Topic) == "" {
		return nil, validationError("topic is required")
	}
	if input.WordCount <= 0 {
		input.WordCount = defaultWordCount
	}
	metrics.GenerationJob(false)
	return s.generator.OpenStream(ctx, blogwriter.PathGenerateStream, input.GenerateRequest)
}

func (s *Service) OpenKeywordStream(ctx context.Context, payload json.RawMessage) (*http.Response, error) {
	if s.generator == nil {
		return nil, errGenerationUnavailable
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return s.generator.OpenStream(ctx, blogwriter.PathKeywordStream, payload)
}
