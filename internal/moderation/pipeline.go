package moderation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chatify/apiserver/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultCheckTimeout = 30 * time.Second
	applyTimeout        = 10 * time.Second
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatify_moderation_checks_total",
		Help: "Moderation checks by outcome.",
	}, []string{"outcome"})

	checkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatify_moderation_check_duration_seconds",
		Help:    "Time spent waiting for the moderation service.",
		Buckets: prometheus.DefBuckets,
	})

	checksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatify_moderation_checks_in_flight",
		Help: "Moderation checks currently running.",
	})
)

// Patcher applies a moderation verdict to a stored post.
type Patcher interface {
	Patch(ctx context.Context, id string, patch types.PostPatch) (types.Post, bool, error)
}

// Publisher announces finished checks.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, value any, attrs map[string]string) (string, error)
}

// Event is published after a verdict has been applied to a post.
type Event struct {
	PostID          string          `json:"postId"`
	AuthorID        string          `json:"authorId"`
	Outcome         Outcome         `json:"outcome"`
	IsFlagged       types.FlagState `json:"isFlagged"`
	ModerationScore *float64        `json:"moderationScore,omitempty"`
	ModerationError bool            `json:"moderationError,omitempty"`
	CheckedAt       time.Time       `json:"checkedAt"`
}

// Pipeline runs one background check per scheduled post. A check that
// errors leaves the post visible: it is marked clear with moderationError
// set. Verdicts for posts deleted in the meantime are dropped.
type Pipeline struct {
	checker Checker
	posts   Patcher
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	publisher  Publisher
	topic      string
	onComplete func(Result)

	mu      sync.Mutex
	pending map[string]*Job
	closed  bool
	wg      sync.WaitGroup
}

// NewPipeline constructs a pipeline. A non-positive timeout uses the default.
func NewPipeline(checker Checker, posts Patcher, timeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Pipeline{
		checker: checker,
		posts:   posts,
		logger:  logger.With("component", "moderation"),
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		pending: make(map[string]*Job),
	}
}

// SetPublisher publishes an Event to topic after each applied verdict.
func (p *Pipeline) SetPublisher(publisher Publisher, topic string) {
	p.publisher = publisher
	p.topic = topic
}

// OnComplete registers fn to run after every job. It runs on the job's
// goroutine.
func (p *Pipeline) OnComplete(fn func(Result)) {
	p.onComplete = fn
}

// SetClock overrides the time source used for moderationCheckedAt.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Schedule starts a check for post and returns its handle. It returns nil
// when the post has nothing to check, a check for the same id is already
// running, or the pipeline has been shut down.
func (p *Pipeline) Schedule(post types.Post) *Job {
	if strings.TrimSpace(post.Content) == "" && len(post.Images) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if _, ok := p.pending[post.ID]; ok {
		p.mu.Unlock()
		return nil
	}
	job := newJob(post.ID)
	p.pending[post.ID] = job
	p.wg.Add(1)
	p.mu.Unlock()

	req := Request{
		Content: post.Content,
		Images:  append([]string{}, post.Images...),
		UserID:  post.AuthorID,
		PostID:  post.ID,
	}
	go p.run(job, req)
	return job
}

// Pending reports how many checks are still running.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Shutdown stops accepting new checks and waits for running ones to finish.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) run(job *Job, req Request) {
	defer p.wg.Done()
	checksInFlight.Inc()
	defer checksInFlight.Dec()

	verdict, checkErr := p.check(req)

	checkedAt := p.now()
	patch := types.PostPatch{ModerationCheckedAt: &checkedAt}
	outcome := OutcomeChecked
	if checkErr != nil {
		p.logger.Warn("Moderation check failed, clearing post", "post_id", req.PostID, "error", checkErr)
		outcome = OutcomeFailed
		flag := types.FlagClear
		failed := true
		patch.IsFlagged = &flag
		patch.ModerationError = &failed
	} else {
		flag := types.FlagStateOf(verdict.IsUnsafe)
		score := verdict.Score
		patch.IsFlagged = &flag
		patch.ModerationScore = &score
		patch.ModerationDetails = verdict.Details
	}

	// The check context may have expired; the result is applied on its own.
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	post, found, err := p.posts.Patch(ctx, req.PostID, patch)
	switch {
	case err != nil:
		p.logger.Error("Failed to apply moderation result", "post_id", req.PostID, "error", err)
		outcome = OutcomeDiscarded
	case !found:
		p.logger.Debug("Post removed before moderation finished", "post_id", req.PostID)
		outcome = OutcomeDiscarded
	case post.ModerationCheckedAt == nil || !post.ModerationCheckedAt.Equal(checkedAt):
		outcome = OutcomeDiscarded
	}
	checksTotal.WithLabelValues(string(outcome)).Inc()

	if outcome != OutcomeDiscarded {
		if post.Flagged() {
			p.logger.Info("Post flagged by moderation", "post_id", req.PostID, "score", verdict.Score)
		}
		p.publish(ctx, post, outcome, checkedAt)
	}

	if err == nil {
		err = checkErr
	}
	result := Result{PostID: req.PostID, Outcome: outcome, Post: post, Err: err}

	p.mu.Lock()
	delete(p.pending, req.PostID)
	p.mu.Unlock()

	job.finish(result)
	if p.onComplete != nil {
		p.onComplete(result)
	}
}

func (p *Pipeline) check(req Request) (Verdict, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	started := time.Now()
	defer func() { checkDuration.Observe(time.Since(started).Seconds()) }()
	return p.checker.Check(ctx, req)
}

func (p *Pipeline) publish(ctx context.Context, post types.Post, outcome Outcome, checkedAt time.Time) {
	if p.publisher == nil {
		return
	}
	event := Event{
		PostID:          post.ID,
		AuthorID:        post.AuthorID,
		Outcome:         outcome,
		IsFlagged:       post.IsFlagged,
		ModerationScore: post.ModerationScore,
		ModerationError: post.ModerationError,
		CheckedAt:       checkedAt,
	}
	if _, err := p.publisher.PublishJSON(ctx, p.topic, event, map[string]string{"post_id": post.ID}); err != nil {
		p.logger.Error("Failed to publish moderation event", "post_id", post.ID, "error", err)
	}
}
