package alert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jobmate/alert-service/internal/batch"
	"jobmate/alert-service/internal/model"
)

// Redis channels the runner publishes to.
const (
	ChannelAlertMatched   = "EVENT_ALERT_MATCHED"
	ChannelAlertBatchDone = "EVENT_ALERT_BATCH_DONE"
)

// FailureClass separates a failed search from a failed notification hand-off.
type FailureClass string

const (
	FailureNone         FailureClass = ""
	FailureExecution    FailureClass = "execution"
	FailureNotification FailureClass = "notification"
)

// AlertOutcome is one alert's line in a RunReport.
type AlertOutcome struct {
	AlertID        string       `json:"alertId"`
	AlertName      string       `json:"alertName"`
	OwnerID        string       `json:"ownerId"`
	State          State        `json:"state"`
	MatchCount     int          `json:"matchCount"`
	NewMatchCount  int          `json:"newMatchCount"`
	Error          string       `json:"error,omitempty"`
	FailureClass   FailureClass `json:"failureClass,omitempty"`
	NotificationID string       `json:"notificationId,omitempty"`
}

// RunReport summarises one batch invocation. It is not persisted.
type RunReport struct {
	Cadence             model.Cadence  `json:"cadence"`
	StartedAt           time.Time      `json:"startedAt"`
	FinishedAt          time.Time      `json:"finishedAt"`
	TotalConsidered     int            `json:"totalConsidered"`
	Succeeded           int            `json:"succeeded"`
	Failed              int            `json:"failed"`
	NotificationsSent   int            `json:"notificationsSent"`
	NotificationsFailed int            `json:"notificationsFailed"`
	Cancelled           int            `json:"cancelled"`
	Outcomes            []AlertOutcome `json:"outcomes"`
}

func (r *RunReport) add(o AlertOutcome) {
	switch o.State {
	case StateSucceeded, StateNotificationPending:
		r.Succeeded++
	case StateNotificationSent:
		r.Succeeded++
		r.NotificationsSent++
	case StateNotificationFailed:
		r.Succeeded++
		r.NotificationsFailed++
	case StateFailed:
		r.Failed++
	case StateCancelled:
		r.Cancelled++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// SingleRun is the result of RunOne.
type SingleRun struct {
	Outcome AlertOutcome     `json:"outcome"`
	Result  *ExecutionResult `json:"result,omitempty"`
}

// RunnerConfig tunes Runner.
type RunnerConfig struct {
	// Workers bounds concurrent alert executions within a batch.
	Workers int
	// QueryRate caps alert starts per second. Zero disables the limiter.
	QueryRate float64
	// AlertTimeout bounds one alert once started. Zero means no bound
	// beyond the executor's query timeout.
	AlertTimeout          time.Duration
	HighPriorityThreshold int
	LockTTL               time.Duration
}

// RunnerOption configures optional collaborators.
type RunnerOption func(*Runner)

// WithPublisher publishes match and batch events.
func WithPublisher(p Publisher) RunnerOption { return func(r *Runner) { r.pub = p } }

// WithLocker prevents overlapping batches of one cadence.
func WithLocker(l Locker) RunnerOption { return func(r *Runner) { r.locker = l } }

// WithRecorder reports execution metrics.
func WithRecorder(rec Recorder) RunnerOption { return func(r *Runner) { r.rec = rec } }

// Runner executes every eligible alert of a cadence and dispatches
// notifications for new matches.
type Runner struct {
	store   CriteriaStore
	exec    *Executor
	notes   NotificationStore
	pub     Publisher
	locker  Locker
	rec     Recorder
	limiter *rate.Limiter
	cfg     RunnerConfig
	log     *zap.Logger
}

// NewRunner returns a Runner.
func NewRunner(store CriteriaStore, exec *Executor, notes NotificationStore, cfg RunnerConfig, log *zap.Logger, opts ...RunnerOption) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.HighPriorityThreshold <= 0 {
		cfg.HighPriorityThreshold = DefaultHighPriorityThreshold
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		store: store,
		exec:  exec,
		notes: notes,
		rec:   nopRecorder{},
		cfg:   cfg,
		log:   log,
	}
	if cfg.QueryRate > 0 {
		burst := int(cfg.QueryRate)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.QueryRate), burst)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunBatch executes every alert of cadence that is due at now. Only
// systemic failures are returned: a held batch lock or a failed load of
// the eligible set. Per-alert failures are reported in the RunReport.
func (r *Runner) RunBatch(ctx context.Context, cadence model.Cadence, now time.Time) (*RunReport, error) {
	log := r.log.With(zap.String("cadence", string(cadence)))

	if r.locker != nil {
		release, ok, err := r.locker.Acquire(ctx, "alert:batch:"+string(cadence), r.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire batch lock: %w", err)
		}
		if !ok {
			return nil, ErrBatchInProgress
		}
		defer release()
	}

	candidates, err := r.store.FindEligible(ctx, cadence, Threshold(cadence, now))
	if err != nil {
		return nil, fmt.Errorf("load eligible alerts: %w", err)
	}
	due := SelectEligible(candidates, cadence, now)

	report := &RunReport{
		Cadence:         cadence,
		StartedAt:       now,
		TotalConsidered: len(due),
		Outcomes:        make([]AlertOutcome, 0, len(due)),
	}
	if len(due) == 0 {
		report.FinishedAt = time.Now().UTC()
		log.Debug("no alerts due")
		return report, nil
	}
	log.Info("alert batch started", zap.Int("due", len(due)))

	opts := batch.Options{Workers: r.cfg.Workers}
	if r.limiter != nil {
		opts.Before = r.limiter.Wait
	}
	results := batch.Run(ctx, due, func(ctx context.Context, c model.Criteria) (AlertOutcome, error) {
		out, _, _ := r.runAlert(ctx, &c)
		return out, nil
	}, opts)

	for _, res := range results {
		out := res.Result
		switch {
		case res.Skipped:
			out = outcomeFor(&res.Item)
			out.State = StateCancelled
			r.rec.AlertExecuted(cadence, "cancelled")
		case res.Err != nil:
			out = outcomeFor(&res.Item)
			out.State = StateFailed
			out.Error = res.Err.Error()
			out.FailureClass = FailureExecution
			r.rec.AlertExecuted(cadence, "failed")
		}
		report.add(out)
	}
	report.FinishedAt = time.Now().UTC()
	r.rec.BatchFinished(cadence, report.FinishedAt.Sub(report.StartedAt))

	r.publish(ctx, ChannelAlertBatchDone, map[string]any{
		"type":                ChannelAlertBatchDone,
		"cadence":             cadence,
		"totalConsidered":     report.TotalConsidered,
		"succeeded":           report.Succeeded,
		"failed":              report.Failed,
		"notificationsSent":   report.NotificationsSent,
		"notificationsFailed": report.NotificationsFailed,
		"cancelled":           report.Cancelled,
		"finishedAt":          report.FinishedAt,
	})
	log.Info("alert batch complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("notifications_sent", report.NotificationsSent),
		zap.Int("notifications_failed", report.NotificationsFailed),
		zap.Int("cancelled", report.Cancelled),
	)
	return report, nil
}

// RunOne evaluates a single alert on demand, bypassing eligibility. A
// preview run never mutates the alert and never notifies; a committed run
// behaves like one batch item and requires an active alert.
func (r *Runner) RunOne(ctx context.Context, id string, preview bool) (*SingleRun, error) {
	c, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if preview {
		res, err := r.exec.Execute(ctx, c, ModePreview)
		if err != nil {
			return nil, err
		}
		out := outcomeFor(c)
		out.State = StateSucceeded
		out.MatchCount = res.MatchCount
		out.NewMatchCount = res.NewMatchCount
		return &SingleRun{Outcome: out, Result: res}, nil
	}

	if !c.Active {
		return nil, ErrInactive
	}
	out, res, err := r.runAlert(ctx, c)
	if err != nil {
		return &SingleRun{Outcome: out}, err
	}
	return &SingleRun{Outcome: out, Result: res}, nil
}

// runAlert commits one execution and notifies on new matches. The returned
// error is the execution failure, if any; a failed notification is only
// recorded on the outcome.
func (r *Runner) runAlert(ctx context.Context, c *model.Criteria) (AlertOutcome, *ExecutionResult, error) {
	if r.cfg.AlertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AlertTimeout)
		defer cancel()
	}
	log := r.log.With(zap.String("alert_id", c.ID))
	out := outcomeFor(c)
	tr := tracker{state: StateEligible}
	step := func(to State) {
		if err := tr.move(to); err != nil {
			log.Error("alert state", zap.Error(err))
		}
	}

	step(StateExecuting)
	res, err := r.exec.Execute(ctx, c, ModeCommit)
	if err != nil {
		step(StateFailed)
		out.State = tr.state
		out.Error = err.Error()
		out.FailureClass = FailureExecution
		r.rec.AlertExecuted(c.Cadence, "failed")
		return out, nil, err
	}
	step(StateSucceeded)
	out.MatchCount = res.MatchCount
	out.NewMatchCount = res.NewMatchCount
	r.rec.AlertExecuted(c.Cadence, "succeeded")
	r.rec.MatchesFound(c.Cadence, res.NewMatchCount)

	if res.NewMatchCount > 0 {
		step(StateNotificationPending)
		rec, err := r.notes.Create(ctx, Draft(c, res, r.cfg.HighPriorityThreshold))
		if err != nil {
			derr := &NotificationDispatchError{Err: err}
			step(StateNotificationFailed)
			out.Error = derr.Error()
			out.FailureClass = FailureNotification
			r.rec.NotificationEmitted("failed")
			log.Warn("notification dispatch failed", zap.Error(err))
		} else {
			step(StateNotificationSent)
			out.NotificationID = rec.ID
			r.rec.NotificationEmitted("sent")
		}
		r.publish(ctx, ChannelAlertMatched, map[string]any{
			"type":           ChannelAlertMatched,
			"alertId":        c.ID,
			"ownerId":        c.OwnerID,
			"newMatchCount":  res.NewMatchCount,
			"notificationId": out.NotificationID,
		})
	}
	out.State = tr.state
	return out, res, nil
}

// publish is best-effort: failures are logged, never returned.
func (r *Runner) publish(ctx context.Context, channel string, payload any) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, channel, payload); err != nil {
		r.log.Warn("publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

func outcomeFor(c *model.Criteria) AlertOutcome {
	return AlertOutcome{AlertID: c.ID, AlertName: c.Name, OwnerID: c.OwnerID}
}
