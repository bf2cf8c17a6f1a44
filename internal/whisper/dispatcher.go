// Package whisper implements the outbound whisper dispatch queue: admission
// control that decides, one tick at a time, which queued whispers may go out
// without breaking Twitch's per-second, per-minute and distinct-recipient
// limits.
//
// The dispatcher never sends anything itself. A caller polls TryTakeNext,
// performs the send, and calls ReportSuccess only once the platform has
// accepted it. State advances only in ReportSuccess.
package whisper

import (
	"context"
	"sync"
	"time"

	"whisperq/internal/constants"
	apperrors "whisperq/internal/errors"
	"whisperq/internal/metrics"
	"whisperq/internal/models"
	"whisperq/internal/privacy"
	"whisperq/internal/ratelimit"

	"github.com/sirupsen/logrus"
)

// Status is a point-in-time view of the dispatcher for diagnostics.
type Status struct {
	Frozen             bool       `json:"frozen"`
	Backlog            int        `json:"backlog"`
	UnresolvedBacklog  int        `json:"unresolvedBacklog"`
	MaxRecipients      int        `json:"maxRecipients"`
	Recipients         []string   `json:"recipients"`
	AvailablePerSecond int        `json:"availablePerSecond"`
	AvailablePerMinute int        `json:"availablePerMinute"`
	LastActivity       *time.Time `json:"lastActivity,omitempty"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to logrus.StandardLogger().
func WithLogger(logger *logrus.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithMetrics sets the registry events are counted in. Defaults to the global registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(d *Dispatcher) {
		d.metrics = registry
	}
}

// WithDefaultMaxRecipients sets the cap used when the store has no
// MaxWhisperRecipients setting yet.
func WithDefaultMaxRecipients(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.defaultMaxRecipients = n
		}
	}
}

// WithStoreTimeout bounds every store call made by the dispatcher.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.storeTimeout = timeout
	}
}

// WithVerbose disables masking of recipient identifiers in logs.
func WithVerbose(verbose bool) Option {
	return func(d *Dispatcher) {
		d.verbose = verbose
	}
}

// Dispatcher is the whisper dispatch queue. All methods are safe for
// concurrent use; they are serialised behind a single mutex so the
// scan-then-remove in TryTakeNext and the bookkeeping in ReportSuccess are
// never interleaved.
type Dispatcher struct {
	mu         sync.Mutex
	store      Store
	marker     *ActivityMarker
	perSecond  *ratelimit.Counter
	perMinute  *ratelimit.Counter
	recipients *RecipientBudget
	pending    backlog
	frozen     bool
	// unpersisted holds the last confirmed send the store failed to record.
	unpersisted time.Time

	now                  func() time.Time
	logger               *logrus.Logger
	metrics              *metrics.Registry
	defaultMaxRecipients int
	storeTimeout         time.Duration
	verbose              bool
}

// NewDispatcher builds a dispatcher allowing perSecondLimit whispers per second
// and perMinuteLimit per minute. The recipient cap is read from the store.
func NewDispatcher(ctx context.Context, store Store, perSecondLimit, perMinuteLimit int, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig, "whisper store is required")
	}
	if perSecondLimit <= 0 {
		return nil, apperrors.NewConfigError("whispers.perSecondLimit", "per-second limit must be positive")
	}
	if perMinuteLimit <= 0 {
		return nil, apperrors.NewConfigError("whispers.perMinuteLimit", "per-minute limit must be positive")
	}

	d := &Dispatcher{
		store:                store,
		marker:               NewActivityMarker(store),
		perSecond:            ratelimit.NewCounter(perSecondLimit, constants.PerSecondWindow),
		perMinute:            ratelimit.NewCounter(perMinuteLimit, constants.PerMinuteWindow),
		now:                  time.Now,
		logger:               logrus.StandardLogger(),
		metrics:              metrics.GetRegistry(),
		defaultMaxRecipients: constants.DefaultMaxWhisperRecipients,
		storeTimeout:         time.Duration(constants.DefaultWhisperStoreTimeoutSec) * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}

	maxRecipients, ok, err := store.GetMaxWhisperRecipients(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to read MaxWhisperRecipients")
	}
	if ok && maxRecipients < 1 {
		d.logger.WithFields(logrus.Fields{
			"stored":  maxRecipients,
			"default": d.defaultMaxRecipients,
		}).Warn("Ignoring invalid stored MaxWhisperRecipients, using default")
		ok = false
	}
	if !ok {
		maxRecipients = d.defaultMaxRecipients
	}
	d.recipients = NewRecipientBudget(maxRecipients)

	d.logger.WithFields(logrus.Fields{
		"per_second_limit": perSecondLimit,
		"per_minute_limit": perMinuteLimit,
		"max_recipients":   maxRecipients,
	}).Info("Whisper dispatcher initialized")

	return d, nil
}

// Enqueue appends a whisper to the back of the backlog. Recipients without a
// resolved id are accepted and stay parked until resolved. Once the queue is
// frozen Enqueue silently discards the whisper.
func (d *Dispatcher) Enqueue(recipient models.User, text string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frozen {
		d.metrics.IncrementCounter(metrics.WhispersDroppedFrozen, nil, "Whispers discarded because the queue is frozen")
		d.logger.WithField("recipient", d.maskName(recipient.DisplayName)).Debug("Whisper queue frozen, discarding whisper")
		return
	}

	d.pending.push(models.PendingMessage{
		Recipient:  recipient,
		Text:       text,
		EnqueuedAt: at,
	})
	d.metrics.IncrementCounter(metrics.WhispersEnqueued, nil, "Whispers accepted into the backlog")
	d.updateBacklogGauge()

	d.logger.WithFields(logrus.Fields{
		"recipient": d.maskName(recipient.DisplayName),
		"resolved":  recipient.Resolved(),
		"backlog":   d.pending.len(),
	}).Debug("Whisper enqueued")
}

// TryTakeNext removes and returns the oldest whisper that may be sent right
// now. It returns false when nothing is sendable; callers poll again on the
// next tick. The returned whisper is gone from the backlog whether or not it
// is later reported as sent.
func (d *Dispatcher) TryTakeNext() (models.PendingMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	ctx, cancel := d.storeContext()
	defer cancel()

	d.rolloverIfStale(ctx, now)

	if d.perSecond.AvailableOccurrences(now) == 0 {
		d.metrics.IncrementCounter(metrics.WhisperAdmissionDenied, map[string]string{"reason": "per_second"}, "Ticks with no sendable whisper")
		return models.PendingMessage{}, false
	}
	if d.perMinute.AvailableOccurrences(now) == 0 {
		d.metrics.IncrementCounter(metrics.WhisperAdmissionDenied, map[string]string{"reason": "per_minute"}, "Ticks with no sendable whisper")
		return models.PendingMessage{}, false
	}

	msg, ok := d.pending.takeFirst(func(m models.PendingMessage) bool {
		return m.Recipient.Resolved() && d.recipients.HasRoomFor(m.Recipient.ID)
	})
	if !ok {
		if d.pending.len() > 0 {
			d.metrics.IncrementCounter(metrics.WhisperAdmissionDenied, map[string]string{"reason": "no_eligible"}, "Ticks with no sendable whisper")
		}
		return models.PendingMessage{}, false
	}

	d.metrics.IncrementCounter(metrics.WhispersTaken, nil, "Whispers handed out for sending")
	d.updateBacklogGauge()
	d.logger.WithFields(logrus.Fields{
		"recipient_id": d.maskID(msg.Recipient.ID),
		"queued_for":   now.Sub(msg.EnqueuedAt).String(),
		"backlog":      d.pending.len(),
	}).Debug("Whisper admitted")

	return msg, true
}

// ReportSuccess records a confirmed send of msg, which must have come from
// TryTakeNext. It consumes one occurrence from both rate windows, admits the
// recipient and stamps the activity marker.
func (d *Dispatcher) ReportSuccess(msg models.PendingMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	ctx, cancel := d.storeContext()
	defer cancel()

	d.rolloverIfStale(ctx, now)

	secondOK := d.perSecond.TryConsume(now)
	minuteOK := d.perMinute.TryConsume(now)
	if !secondOK || !minuteOK {
		d.logger.WithField("recipient_id", d.maskID(msg.Recipient.ID)).Warn("Whisper reported beyond the rate window budget")
	}
	if msg.Recipient.Resolved() {
		d.recipients.Record(msg.Recipient.ID)
	}

	if err := d.marker.Write(ctx, now); err != nil {
		d.unpersisted = now
		d.metrics.IncrementCounter(metrics.WhisperStoreErrors, map[string]string{"op": "save_timer"}, "Whisper store failures")
		apperrors.LogError(d.logger.WithField("timer", d.marker.Name()), err, "Failed to persist whisper activity marker")
	} else {
		d.unpersisted = time.Time{}
	}

	d.metrics.IncrementCounter(metrics.WhispersSent, nil, "Whispers confirmed sent")
}

// FreezeQueue stops accepting whispers and drops the recipient cap to one,
// both in memory and in the persisted MaxWhisperRecipients setting. There is
// no way back short of editing the setting and restarting. Calling it again
// only re-persists the lowered cap.
func (d *Dispatcher) FreezeQueue() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.storeContext()
	defer cancel()

	if !d.frozen {
		d.frozen = true
		d.metrics.IncrementCounter(metrics.WhisperQueueFreezes, nil, "Whisper queue freezes")
		d.logger.WithFields(logrus.Fields{
			"backlog":        d.pending.len(),
			"max_recipients": constants.FrozenMaxWhisperRecipients,
		}).Warn("Whisper queue frozen")
	}
	d.recipients.SetCap(constants.FrozenMaxWhisperRecipients)

	if err := d.store.SetMaxWhisperRecipients(ctx, constants.FrozenMaxWhisperRecipients); err != nil {
		d.metrics.IncrementCounter(metrics.WhisperStoreErrors, map[string]string{"op": "set_max_recipients"}, "Whisper store failures")
		apperrors.LogError(d.logger, err, "Failed to persist frozen MaxWhisperRecipients")
	}
}

// Frozen reports whether FreezeQueue has been called.
func (d *Dispatcher) Frozen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frozen
}

// Backlog returns the number of whispers waiting to be taken.
func (d *Dispatcher) Backlog() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.len()
}

// Pending returns a copy of the backlog in FIFO order.
func (d *Dispatcher) Pending() []models.PendingMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.snapshot()
}

// Recipients returns the ids admitted in the active window.
func (d *Dispatcher) Recipients() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recipients.Members()
}

// MaxRecipients returns the current distinct-recipient cap.
func (d *Dispatcher) MaxRecipients() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recipients.Cap()
}

// AvailablePerSecond returns the whispers left in the current one-second window.
func (d *Dispatcher) AvailablePerSecond() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perSecond.AvailableOccurrences(d.now())
}

// AvailablePerMinute returns the whispers left in the current one-minute window.
func (d *Dispatcher) AvailablePerMinute() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perMinute.AvailableOccurrences(d.now())
}

// Snapshot returns the full diagnostic view in one consistent read.
func (d *Dispatcher) Snapshot() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	ctx, cancel := d.storeContext()
	defer cancel()

	status := Status{
		Frozen:  d.frozen,
		Backlog: d.pending.len(),
		UnresolvedBacklog: d.pending.count(func(m models.PendingMessage) bool {
			return !m.Recipient.Resolved()
		}),
		MaxRecipients:      d.recipients.Cap(),
		Recipients:         d.recipients.Members(),
		AvailablePerSecond: d.perSecond.AvailableOccurrences(now),
		AvailablePerMinute: d.perMinute.AvailableOccurrences(now),
	}
	if last, err := d.marker.Read(ctx); err == nil {
		status.LastActivity = last
	}
	return status
}

// rolloverIfStale discards both rate windows and the recipient set when the
// marker is missing or older than WhisperRolloverThreshold. A marker that
// cannot be read leaves state untouched, and so does a recent send whose
// marker write failed.
func (d *Dispatcher) rolloverIfStale(ctx context.Context, now time.Time) {
	if !d.unpersisted.IsZero() && now.Sub(d.unpersisted) <= constants.WhisperRolloverThreshold {
		return
	}

	age, ok, err := d.marker.Age(ctx, now)
	if err != nil {
		d.metrics.IncrementCounter(metrics.WhisperStoreErrors, map[string]string{"op": "get_timer"}, "Whisper store failures")
		apperrors.LogWarn(d.logger.WithField("timer", d.marker.Name()), err, "Failed to read whisper activity marker, skipping rollover check")
		return
	}
	if ok && age <= constants.WhisperRolloverThreshold {
		return
	}

	if d.recipients.Len() > 0 ||
		d.perSecond.AvailableOccurrences(now) < d.perSecond.Limit() ||
		d.perMinute.AvailableOccurrences(now) < d.perMinute.Limit() {
		d.metrics.IncrementCounter(metrics.WhisperRollovers, nil, "Whisper window rollovers")
		d.logger.WithFields(logrus.Fields{
			"idle":       age.String(),
			"recipients": d.recipients.Len(),
		}).Debug("Whisper window rolled over")
	}

	d.perSecond.Reset(now)
	d.perMinute.Reset(now)
	d.recipients.Clear()
}

func (d *Dispatcher) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.storeTimeout)
}

func (d *Dispatcher) updateBacklogGauge() {
	d.metrics.SetGauge(metrics.WhisperBacklogSize, float64(d.pending.len()), nil, "Whispers waiting in the backlog")
}

func (d *Dispatcher) maskID(id string) string {
	if d.verbose {
		return id
	}
	return privacy.MaskUserID(id)
}

func (d *Dispatcher) maskName(name string) string {
	if d.verbose {
		return name
	}
	return privacy.MaskDisplayName(name)
}
