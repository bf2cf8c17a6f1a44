package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"whisperq/internal/constants"
	apperrors "whisperq/internal/errors"
	"whisperq/internal/metrics"
	"whisperq/internal/models"
	"whisperq/internal/privacy"
	"whisperq/internal/tracing"
	"whisperq/pkg/circuitbreaker"
	"whisperq/pkg/twitch"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WhisperQueue is the part of the dispatcher the pump drives.
type WhisperQueue interface {
	TryTakeNext() (models.PendingMessage, bool)
	ReportSuccess(msg models.PendingMessage)
	AvailablePerSecond() int
	Backlog() int
}

// WhisperPump drains the whisper queue on a fixed tick, sending every whisper
// the queue admits and reporting the successful ones back.
type WhisperPump struct {
	queue       WhisperQueue
	sender      twitch.Client
	breaker     *circuitbreaker.CircuitBreaker
	interval    time.Duration
	sendTimeout time.Duration
	logger      *logrus.Logger
	metrics     *metrics.Registry
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	mu          sync.RWMutex
}

// NewWhisperPump creates a pump. Zero values in cfg fall back to defaults.
func NewWhisperPump(queue WhisperQueue, sender twitch.Client, cfg models.WhisperConfig, logger *logrus.Logger, registry *metrics.Registry) *WhisperPump {
	interval := time.Duration(cfg.TickIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = constants.DefaultWhisperTickIntervalMs * time.Millisecond
	}
	sendTimeout := time.Duration(cfg.SendTimeoutSec) * time.Second
	if sendTimeout <= 0 {
		sendTimeout = constants.DefaultWhisperSendTimeoutSec * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = constants.DefaultHelixBreakerFailures
	}
	cooldown := time.Duration(cfg.BreakerCooldownSec) * time.Second
	if cooldown <= 0 {
		cooldown = constants.DefaultHelixBreakerCooldownSec * time.Second
	}

	// Only outages count toward tripping; per-recipient rejections do not.
	breaker := circuitbreaker.New("helix-whispers", uint32(maxFailures), cooldown,
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithFailurePredicate(apperrors.IsRetryable),
	)

	return &WhisperPump{
		queue:       queue,
		sender:      sender,
		breaker:     breaker,
		interval:    interval,
		sendTimeout: sendTimeout,
		logger:      logger,
		metrics:     registry,
	}
}

// Start begins ticking in the background until Stop is called or ctx ends.
func (p *WhisperPump) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("whisper pump is already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.wg.Add(1)
	go p.loop()

	p.logger.WithField("interval", p.interval.String()).Info("Whisper pump started")
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish
func (p *WhisperPump) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.logger.Info("Stopping whisper pump...")
	p.cancel()
	p.wg.Wait()
	p.running = false
	p.logger.Info("Whisper pump stopped")
}

// IsRunning returns whether the pump is currently active
func (p *WhisperPump) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *WhisperPump) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Tick(p.ctx)
		}
	}
}

// Tick takes and sends whispers until the queue has nothing admissible left
// and returns how many were confirmed sent. Sends run one at a time so each
// success is reported before the next admission decision. Failed sends are
// never reported, so attempts are capped by the per-second budget seen at the
// start of the tick. While the Helix circuit is open nothing is taken, so the
// backlog is kept.
func (p *WhisperPump) Tick(ctx context.Context) int {
	ctx = tracing.WithRequestID(ctx, tracing.NewTickID())
	ctx, span := tracing.StartSpan(ctx, "whisper.tick")
	defer span.End()

	sent := 0
	attempts := p.queue.AvailablePerSecond()
	for ; attempts > 0 && ctx.Err() == nil; attempts-- {
		if !p.breaker.Allow() {
			p.metrics.IncrementCounter(metrics.WhisperTicksSkipped, map[string]string{"reason": "circuit_open"}, "Whisper ticks cut short by the Helix circuit breaker")
			p.logger.WithField(LogFieldBacklog, p.queue.Backlog()).Debug("Helix circuit open, holding whisper backlog")
			break
		}

		msg, ok := p.queue.TryTakeNext()
		if !ok {
			break
		}
		if p.send(ctx, msg) {
			p.queue.ReportSuccess(msg)
			sent++
		}
	}

	span.SetAttributes(
		attribute.Int("whisper.backlog", p.queue.Backlog()),
		attribute.Int("whisper.sent", sent),
	)
	if sent > 0 {
		p.logger.WithFields(logrus.Fields{
			LogFieldRequestID: tracing.RequestID(ctx),
			LogFieldCount:     sent,
			LogFieldBacklog:   p.queue.Backlog(),
		}).Debug("Whisper tick completed")
	}
	return sent
}

func (p *WhisperPump) send(ctx context.Context, msg models.PendingMessage) bool {
	recipient := msg.Recipient.ID
	if !IsVerboseLogging(ctx) {
		recipient = privacy.MaskUserID(recipient)
	}

	ctx, span := tracing.StartSpan(ctx, "whisper.send", attribute.String("whisper.recipient", recipient))
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	start := time.Now()
	err := p.breaker.Execute(sendCtx, func(ctx context.Context) error {
		return p.sender.SendWhisper(ctx, msg.Recipient.ID, msg.Text)
	})
	p.metrics.RecordTimer(metrics.WhisperSendDuration, time.Since(start), nil)

	if err != nil {
		code := string(apperrors.GetCode(err))
		if circuitbreaker.IsOpenError(err) {
			code = "CIRCUIT_OPEN"
		}
		tracing.RecordError(ctx, err)
		p.metrics.IncrementCounter(metrics.WhisperSendFailures, map[string]string{
			"code": code,
		}, "Whisper sends rejected or failed")
		apperrors.LogError(p.logger.WithFields(logrus.Fields{
			LogFieldRequestID: tracing.RequestID(ctx),
			LogFieldRecipient: recipient,
			LogFieldBacklog:   p.queue.Backlog(),
		}), err, "Failed to send whisper, dropping it")
		return false
	}

	span.SetStatus(codes.Ok, "")
	return true
}

// BreakerStats exposes the Helix circuit breaker state for diagnostics
func (p *WhisperPump) BreakerStats() circuitbreaker.Stats {
	return p.breaker.Stats()
}
