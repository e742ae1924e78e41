package deliver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the breaker is rejecting sends to give
// the chat platform room to recover. It classifies as a transport failure,
// so the queue retries within the attempt ceiling.
var ErrCircuitOpen = errors.New("delivery circuit open")

// BreakerConfig tunes the channel circuit breaker.
type BreakerConfig struct {
	MaxFailures     int           // consecutive failures before the circuit opens
	RecoveryTimeout time.Duration // how long to reject before probing
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// ProtectedChannel wraps a Channel with a circuit breaker: once the chat
// platform fails repeatedly, sends fail fast instead of holding queue
// callbacks open against a dead endpoint.
type ProtectedChannel struct {
	channel Channel
	logger  *zap.Logger

	mu          sync.Mutex
	cfg         BreakerConfig
	state       breakerState
	failures    int
	lastFailure time.Time
}

// NewProtectedChannel wraps channel with breaker protection.
func NewProtectedChannel(channel Channel, cfg BreakerConfig, logger *zap.Logger) *ProtectedChannel {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}

	return &ProtectedChannel{
		channel: channel,
		cfg:     cfg,
		logger:  logger,
	}
}

// Send forwards to the underlying channel unless the circuit is open.
// Transport errors and 429/5xx responses count as failures; anything the
// platform actually accepted or definitively rejected counts as success
// for breaker purposes.
func (p *ProtectedChannel) Send(ctx context.Context, msg OutboundMessage) (ChannelResponse, error) {
	if !p.allow() {
		p.logger.Warn("circuit breaker rejected send, failing fast")
		return ChannelResponse{}, fmt.Errorf("%w: chat webhook unavailable", ErrCircuitOpen)
	}

	resp, err := p.channel.Send(ctx, msg)

	if err != nil || resp.StatusCode == 429 || resp.StatusCode >= 500 {
		p.recordFailure()
	} else {
		p.recordSuccess()
	}

	return resp, err
}

func (p *ProtectedChannel) allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(p.lastFailure) >= p.cfg.RecoveryTimeout {
			p.state = breakerHalfOpen
			p.logger.Info("circuit breaker allowing probe send")
			return true
		}
		return false
	case breakerHalfOpen:
		// one probe at a time; further sends wait for its verdict
		return false
	default:
		return false
	}
}

func (p *ProtectedChannel) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures = 0
	if p.state != breakerClosed {
		p.state = breakerClosed
		p.logger.Info("circuit breaker closed, chat webhook recovered")
	}
}

func (p *ProtectedChannel) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures++
	p.lastFailure = time.Now()

	if p.state == breakerHalfOpen || (p.state == breakerClosed && p.failures >= p.cfg.MaxFailures) {
		p.state = breakerOpen
		p.logger.Warn("circuit breaker opened",
			zap.Int("consecutive_failures", p.failures),
		)
	}
}
