package tasks

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashtune/internal/shared"
)

// DefaultPollInterval matches how often the playback position is written while playing.
const DefaultPollInterval = time.Second

// PlayerState is what the host player exposes to the poller.
type PlayerState interface {
	Playing() bool
	PositionMs() int64
}

// PositionSaver stores the current position. [Session] implements it.
type PositionSaver interface {
	SavePosition(positionMs int64) error
}

// PositionPoller periodically persists the playback position while the player is playing.
type PositionPoller struct {
	player   PlayerState
	saver    PositionSaver
	interval time.Duration
	logger   *log.Logger
}

// NewPositionPoller creates a poller. A non-positive interval uses [DefaultPollInterval].
func NewPositionPoller(player PlayerState, saver PositionSaver, interval time.Duration, logger *log.Logger) *PositionPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PositionPoller{
		player:   player,
		saver:    saver,
		interval: interval,
		logger:   shared.WithLogger(logger, "component", "poller"),
	}
}

// Run blocks until ctx is done.
func (p *PositionPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *PositionPoller) tick() {
	if !p.player.Playing() {
		return
	}
	if err := p.saver.SavePosition(p.player.PositionMs()); err != nil {
		p.logger.Warn("failed to save position", "error", err)
	}
}
