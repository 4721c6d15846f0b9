// Package replay plays back a recorded walk from a JSON-lines file, one
// location.Message per line. It stands in for a device GPS during demos
// and tests.
package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bft-labs/zonecast/internal/adapters/location"
	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
	"github.com/bft-labs/zonecast/pkg/log"
)

// Config configures a replay provider.
type Config struct {
	Path string
	// Speed paces playback by the recorded timestamps divided by Speed.
	// Zero plays back as fast as the consumer reads.
	Speed float64
}

// Provider is a file-backed ports.LocationProvider.
type Provider struct {
	cfg    Config
	logger log.Logger
	now    func() time.Time
}

var _ ports.LocationProvider = (*Provider)(nil)

// New creates a replay provider.
func New(cfg Config, logger log.Logger) *Provider {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Provider{cfg: cfg, logger: logger, now: time.Now}
}

// RequestPermission checks that the recording can be opened.
func (p *Provider) RequestPermission(ctx context.Context) error {
	f, err := p.open()
	if err != nil {
		return err
	}
	return f.Close()
}

// Subscribe streams the recording. The channel closes at end of file or
// when ctx is canceled.
func (p *Provider) Subscribe(ctx context.Context, cfg ports.SubscribeConfig) (<-chan domain.LocationSample, error) {
	f, err := p.open()
	if err != nil {
		return nil, err
	}

	out := make(chan domain.LocationSample)
	go func() {
		defer close(out)
		defer f.Close()
		p.play(ctx, bufio.NewScanner(f), location.NewFilter(cfg), out)
	}()
	return out, nil
}

func (p *Provider) play(ctx context.Context, sc *bufio.Scanner, filter *location.Filter, out chan<- domain.LocationSample) {
	var prev time.Time
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		sample, err := location.Decode(raw, p.now())
		if err != nil {
			p.logger.Warn("skipping malformed replay line",
				log.String("path", p.cfg.Path),
				log.Int("line", line),
				log.Err(err),
			)
			continue
		}

		if p.cfg.Speed > 0 && !prev.IsZero() {
			if gap := sample.Timestamp.Sub(prev); gap > 0 {
				if !sleep(ctx, time.Duration(float64(gap)/p.cfg.Speed)) {
					return
				}
			}
		}
		prev = sample.Timestamp

		if !filter.Accept(sample) {
			continue
		}
		select {
		case out <- sample:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		p.logger.Error("replay read failed", log.String("path", p.cfg.Path), log.Err(err))
		return
	}
	p.logger.Info("replay finished", log.String("path", p.cfg.Path), log.Int("lines", line))
}

func (p *Provider) open() (*os.File, error) {
	f, err := os.Open(p.cfg.Path)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
