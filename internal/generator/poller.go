package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/veo-studio/internal/video"
)

// DefaultPollInterval is the delay between status checks.
const DefaultPollInterval = 10 * time.Second

// Compile-time check that Poller implements Generator.
var _ Generator = (*Poller)(nil)

// Poller runs a Backend job to completion.
type Poller struct {
	backend  Backend
	interval time.Duration
	logger   *slog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval sets the delay between status checks.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

// NewPoller creates a Poller over backend.
func NewPoller(backend Backend, opts ...PollerOption) *Poller {
	p := &Poller{
		backend:  backend,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate submits req, polls until the job is terminal and downloads the
// output. Backend failures are returned as *RemoteError or as the backend's
// own error.
func (p *Poller) Generate(ctx context.Context, req video.Request) (video.Result, error) {
	jobID, err := p.backend.Submit(ctx, req)
	if err != nil {
		return video.Result{}, err
	}
	p.logger.Info("generation submitted",
		slog.String("job_id", jobID),
		slog.String("mode", string(req.Mode)),
		slog.String("model", string(req.Model)),
	)

	for {
		res, err := p.backend.Poll(ctx, jobID)
		if err != nil {
			return video.Result{}, err
		}

		if res.Status.IsTerminal() {
			if res.Status != StatusCompleted {
				p.logger.Warn("generation failed",
					slog.String("job_id", jobID),
					slog.String("status", string(res.Status)),
					slog.String("error", res.Error),
				)
				return video.Result{}, remoteFailure(res)
			}
			out, err := p.backend.Download(ctx, res)
			if err != nil {
				return video.Result{}, err
			}
			if len(out.Payload) == 0 {
				return video.Result{}, ErrNoOutput
			}
			p.logger.Info("generation completed",
				slog.String("job_id", jobID),
				slog.Int("bytes", len(out.Payload)),
			)
			return out, nil
		}

		p.logger.Debug("generation in progress",
			slog.String("job_id", jobID),
			slog.String("status", string(res.Status)),
		)

		select {
		case <-ctx.Done():
			return video.Result{}, fmt.Errorf("generator: context cancelled: %w", ctx.Err())
		case <-time.After(p.interval):
		}
	}
}
