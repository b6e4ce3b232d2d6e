package publisher

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"postty/internal/domain"
	"postty/internal/infra"
	"postty/internal/metrics"
)

// API is the slice of the Graph client the state machine drives.
type API interface {
	CreateImageContainer(ctx context.Context, imageURL, caption string) (string, error)
	CreateVideoContainer(ctx context.Context, req VideoContainerRequest) (string, error)
	ContainerStatus(ctx context.Context, containerID string) (ContainerStatus, error)
	Publish(ctx context.Context, containerID string) (string, error)
}

// PublisherOptions wires the state machine. Clock defaults to the real clock;
// tests inject a fake one.
type PublisherOptions struct {
	Client               API
	Clock                clockwork.Clock
	PollInterval         time.Duration
	MaxPollAttempts      int
	MaxVideoPollAttempts int
	MaxPublishAttempts   int
	PublishRetryDelay    time.Duration
	Logger               *infra.Logger
}

// Publisher runs the container publish flow: create once, poll until the
// platform finishes processing, then publish with a bounded retry on the
// not-ready signal. The container id never changes across retries.
type Publisher struct {
	client               API
	clock                clockwork.Clock
	pollInterval         time.Duration
	maxPollAttempts      int
	maxVideoPollAttempts int
	maxPublishAttempts   int
	publishRetryDelay    time.Duration
	logger               *infra.Logger
}

func NewPublisher(opts PublisherOptions) *Publisher {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Publisher{
		client:               opts.Client,
		clock:                clock,
		pollInterval:         opts.PollInterval,
		maxPollAttempts:      opts.MaxPollAttempts,
		maxVideoPollAttempts: opts.MaxVideoPollAttempts,
		maxPublishAttempts:   opts.MaxPublishAttempts,
		publishRetryDelay:    opts.PublishRetryDelay,
		logger:               logger,
	}
}

// VideoPublishRequest describes one video publish. MaxPollAttempts optionally
// raises the poll budget for long videos; it is clamped to the configured
// video ceiling.
type VideoPublishRequest struct {
	VideoURL        string
	Caption         string
	Kind            VideoKind
	ShareToFeed     bool
	MaxPollAttempts int
}

// PublishImage runs the full flow for one image and returns the published
// media id.
func (p *Publisher) PublishImage(ctx context.Context, imageURL, caption string) (*domain.PublishResult, error) {
	containerID, err := p.client.CreateImageContainer(ctx, imageURL, caption)
	if err != nil {
		metrics.PublishOutcomes.WithLabelValues("create_failed").Inc()
		return nil, err
	}
	p.logger.Info().Str("container_id", containerID).Msg("publisher: image container created")

	if err := p.waitForContainer(ctx, containerID, p.maxPollAttempts); err != nil {
		metrics.PublishOutcomes.WithLabelValues("poll_failed").Inc()
		return nil, err
	}
	return p.publishWithRetry(ctx, containerID)
}

// PublishVideo runs the full flow for one reel or feed video.
func (p *Publisher) PublishVideo(ctx context.Context, req VideoPublishRequest) (*domain.PublishResult, error) {
	containerID, err := p.client.CreateVideoContainer(ctx, VideoContainerRequest{
		VideoURL:    req.VideoURL,
		Caption:     req.Caption,
		Kind:        req.Kind,
		ShareToFeed: req.ShareToFeed,
	})
	if err != nil {
		metrics.PublishOutcomes.WithLabelValues("create_failed").Inc()
		return nil, err
	}
	p.logger.Info().Str("container_id", containerID).Str("kind", string(req.Kind)).Msg("publisher: video container created")

	budget := p.maxVideoPollAttempts
	if req.MaxPollAttempts > 0 && req.MaxPollAttempts < budget {
		budget = req.MaxPollAttempts
	}
	if budget < p.maxPollAttempts {
		budget = p.maxPollAttempts
	}

	if err := p.waitForContainer(ctx, containerID, budget); err != nil {
		metrics.PublishOutcomes.WithLabelValues("poll_failed").Inc()
		return nil, err
	}
	return p.publishWithRetry(ctx, containerID)
}

// waitForContainer polls the container status at the configured interval
// until FINISHED, a terminal platform state, or budget exhaustion. A failed
// status fetch consumes an attempt rather than aborting the wait.
func (p *Publisher) waitForContainer(ctx context.Context, containerID string, budget int) error {
	for attempt := 1; attempt <= budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.NewFault(domain.FaultFatal, "publish canceled", err)
		}

		status, err := p.client.ContainerStatus(ctx, containerID)
		switch {
		case err != nil:
			p.logger.Warn().
				Str("container_id", containerID).
				Int("attempt", attempt).
				Err(err).
				Msg("publisher: status check failed")
		case status == StatusFinished:
			return nil
		case status == StatusError:
			return domain.NewFault(domain.FaultFatal, "platform could not process the media", fmt.Errorf("container %s reported ERROR", containerID))
		case status == StatusExpired:
			return domain.NewFault(domain.FaultFatal, "media container expired before it could be published", fmt.Errorf("container %s reported EXPIRED", containerID))
		}

		if attempt < budget {
			p.clock.Sleep(p.pollInterval)
		}
	}
	return domain.NewFault(domain.FaultTimeout, "media was not ready in time", fmt.Errorf("container %s still processing after %d polls", containerID, budget))
}

// publishWithRetry issues publish calls against the same container until
// success, a non-retryable error, or attempt exhaustion. Only the platform's
// not-ready signal is retried.
func (p *Publisher) publishWithRetry(ctx context.Context, containerID string) (*domain.PublishResult, error) {
	for attempt := 1; attempt <= p.maxPublishAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.PublishOutcomes.WithLabelValues("canceled").Inc()
			return nil, domain.NewFault(domain.FaultFatal, "publish canceled", err)
		}

		metrics.PublishAttempts.Inc()
		mediaID, err := p.client.Publish(ctx, containerID)
		if err == nil {
			metrics.PublishOutcomes.WithLabelValues("success").Inc()
			p.logger.Info().
				Str("container_id", containerID).
				Str("media_id", mediaID).
				Int("attempt", attempt).
				Msg("publisher: media published")
			return &domain.PublishResult{PublishedMediaID: mediaID}, nil
		}

		if !domain.IsTransientNotReady(err) {
			metrics.PublishOutcomes.WithLabelValues("failed").Inc()
			return nil, err
		}
		if attempt == p.maxPublishAttempts {
			metrics.PublishOutcomes.WithLabelValues("exhausted").Inc()
			return nil, domain.NewFault(domain.FaultTimeout, "published media id did not become available", fmt.Errorf("container %s not ready after %d publish attempts", containerID, attempt))
		}

		metrics.PublishRetries.Inc()
		p.logger.Warn().
			Str("container_id", containerID).
			Int("attempt", attempt).
			Msg("publisher: media id not available yet, retrying")
		p.clock.Sleep(p.publishRetryDelay)
	}
	// Unreachable while maxPublishAttempts >= 1; config validation enforces it.
	return nil, domain.NewFault(domain.FaultFatal, "publish attempts exhausted", nil)
}
