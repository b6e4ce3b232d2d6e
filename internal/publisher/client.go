// Package publisher pushes finished candidates to Instagram through the
// Graph API container flow: create a media container, poll it until the
// platform finishes processing, then publish it to the account feed.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"postty/internal/domain"
	"postty/internal/infra"
)

// ContainerStatus is the processing state the platform reports for a media
// container.
type ContainerStatus string

const (
	StatusInProgress ContainerStatus = "IN_PROGRESS"
	StatusFinished   ContainerStatus = "FINISHED"
	StatusError      ContainerStatus = "ERROR"
	StatusExpired    ContainerStatus = "EXPIRED"
)

// The platform signals "processing finished but the media id is not yet
// visible to the publish endpoint" with this exact error triple. It is the
// only publish error worth retrying.
const (
	codeMediaNotReady    = 9007
	subcodeMediaNotReady = 2207027
	msgMediaNotReady     = "Media ID is not available"
)

// ErrTokenRejected marks a credential failure from the platform. Callers map
// it to an authentication response instead of a generic upstream failure.
var ErrTokenRejected = errors.New("platform access token rejected")

// VideoKind selects the video container type.
type VideoKind string

const (
	VideoKindReel  VideoKind = "reel"
	VideoKindVideo VideoKind = "video"
)

// VideoContainerRequest describes one video container.
type VideoContainerRequest struct {
	VideoURL    string
	Caption     string
	Kind        VideoKind
	ShareToFeed bool
}

// Options configures the Graph API client.
type Options struct {
	AccessToken string
	UserID      string
	BaseURL     string
	HTTPClient  *http.Client
	Logger      *infra.Logger
}

// Client is a minimal Instagram Graph API client covering the container
// publish flow.
type Client struct {
	accessToken string
	userID      string
	baseURL     string
	httpClient  *http.Client
	logger      *infra.Logger
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		accessToken: opts.AccessToken,
		userID:      opts.UserID,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpClient:  httpClient,
		logger:      logger,
	}
}

type containerResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	StatusCode string `json:"status_code"`
	ID         string `json:"id"`
}

type graphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
}

type graphErrorEnvelope struct {
	Error *graphError `json:"error"`
}

// CreateImageContainer creates a feed-image container and returns its id.
func (c *Client) CreateImageContainer(ctx context.Context, imageURL, caption string) (string, error) {
	form := url.Values{}
	form.Set("image_url", imageURL)
	form.Set("caption", caption)

	var out containerResponse
	if err := c.postForm(ctx, fmt.Sprintf("%s/%s/media", c.baseURL, c.userID), form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", domain.NewFault(domain.FaultFatal, "platform returned no container id", nil)
	}
	return out.ID, nil
}

// CreateVideoContainer creates a reel or feed-video container and returns
// its id.
func (c *Client) CreateVideoContainer(ctx context.Context, req VideoContainerRequest) (string, error) {
	form := url.Values{}
	form.Set("video_url", req.VideoURL)
	form.Set("caption", req.Caption)
	switch req.Kind {
	case VideoKindVideo:
		form.Set("media_type", "VIDEO")
	default:
		form.Set("media_type", "REELS")
		if req.ShareToFeed {
			form.Set("share_to_feed", "true")
		}
	}

	var out containerResponse
	if err := c.postForm(ctx, fmt.Sprintf("%s/%s/media", c.baseURL, c.userID), form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", domain.NewFault(domain.FaultFatal, "platform returned no container id", nil)
	}
	return out.ID, nil
}

// ContainerStatus fetches the processing state of a container.
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (ContainerStatus, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", c.baseURL, containerID, url.QueryEscape(c.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", domain.NewFault(domain.FaultFatal, "could not build status request", err)
	}

	var out statusResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return ContainerStatus(out.StatusCode), nil
}

// Publish promotes a finished container to the account feed and returns the
// published media id.
func (c *Client) Publish(ctx context.Context, containerID string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)

	var out containerResponse
	if err := c.postForm(ctx, fmt.Sprintf("%s/%s/media_publish", c.baseURL, c.userID), form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", domain.NewFault(domain.FaultFatal, "platform returned no media id", nil)
	}
	return out.ID, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	form.Set("access_token", c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.NewFault(domain.FaultFatal, "could not build platform request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewFault(domain.FaultFatal, "platform request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewFault(domain.FaultFatal, "could not read platform response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classifyError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewFault(domain.FaultFatal, "could not decode platform response", err)
	}
	return nil
}

// classifyError reduces a Graph API error body to a fault kind. The
// not-ready triple maps to the retryable kind; credential problems and
// everything else are fatal.
func (c *Client) classifyError(status int, body []byte) error {
	var envelope graphErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		ge := envelope.Error
		raw := fmt.Errorf("graph api %d: %s (code=%d subcode=%d)", status, ge.Message, ge.Code, ge.ErrorSubcode)
		if ge.Code == codeMediaNotReady || ge.ErrorSubcode == subcodeMediaNotReady || strings.Contains(ge.Message, msgMediaNotReady) {
			return domain.NewFault(domain.FaultTransientNotReady, "published media id is not available yet", raw)
		}
		if ge.Code == 190 || status == http.StatusUnauthorized {
			return domain.NewFault(domain.FaultFatal, "platform access token was rejected", fmt.Errorf("%w: %v", ErrTokenRejected, raw))
		}
		return domain.NewFault(domain.FaultFatal, ge.Message, raw)
	}
	return domain.NewFault(domain.FaultFatal, "platform request failed", fmt.Errorf("graph api %d: %s", status, strings.TrimSpace(string(body))))
}
