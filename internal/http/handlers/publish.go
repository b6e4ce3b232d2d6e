package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"postty/internal/domain"
	"postty/internal/publisher"
)

type publishRequest struct {
	MediaURL string `json:"media_url"`
	Caption  string `json:"caption"`
}

type publishVideoRequest struct {
	VideoURL        string `json:"video_url"`
	Caption         string `json:"caption"`
	Kind            string `json:"kind"`
	ShareToFeed     bool   `json:"share_to_feed"`
	MaxPollAttempts int    `json:"max_poll_attempts"`
}

// PostsPublish pushes an already generated image to the connected account.
func (a *App) PostsPublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if msg, ok := validateMediaURL(req.MediaURL); !ok {
		a.error(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	result, err := a.Publisher.PublishImage(r.Context(), req.MediaURL, req.Caption)
	a.recordPublish(r.Context(), req.MediaURL, req.Caption, "image", result, err)
	if err != nil {
		a.publishError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"status":             "success",
		"instagram_response": result,
	})
}

// PostsPublishVideo pushes a hosted video as a reel or feed video.
func (a *App) PostsPublishVideo(w http.ResponseWriter, r *http.Request) {
	var req publishVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if msg, ok := validateMediaURL(req.VideoURL); !ok {
		a.error(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	kind := publisher.VideoKindReel
	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case "", "reel":
	case "video":
		kind = publisher.VideoKindVideo
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "kind must be reel or video")
		return
	}

	result, err := a.Publisher.PublishVideo(r.Context(), publisher.VideoPublishRequest{
		VideoURL:        req.VideoURL,
		Caption:         req.Caption,
		Kind:            kind,
		ShareToFeed:     req.ShareToFeed,
		MaxPollAttempts: req.MaxPollAttempts,
	})
	a.recordPublish(r.Context(), req.VideoURL, req.Caption, string(kind), result, err)
	if err != nil {
		a.publishError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"status":             "success",
		"instagram_response": result,
	})
}

// validateMediaURL rejects anything the platform itself would refuse to
// fetch, before a container is ever created.
func validateMediaURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "media_url is required", false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "media_url is not a valid URL", false
	}
	if parsed.Scheme != "https" {
		return "media_url must be publicly reachable over https", false
	}
	return "", true
}

func (a *App) publishError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, publisher.ErrTokenRejected):
		a.error(w, http.StatusUnauthorized, "unauthorized", domain.FaultMessage(err))
	case domain.Classify(err) == domain.FaultTimeout:
		a.error(w, http.StatusGatewayTimeout, "timeout", domain.FaultMessage(err))
	case domain.Classify(err) == domain.FaultValidation:
		a.error(w, http.StatusBadRequest, "bad_request", domain.FaultMessage(err))
	default:
		a.error(w, http.StatusBadGateway, "upstream", domain.FaultMessage(err))
	}
}

func (a *App) recordPublish(ctx context.Context, mediaURL, caption, kind string, result *domain.PublishResult, pubErr error) {
	if a.Repo == nil {
		return
	}
	rec := &domain.PublishRecord{
		ID:        uuid.NewString(),
		MediaURL:  mediaURL,
		Caption:   caption,
		MediaKind: kind,
		Outcome:   domain.PublishSucceeded,
	}
	if pubErr != nil {
		rec.Outcome = domain.PublishFailed
		msg := domain.FaultMessage(pubErr)
		rec.ErrorMessage = &msg
	} else if result != nil {
		rec.MediaID = &result.PublishedMediaID
	}
	if err := a.Repo.RecordPublish(ctx, rec); err != nil {
		a.Logger.Warn().Err(err).Msg("handlers: could not record publish outcome")
	}
}
