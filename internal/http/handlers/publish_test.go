package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postty/internal/domain"
	"postty/internal/publisher"
)

type stubPublisher struct {
	result     *domain.PublishResult
	err        error
	imageCalls int
	videoCalls int
	videoReq   publisher.VideoPublishRequest
}

func (s *stubPublisher) PublishImage(_ context.Context, _, _ string) (*domain.PublishResult, error) {
	s.imageCalls++
	return s.result, s.err
}

func (s *stubPublisher) PublishVideo(_ context.Context, req publisher.VideoPublishRequest) (*domain.PublishResult, error) {
	s.videoCalls++
	s.videoReq = req
	return s.result, s.err
}

func publishJSON(t *testing.T, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestPostsPublishSuccess(t *testing.T) {
	pub := &stubPublisher{result: &domain.PublishResult{PublishedMediaID: "media-42"}}
	app := newTestApp(t, nil, pub)

	rec := httptest.NewRecorder()
	app.PostsPublish(rec, publishJSON(t, "/v1/posts/publish", `{"media_url":"https://cdn/img.jpg","caption":"new drop"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status   string `json:"status"`
		Response struct {
			ID string `json:"id"`
		} `json:"instagram_response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "success" || body.Response.ID != "media-42" {
		t.Fatalf("body = %+v", body)
	}
	if pub.imageCalls != 1 {
		t.Fatalf("publish calls = %d", pub.imageCalls)
	}
}

func TestPostsPublishURLValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing url", body: `{"caption":"c"}`},
		{name: "plain http", body: `{"media_url":"http://cdn/img.jpg"}`},
		{name: "not a url", body: `{"media_url":"::::"}`},
		{name: "malformed json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &stubPublisher{}
			app := newTestApp(t, nil, pub)
			rec := httptest.NewRecorder()
			app.PostsPublish(rec, publishJSON(t, "/v1/posts/publish", tt.body))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if pub.imageCalls != 0 {
				t.Fatalf("publisher called for invalid input")
			}
		})
	}
}

func TestPostsPublishErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "rejected token",
			err:      domain.NewFault(domain.FaultFatal, "platform access token was rejected", fmt.Errorf("%w: code 190", publisher.ErrTokenRejected)),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "poll timeout",
			err:      domain.NewFault(domain.FaultTimeout, "media was not ready in time", nil),
			wantCode: http.StatusGatewayTimeout,
		},
		{
			name:     "upstream failure",
			err:      domain.NewFault(domain.FaultFatal, "platform could not process the media", nil),
			wantCode: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &stubPublisher{err: tt.err}
			app := newTestApp(t, nil, pub)
			rec := httptest.NewRecorder()
			app.PostsPublish(rec, publishJSON(t, "/v1/posts/publish", `{"media_url":"https://cdn/img.jpg"}`))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Message == "" {
				t.Fatalf("error response missing message")
			}
		})
	}
}

func TestPostsPublishVideoKinds(t *testing.T) {
	pub := &stubPublisher{result: &domain.PublishResult{PublishedMediaID: "media-42"}}
	app := newTestApp(t, nil, pub)

	rec := httptest.NewRecorder()
	app.PostsPublishVideo(rec, publishJSON(t, "/v1/posts/publish-video",
		`{"video_url":"https://cdn/v.mp4","caption":"c","kind":"video","max_poll_attempts":30}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if pub.videoReq.Kind != publisher.VideoKindVideo || pub.videoReq.MaxPollAttempts != 30 {
		t.Fatalf("video request = %+v", pub.videoReq)
	}

	rec = httptest.NewRecorder()
	app.PostsPublishVideo(rec, publishJSON(t, "/v1/posts/publish-video",
		`{"video_url":"https://cdn/v.mp4","kind":"story"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown kind", rec.Code)
	}
}

func TestPostsPublishVideoDefaultsToReel(t *testing.T) {
	pub := &stubPublisher{result: &domain.PublishResult{PublishedMediaID: "media-42"}}
	app := newTestApp(t, nil, pub)

	rec := httptest.NewRecorder()
	app.PostsPublishVideo(rec, publishJSON(t, "/v1/posts/publish-video",
		`{"video_url":"https://cdn/v.mp4","share_to_feed":true}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if pub.videoReq.Kind != publisher.VideoKindReel || !pub.videoReq.ShareToFeed {
		t.Fatalf("video request = %+v", pub.videoReq)
	}
}
