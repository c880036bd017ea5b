package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glenn-app/glenn-backend/internal/auth"
	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/metrics"
	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/glenn-app/glenn-backend/internal/service"
	"github.com/glenn-app/glenn-backend/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	callerID    = "11111111-1111-1111-1111-111111111111"
	callerToken = "token-for-caller"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

type tokenVerifier map[string]string

func (v tokenVerifier) Verify(_ context.Context, token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", auth.ErrInvalidToken
}

type registrarFunc func(ctx context.Context, callerID string, req model.ParticipateRequest) (*model.Registration, error)

func (f registrarFunc) Register(ctx context.Context, callerID string, req model.ParticipateRequest) (*model.Registration, error) {
	return f(ctx, callerID, req)
}

type followerFunc func(ctx context.Context, callerID string, req model.FollowRequest) (*model.FollowResult, error)

func (f followerFunc) Follow(ctx context.Context, callerID string, req model.FollowRequest) (*model.FollowResult, error) {
	return f(ctx, callerID, req)
}

type listerFunc func(ctx context.Context, userID string, f model.NotificationFilter) (*model.NotificationPage, error)

func (f listerFunc) List(ctx context.Context, userID string, filter model.NotificationFilter) (*model.NotificationPage, error) {
	return f(ctx, userID, filter)
}

type uploaderFake struct {
	gotUser   string
	gotFolder string
	gotName   string
	gotBody   string
	err       error
	usage     upload.Usage
}

func (u *uploaderFake) Upload(_ context.Context, userID, folder string, f *upload.File) (*upload.Result, error) {
	u.gotUser, u.gotFolder, u.gotName = userID, folder, f.Name
	b, _ := io.ReadAll(f.Body)
	u.gotBody = string(b)
	if u.err != nil {
		return nil, u.err
	}
	return &upload.Result{URL: "https://cdn/x.png", FileID: "f-1", Name: "x.png", Size: int64(len(b)), FilePath: "/avatars/x.png"}, nil
}

func (u *uploaderFake) Usage(_ context.Context, userID string) (upload.Usage, error) {
	u.gotUser = userID
	return u.usage, u.err
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

type testDeps struct {
	registrar Registrar
	follower  Follower
	lister    NotificationLister
	uploader  Uploader
	metrics   *metrics.Metrics
}

func newTestRouter(d testDeps) http.Handler {
	log := logger.Nop()
	if d.registrar == nil {
		d.registrar = registrarFunc(func(context.Context, string, model.ParticipateRequest) (*model.Registration, error) {
			return nil, errors.New("unexpected call")
		})
	}
	if d.follower == nil {
		d.follower = followerFunc(func(context.Context, string, model.FollowRequest) (*model.FollowResult, error) {
			return nil, errors.New("unexpected call")
		})
	}
	if d.lister == nil {
		d.lister = listerFunc(func(context.Context, string, model.NotificationFilter) (*model.NotificationPage, error) {
			return nil, errors.New("unexpected call")
		})
	}
	if d.uploader == nil {
		d.uploader = &uploaderFake{}
	}
	return NewRouter(RouterDeps{
		Tournaments:    NewTournamentHandler(d.registrar, log),
		Social:         NewSocialHandler(d.follower, log),
		Notifications:  NewNotificationHandler(d.lister, log),
		Uploads:        NewUploadHandler(d.uploader, 1<<20, log),
		Verifier:       tokenVerifier{callerToken: callerID},
		AllowedOrigins: []string{"https://glenn.gg"},
		Log:            log,
		Metrics:        d.metrics,
	})
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+callerToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const tournamentUUID = "22222222-2222-2222-2222-222222222222"

const participateBody = `{"amount":100,"user_id":"` + callerID + `","tournament_id":"` + tournamentUUID + `","participant_id":"` + callerID + `","team_members":{}}`

// ─── Tests ────────────────────────────────────────────────────────────────────

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(testDeps{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Glenn Backend API is running", body["message"])
	_, err := time.Parse(time.RFC3339, body["timestamp"])
	assert.NoError(t, err)
}

func TestAuthenticationRequired(t *testing.T) {
	h := newTestRouter(testDeps{})
	for _, header := range []string{"", "Bearer wrong", "Basic abc"} {
		req := httptest.NewRequest(http.MethodPost, "/api/participate", strings.NewReader(participateBody))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		body := decodeBody[model.ErrorResponse](t, rec)
		assert.Equal(t, "Unauthorized", body.Error)
		assert.Equal(t, "Invalid or missing authentication token", body.Message)
	}
}

func TestParticipateSuccess(t *testing.T) {
	var gotCaller string
	var gotReq model.ParticipateRequest
	h := newTestRouter(testDeps{registrar: registrarFunc(func(_ context.Context, caller string, req model.ParticipateRequest) (*model.Registration, error) {
		gotCaller, gotReq = caller, req
		return &model.Registration{ParticipantID: callerID, TournamentID: tournamentUUID, SlotNumber: 4, SlotsRemaining: 6, NewWalletBalance: 400, FeePaid: 100}, nil
	})})

	rec := do(t, h, http.MethodPost, "/api/participate", strings.NewReader(participateBody), "application/json")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, callerID, gotCaller)
	assert.Equal(t, int64(100), gotReq.Amount)
	assert.Equal(t, tournamentUUID, gotReq.TournamentID)

	var body struct {
		Success bool               `json:"success"`
		Message string             `json:"message"`
		Data    model.Registration `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Successfully registered for tournament", body.Message)
	assert.Equal(t, 4, body.Data.SlotNumber)
	assert.Equal(t, 6, body.Data.SlotsRemaining)
	assert.Equal(t, int64(400), body.Data.NewWalletBalance)
}

func TestParticipateInvalidBody(t *testing.T) {
	h := newTestRouter(testDeps{})
	for _, body := range []string{`{`, `[1]`, ``} {
		rec := do(t, h, http.MethodPost, "/api/participate", strings.NewReader(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Invalid request", decodeBody[model.ErrorResponse](t, rec).Error)
	}
}

func TestParticipateIgnoresExtraFields(t *testing.T) {
	var gotReq model.ParticipateRequest
	h := newTestRouter(testDeps{registrar: registrarFunc(func(_ context.Context, _ string, req model.ParticipateRequest) (*model.Registration, error) {
		gotReq = req
		return &model.Registration{TournamentID: req.TournamentID}, nil
	})})

	body := `{"amount":100,"user_id":"` + callerID + `","tournament_id":"` + tournamentUUID +
		`","participant_id":"` + callerID + `","team_members":{},"tournament_name":"Friday Night Cup"}`
	rec := do(t, h, http.MethodPost, "/api/participate", strings.NewReader(body), "application/json")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, tournamentUUID, gotReq.TournamentID)
}

func TestParticipateErrorMapping(t *testing.T) {
	reject := func(kind error, msg string) error { return &service.RejectError{Kind: kind, Message: msg} }

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantTitle  string
		wantMsg    string
	}{
		{"invalid request", reject(service.ErrInvalidRequest, "tournament_id is required"), 400, "Invalid request", "tournament_id is required"},
		{"identity mismatch", service.ErrIdentityMismatch, 403, "Forbidden", "User ID mismatch with authenticated user"},
		{"tournament missing", reject(service.ErrTournamentNotFound, "the specified tournament does not exist"), 404, "Tournament not found", "the specified tournament does not exist"},
		{"wallet missing", reject(service.ErrWalletNotFound, "user wallet does not exist"), 404, "Wallet not found", "user wallet does not exist"},
		{"amount", reject(service.ErrInvalidAmount, "entry fee should be 100"), 400, "Invalid amount", "entry fee should be 100"},
		{"started", reject(service.ErrTournamentStarted, "x"), 400, "Tournament already started", "x"},
		{"slots", reject(service.ErrInsufficientSlots, "not enough slots available. Required: 2, Available: 1"), 400, "Insufficient slots", "not enough slots available. Required: 2, Available: 1"},
		{"already registered", reject(service.ErrAlreadyRegistered, "x"), 400, "Already registered", "x"},
		{"balance", reject(service.ErrInsufficientBalance, "x"), 400, "Insufficient balance", "x"},
		{"step failure", &service.StepError{Step: service.StateDebited, Err: errors.New("db down")}, 500, "Registration failed", "An unexpected error occurred, please try again"},
		{"unexpected", errors.New("boom"), 500, "Internal server error", "An unexpected error occurred, please try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(testDeps{registrar: registrarFunc(func(context.Context, string, model.ParticipateRequest) (*model.Registration, error) {
				return nil, tt.err
			})})

			rec := do(t, h, http.MethodPost, "/api/participate", strings.NewReader(participateBody), "application/json")

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody[model.ErrorResponse](t, rec)
			assert.Equal(t, tt.wantTitle, body.Error)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}

func TestFollow(t *testing.T) {
	h := newTestRouter(testDeps{follower: followerFunc(func(_ context.Context, caller string, req model.FollowRequest) (*model.FollowResult, error) {
		assert.Equal(t, callerID, caller)
		return &model.FollowResult{FollowID: "f-1", FollowerID: req.UserID, FollowingID: req.FolloweeID, FollowingUsername: "ace"}, nil
	})})

	body := `{"user_id":"` + callerID + `","followee_id":"22222222-2222-2222-2222-222222222222"}`
	rec := do(t, h, http.MethodPost, "/api/follow", strings.NewReader(body), "application/json")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[model.SuccessResponse](t, rec)
	assert.Equal(t, "You are now following ace", resp.Message)
}

func TestFollowRejections(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{&service.RejectError{Kind: service.ErrSelfFollow, Message: "you cannot follow yourself"}, 400},
		{&service.RejectError{Kind: service.ErrAlreadyFollowing, Message: "x"}, 400},
		{&service.RejectError{Kind: service.ErrUserNotFound, Message: "user to follow does not exist"}, 404},
		{service.ErrIdentityMismatch, 403},
	}
	for _, tt := range tests {
		h := newTestRouter(testDeps{follower: followerFunc(func(context.Context, string, model.FollowRequest) (*model.FollowResult, error) {
			return nil, tt.err
		})})
		rec := do(t, h, http.MethodPost, "/api/follow", strings.NewReader(`{"user_id":"a","followee_id":"b"}`), "application/json")
		assert.Equal(t, tt.wantStatus, rec.Code, tt.err.Error())
	}
}

func TestNotificationsQuery(t *testing.T) {
	var got model.NotificationFilter
	h := newTestRouter(testDeps{lister: listerFunc(func(_ context.Context, userID string, f model.NotificationFilter) (*model.NotificationPage, error) {
		assert.Equal(t, callerID, userID)
		got = f
		return &model.NotificationPage{Notifications: []model.Notification{}, Limit: f.Limit, Offset: f.Offset}, nil
	})})

	rec := do(t, h, http.MethodGet, "/api/notifications?limit=10&offset=20&unread_only=true&type=new_follower", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.NotificationFilter{Limit: 10, Offset: 20, UnreadOnly: true, Type: "new_follower"}, got)
	assert.Contains(t, rec.Body.String(), `"notifications":[]`)

	for _, q := range []string{"limit=abc", "offset=x", "unread_only=maybe"} {
		rec := do(t, h, http.MethodGet, "/api/notifications?"+q, nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadSuccess(t *testing.T) {
	fake := &uploaderFake{}
	h := newTestRouter(testDeps{uploader: fake})

	body, ct := multipartBody(t, map[string]string{"folder": "avatars", "userId": callerID}, "me.png", "png-bytes")
	rec := do(t, h, http.MethodPost, "/api/upload/imagekit", body, ct)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, callerID, fake.gotUser)
	assert.Equal(t, "avatars", fake.gotFolder)
	assert.Equal(t, "me.png", fake.gotName)
	assert.Equal(t, "png-bytes", fake.gotBody)

	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "https://cdn/x.png", resp["url"])
	assert.Equal(t, "f-1", resp["fileId"])
	assert.Equal(t, "/avatars/x.png", resp["filePath"])
}

func TestUploadDefaultsToCaller(t *testing.T) {
	fake := &uploaderFake{}
	h := newTestRouter(testDeps{uploader: fake})

	body, ct := multipartBody(t, nil, "me.png", "x")
	rec := do(t, h, http.MethodPost, "/api/upload/imagekit", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, callerID, fake.gotUser)
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		fields     map[string]string
		fileName   string
		wantStatus int
		wantError  string
	}{
		{"no file", nil, nil, "", http.StatusBadRequest, "No file provided"},
		{"other account", nil, map[string]string{"userId": "someone-else"}, "a.png", http.StatusForbidden, "Forbidden"},
		{"rate limited", &upload.LimitError{Count: 5, Max: 5, Window: "minute"}, nil, "a.png", http.StatusTooManyRequests,
			"Rate limit exceeded: 5 uploads in last minute. Max is 5/minute."},
		{"upstream", &upload.UpstreamError{StatusCode: http.StatusBadGateway, Body: "gateway down"}, nil, "a.png", http.StatusBadGateway, "Upload failed"},
		{"not configured", upload.ErrProviderNotConfigured, nil, "a.png", http.StatusInternalServerError, "Server configuration error"},
		{"too large", upload.ErrFileTooLarge, nil, "a.png", http.StatusRequestEntityTooLarge, "File too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(testDeps{uploader: &uploaderFake{err: tt.err}})
			body, ct := multipartBody(t, tt.fields, tt.fileName, "data")
			rec := do(t, h, http.MethodPost, "/api/upload/imagekit", body, ct)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeBody[model.ErrorResponse](t, rec).Error)
		})
	}
}

func TestUploadUpstreamDetails(t *testing.T) {
	h := newTestRouter(testDeps{uploader: &uploaderFake{err: &upload.UpstreamError{StatusCode: 400, Body: "bad file"}}})
	body, ct := multipartBody(t, nil, "a.png", "data")
	rec := do(t, h, http.MethodPost, "/api/upload/imagekit", body, ct)

	assert.Equal(t, "bad file", decodeBody[model.ErrorResponse](t, rec).Details)
}

func TestUploadUsage(t *testing.T) {
	fake := &uploaderFake{usage: upload.Usage{UserID: callerID, LastMinute: 2, MaxPerMinute: 5, RemainingMinute: 3}}
	h := newTestRouter(testDeps{uploader: fake})

	rec := do(t, h, http.MethodGet, "/api/upload/imagekit?userId="+callerID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decodeBody[upload.Usage](t, rec)
	assert.Equal(t, 3, usage.RemainingMinute)

	rec = do(t, h, http.MethodGet, "/api/upload/imagekit", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "userId parameter required", decodeBody[model.ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/upload/imagekit?userId=other", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(testDeps{})

	req := httptest.NewRequest(http.MethodOptions, "/api/participate", nil)
	req.Header.Set("Origin", "https://glenn.gg")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://glenn.gg", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRecordRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := newTestRouter(testDeps{metrics: m})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `glenn_http_requests_total{method="GET",route="/api/health",status="200"} 1`)
}
