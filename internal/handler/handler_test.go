package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/auth"
	"github.com/sakif/tripsync/internal/handler"
	"github.com/sakif/tripsync/internal/imaging"
	"github.com/sakif/tripsync/internal/model"
	"github.com/sakif/tripsync/internal/service"
)

// ===== MOCKS =====

// MockFiles records the last call and returns canned results.
type MockFiles struct {
	CapturedUpload service.UploadInput
	CapturedEdit   service.EditInput
	CapturedIDs    []string
	ReturnFile     *model.File
	ReturnDownload *imaging.Download
	ReturnErr      error
}

func (m *MockFiles) Upload(_ context.Context, userID, folderID string, in service.UploadInput) (*model.File, error) {
	m.CapturedIDs = []string{userID, folderID}
	m.CapturedUpload = in
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnFile, nil
}

func (m *MockFiles) Edit(_ context.Context, userID, folderID, fileID string, in service.EditInput) (*model.File, error) {
	m.CapturedIDs = []string{userID, folderID, fileID}
	m.CapturedEdit = in
	return m.ReturnFile, m.ReturnErr
}

func (m *MockFiles) Delete(_ context.Context, userID, folderID, fileID string) error {
	m.CapturedIDs = []string{userID, folderID, fileID}
	return m.ReturnErr
}

func (m *MockFiles) Download(_ context.Context, userID, folderID, fileID string) (*imaging.Download, error) {
	m.CapturedIDs = []string{userID, folderID, fileID}
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnDownload, nil
}

// MockSharing records which transition ran and with which arguments.
type MockSharing struct {
	Called    string
	Args      []string
	ReturnErr error
}

func (m *MockSharing) record(name string, args ...string) error {
	m.Called, m.Args = name, args
	return m.ReturnErr
}

func (m *MockSharing) Invite(_ context.Context, inviterID, inviteeName, folderID string) error {
	return m.record("invite", inviterID, inviteeName, folderID)
}

func (m *MockSharing) Accept(_ context.Context, recipientID, senderID, folderID string) error {
	return m.record("accept", recipientID, senderID, folderID)
}

func (m *MockSharing) Decline(_ context.Context, recipientID, senderID, folderID string) error {
	return m.record("decline", recipientID, senderID, folderID)
}

func (m *MockSharing) Cancel(_ context.Context, senderID, recipientID, folderID string) error {
	return m.record("cancel", senderID, recipientID, folderID)
}

func (m *MockSharing) Leave(_ context.Context, userID, folderID string) error {
	return m.record("leave", userID, folderID)
}

type MockNotifications struct {
	DeletedIndex int
	ReturnPage   *service.ActivityCenter
	ReturnErr    error
}

func (m *MockNotifications) ActivityCenter(context.Context, string) (*service.ActivityCenter, error) {
	return m.ReturnPage, m.ReturnErr
}

func (m *MockNotifications) Delete(_ context.Context, _ string, idx int) error {
	m.DeletedIndex = idx
	return m.ReturnErr
}

type MockFolders struct {
	CapturedName string
	CapturedDate time.Time
	CapturedDrop string
	ReturnFolder *model.Folder
	ReturnErr    error
}

func (m *MockFolders) Create(_ context.Context, _ string, name string, tripDate time.Time) (*model.Folder, error) {
	m.CapturedName, m.CapturedDate = name, tripDate
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnFolder, nil
}

func (m *MockFolders) Get(context.Context, string, string) (*service.FolderPage, error) {
	return &service.FolderPage{Folder: m.ReturnFolder}, m.ReturnErr
}

func (m *MockFolders) List(context.Context, string, service.Scope, string) ([]model.Folder, error) {
	return nil, m.ReturnErr
}

func (m *MockFolders) Update(_ context.Context, _, _ string, name string, tripDate time.Time) (*model.Folder, error) {
	m.CapturedName, m.CapturedDate = name, tripDate
	return m.ReturnFolder, m.ReturnErr
}

func (m *MockFolders) Delete(_ context.Context, _, folderID string) error {
	m.CapturedDrop = folderID
	return m.ReturnErr
}

// ===== HELPERS =====

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// signedIn attaches the caller's identity and chi URL params, the two
// things the router and Identify middleware normally provide.
func signedIn(r *http.Request, userID string, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	ctx = auth.WithIdentity(ctx, auth.Identity{UserID: userID})
	return r.WithContext(ctx)
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func multipartRequest(t *testing.T, target string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if image != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="a.jpg"`)
		hdr.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func location(t *testing.T, rr *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rr.Code)
	u, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	return u
}

// ===== FILES =====

func TestFileHandler_HandleUpload(t *testing.T) {
	logger := testLogger()
	params := map[string]string{"folderID": "f1"}

	t.Run("stores the image and answers with its URL", func(t *testing.T) {
		files := &MockFiles{ReturnFile: &model.File{ID: "file1", ImageURL: "https://cdn/x.jpg"}}
		h := handler.NewFileHandler(files, logger)

		req := multipartRequest(t, "/tripFolders/f1/files", []byte("jpeg-bytes"), map[string]string{
			"title":       "Beach",
			"description": "Sunset",
			"tripDate":    "2024-06-02",
		})
		rr := httptest.NewRecorder()
		h.HandleUpload(rr, signedIn(req, "u1", params))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var res handler.UploadResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, handler.UploadResponse{FileURL: "https://cdn/x.jpg", FileID: "file1"}, res)

		assert.Equal(t, []string{"u1", "f1"}, files.CapturedIDs)
		assert.Equal(t, []byte("jpeg-bytes"), files.CapturedUpload.Raw)
		assert.Equal(t, "image/jpeg", files.CapturedUpload.MimeType)
		assert.Equal(t, "Beach", files.CapturedUpload.Title)
		assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), files.CapturedUpload.TripDate)
	})

	t.Run("missing image reaches the service as empty input", func(t *testing.T) {
		files := &MockFiles{ReturnErr: apperror.ValidationFailed("image", "No file uploaded")}
		h := handler.NewFileHandler(files, logger)

		req := multipartRequest(t, "/tripFolders/f1/files", nil, map[string]string{"title": "x"})
		rr := httptest.NewRecorder()
		h.HandleUpload(rr, signedIn(req, "u1", params))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, files.CapturedUpload.Raw)
		var res handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "No file uploaded", res.Message)
	})

	t.Run("bad date is rejected before the service", func(t *testing.T) {
		files := &MockFiles{}
		h := handler.NewFileHandler(files, logger)

		req := multipartRequest(t, "/tripFolders/f1/files", []byte("x"), map[string]string{"tripDate": "June"})
		rr := httptest.NewRecorder()
		h.HandleUpload(rr, signedIn(req, "u1", params))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Nil(t, files.CapturedIDs)
	})

	t.Run("not multipart", func(t *testing.T) {
		h := handler.NewFileHandler(&MockFiles{}, logger)
		req := formRequest(http.MethodPost, "/tripFolders/f1/files", url.Values{"title": {"x"}})
		rr := httptest.NewRecorder()
		h.HandleUpload(rr, signedIn(req, "u1", params))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestFileHandler_ErrorStatus(t *testing.T) {
	logger := testLogger()
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", apperror.ValidationFailed("title", "too long"), http.StatusBadRequest},
		{"forbidden", apperror.Forbidden("members only"), http.StatusForbidden},
		{"not found", apperror.NotFound("file", "x"), http.StatusNotFound},
		{"storage", apperror.IO("Error downloading file", errors.New("bucket gone")), http.StatusBadGateway},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewFileHandler(&MockFiles{ReturnErr: tt.err}, logger)
			req := httptest.NewRequest(http.MethodGet, "/tripFolders/f1/files/x/download", nil)
			rr := httptest.NewRecorder()
			h.HandleDownload(rr, signedIn(req, "u1", map[string]string{"folderID": "f1", "fileID": "x"}))

			assert.Equal(t, tt.status, rr.Code)
			var res handler.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
			assert.NotContains(t, res.Message, "disk on fire")
			assert.NotContains(t, res.Message, "bucket gone")
		})
	}
}

func TestFileHandler_HandleDownload(t *testing.T) {
	files := &MockFiles{ReturnDownload: &imaging.Download{
		Body:        io.NopCloser(strings.NewReader("JPEGDATA")),
		ContentType: "image/jpeg",
		Size:        8,
		Filename:    "Beach.jpg",
	}}
	h := handler.NewFileHandler(files, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/tripFolders/f1/files/x/download", nil)
	rr := httptest.NewRecorder()
	h.HandleDownload(rr, signedIn(req, "u1", map[string]string{"folderID": "f1", "fileID": "x"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Beach.jpg"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "8", rr.Header().Get("Content-Length"))
	assert.Equal(t, "JPEGDATA", rr.Body.String())
	assert.Equal(t, []string{"u1", "f1", "x"}, files.CapturedIDs)
}

func TestFileHandler_HandleEdit(t *testing.T) {
	logger := testLogger()
	params := map[string]string{"folderID": "f1", "fileID": "file1"}

	t.Run("metadata only", func(t *testing.T) {
		files := &MockFiles{ReturnFile: &model.File{ID: "file1"}}
		h := handler.NewFileHandler(files, logger)

		req := formRequest(http.MethodPut, "/tripFolders/f1/files/file1", url.Values{"title": {"New"}})
		rr := httptest.NewRecorder()
		h.HandleEdit(rr, signedIn(req, "u1", params))

		assert.Equal(t, "/tripFolders/f1", location(t, rr).Path)
		assert.Equal(t, "New", files.CapturedEdit.Title)
		assert.Nil(t, files.CapturedEdit.Raw)
	})

	t.Run("with replacement image", func(t *testing.T) {
		files := &MockFiles{ReturnFile: &model.File{ID: "file1"}}
		h := handler.NewFileHandler(files, logger)

		req := multipartRequest(t, "/tripFolders/f1/files/file1", []byte("new-image"), map[string]string{"title": "New"})
		req.Method = http.MethodPut
		rr := httptest.NewRecorder()
		h.HandleEdit(rr, signedIn(req, "u1", params))

		location(t, rr)
		assert.Equal(t, []byte("new-image"), files.CapturedEdit.Raw)
	})

	t.Run("service error shows its message", func(t *testing.T) {
		files := &MockFiles{ReturnErr: apperror.Forbidden("Only the uploader can edit this file")}
		h := handler.NewFileHandler(files, logger)

		req := formRequest(http.MethodPut, "/tripFolders/f1/files/file1", url.Values{"title": {"x"}})
		rr := httptest.NewRecorder()
		h.HandleEdit(rr, signedIn(req, "u1", params))

		loc := location(t, rr)
		assert.Equal(t, "/tripFolders/f1", loc.Path)
		assert.Equal(t, "Only the uploader can edit this file", loc.Query().Get("errorMessage"))
	})

	t.Run("unexpected error shows the generic message", func(t *testing.T) {
		files := &MockFiles{ReturnErr: errors.New("sql: database is locked")}
		h := handler.NewFileHandler(files, logger)

		req := formRequest(http.MethodPut, "/tripFolders/f1/files/file1", url.Values{"title": {"x"}})
		rr := httptest.NewRecorder()
		h.HandleEdit(rr, signedIn(req, "u1", params))

		assert.Equal(t, "Error updating file", location(t, rr).Query().Get("errorMessage"))
	})
}

// ===== ACTIVITY CENTER =====

func TestActivityHandler_Transitions(t *testing.T) {
	params := map[string]string{"tripID": "f1", "userID": "alice"}
	tests := []struct {
		name   string
		call   func(h *handler.ActivityHandler) http.HandlerFunc
		called string
	}{
		{"accept", func(h *handler.ActivityHandler) http.HandlerFunc { return h.HandleAccept }, "accept"},
		{"decline", func(h *handler.ActivityHandler) http.HandlerFunc { return h.HandleDecline }, "decline"},
		{"cancel", func(h *handler.ActivityHandler) http.HandlerFunc { return h.HandleCancel }, "cancel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sharing := &MockSharing{}
			h := handler.NewActivityHandler(&MockNotifications{}, sharing, handler.JSONRenderer{}, testLogger())

			req := httptest.NewRequest(http.MethodPut, "/activityCenter/f1/alice/x", nil)
			rr := httptest.NewRecorder()
			tt.call(h)(rr, signedIn(req, "bob", params))

			assert.Equal(t, "/activityCenter", location(t, rr).String())
			assert.Equal(t, tt.called, sharing.Called)
			// Caller first, then the other party, then the folder.
			assert.Equal(t, []string{"bob", "alice", "f1"}, sharing.Args)
		})
	}
}

func TestActivityHandler_TransitionError(t *testing.T) {
	sharing := &MockSharing{ReturnErr: apperror.NotFoundMessage("Request no longer exists")}
	h := handler.NewActivityHandler(&MockNotifications{}, sharing, handler.JSONRenderer{}, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/activityCenter/f1/alice/acceptIncomingRequest", nil)
	rr := httptest.NewRecorder()
	h.HandleAccept(rr, signedIn(req, "bob", map[string]string{"tripID": "f1", "userID": "alice"}))

	loc := location(t, rr)
	assert.Equal(t, "/activityCenter", loc.Path)
	assert.Equal(t, "Request no longer exists", loc.Query().Get("errorMessage"))
}

func TestActivityHandler_HandleDeleteNotification(t *testing.T) {
	t.Run("valid index", func(t *testing.T) {
		notes := &MockNotifications{}
		h := handler.NewActivityHandler(notes, &MockSharing{}, handler.JSONRenderer{}, testLogger())

		req := httptest.NewRequest(http.MethodPut, "/activityCenter/deleteNotification?index=2", nil)
		rr := httptest.NewRecorder()
		h.HandleDeleteNotification(rr, signedIn(req, "u1", nil))

		assert.Equal(t, "/activityCenter", location(t, rr).String())
		assert.Equal(t, 2, notes.DeletedIndex)
	})

	t.Run("non-numeric index", func(t *testing.T) {
		notes := &MockNotifications{DeletedIndex: -1}
		h := handler.NewActivityHandler(notes, &MockSharing{}, handler.JSONRenderer{}, testLogger())

		req := httptest.NewRequest(http.MethodPut, "/activityCenter/deleteNotification?index=abc", nil)
		rr := httptest.NewRecorder()
		h.HandleDeleteNotification(rr, signedIn(req, "u1", nil))

		assert.Equal(t, "Invalid notification index", location(t, rr).Query().Get("errorMessage"))
		assert.Equal(t, -1, notes.DeletedIndex, "service must not be called")
	})
}

func TestActivityHandler_HandleShow(t *testing.T) {
	notes := &MockNotifications{ReturnPage: &service.ActivityCenter{
		Notifications: []service.NotificationView{{Index: 0, Message: "alice has joined Spain"}},
	}}
	h := handler.NewActivityHandler(notes, &MockSharing{}, handler.JSONRenderer{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/activityCenter?successMessage=done", nil)
	rr := httptest.NewRecorder()
	h.HandleShow(rr, signedIn(req, "u1", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		View           string                 `json:"view"`
		SuccessMessage string                 `json:"successMessage"`
		Data           service.ActivityCenter `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
	assert.Equal(t, "activityCenter/index", page.View)
	assert.Equal(t, "done", page.SuccessMessage)
	require.Len(t, page.Data.Notifications, 1)
	assert.Equal(t, "alice has joined Spain", page.Data.Notifications[0].Message)
}

// ===== FOLDERS =====

func TestFolderHandler_HandleCreate(t *testing.T) {
	t.Run("redirects to the new folder", func(t *testing.T) {
		folders := &MockFolders{ReturnFolder: &model.Folder{ID: "f9"}}
		h := handler.NewFolderHandler(folders, &MockSharing{}, handler.JSONRenderer{}, testLogger())

		req := formRequest(http.MethodPost, "/tripFolders", url.Values{"folderName": {"Spain"}, "tripDate": {"2024-06-01"}})
		rr := httptest.NewRecorder()
		h.HandleCreate(rr, signedIn(req, "u1", nil))

		assert.Equal(t, "/tripFolders/f9", location(t, rr).String())
		assert.Equal(t, "Spain", folders.CapturedName)
		assert.Equal(t, 2024, folders.CapturedDate.Year())
	})

	t.Run("validation message is shown", func(t *testing.T) {
		folders := &MockFolders{ReturnErr: apperror.ValidationFailed("folderName", "Folder name is required")}
		h := handler.NewFolderHandler(folders, &MockSharing{}, handler.JSONRenderer{}, testLogger())

		req := formRequest(http.MethodPost, "/tripFolders", url.Values{"folderName": {""}})
		rr := httptest.NewRecorder()
		h.HandleCreate(rr, signedIn(req, "u1", nil))

		loc := location(t, rr)
		assert.Equal(t, "/tripFolders", loc.Path)
		assert.Equal(t, "Folder name is required", loc.Query().Get("errorMessage"))
	})
}

func TestFolderHandler_HandleInvite(t *testing.T) {
	sharing := &MockSharing{}
	h := handler.NewFolderHandler(&MockFolders{}, sharing, handler.JSONRenderer{}, testLogger())

	req := formRequest(http.MethodPost, "/tripFolders/f1/invite", url.Values{"username": {"bob"}})
	rr := httptest.NewRecorder()
	h.HandleInvite(rr, signedIn(req, "alice", map[string]string{"folderID": "f1"}))

	loc := location(t, rr)
	assert.Equal(t, "/tripFolders/f1", loc.Path)
	assert.Equal(t, "Request sent to bob", loc.Query().Get("successMessage"))
	assert.Equal(t, []string{"alice", "bob", "f1"}, sharing.Args)
}

func TestFolderHandler_HandleLeave(t *testing.T) {
	sharing := &MockSharing{}
	h := handler.NewFolderHandler(&MockFolders{}, sharing, handler.JSONRenderer{}, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/tripFolders/f1/leave", nil)
	rr := httptest.NewRecorder()
	h.HandleLeave(rr, signedIn(req, "bob", map[string]string{"folderID": "f1"}))

	assert.Equal(t, "/tripFolders", location(t, rr).String())
	assert.Equal(t, "leave", sharing.Called)
	assert.Equal(t, []string{"bob", "f1"}, sharing.Args)
}
