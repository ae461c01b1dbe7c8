package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadlink/internal/domain"
	"threadlink/internal/preview"
	"threadlink/internal/storage"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type testEnv struct {
	srv  *httptest.Server
	repo *storage.BadgerRepository
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo, err := storage.NewBadgerRepository(t.TempDir(), logger)
	require.NoError(t, err, "Failed to create test BadgerDB repository")

	fetcher := preview.FetcherFunc(func(ctx context.Context, url string) (domain.LinkPreview, error) {
		return domain.LinkPreview{URL: url, Title: "Preview of " + url}, nil
	})

	srv := httptest.NewServer(NewServer(repo, fetcher, nil, logger))
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, repo.Close())
	})

	require.NoError(t, repo.SaveThread(context.Background(), domain.Thread{
		ID:        "t1",
		Content:   domain.Content{Title: "Hello"},
		IsCreator: true,
		Channel: domain.Channel{
			ID:          "ch1",
			Name:        "general",
			Permissions: domain.ChannelPermissions{IsMember: true, IsOwner: true},
		},
		Community: domain.Community{
			ID:          "co1",
			Name:        "Gophers",
			Permissions: domain.CommunityPermissions{IsOwner: true},
		},
	}))
	return &testEnv{srv: srv, repo: repo}
}

// do sends a request as viewer u1 and decodes the reply into out when given.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set(ViewerHeader, "u1")
	return e.send(t, req, out)
}

func (e *testEnv) send(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_GetThread(t *testing.T) {
	env := setupServer(t)

	var v view
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/threads/t1", nil, &v))
	assert.Equal(t, "Hello", v.Thread.Content.Title)
	assert.True(t, v.Permissions.ShowModeration)
	assert.True(t, v.Permissions.CanPin)
	assert.True(t, v.Permissions.CanEdit)
	assert.False(t, v.Edit.Editing)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/threads/missing", nil, nil))
}

func TestServer_CreateThread(t *testing.T) {
	env := setupServer(t)

	var created domain.Thread
	status := env.do(t, http.MethodPost, "/threads", domain.Thread{Content: domain.Content{Title: "New"}}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, created.ID)

	stored, err := env.repo.GetThread(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", stored.Content.Title)
}

func TestServer_Moderation(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	var v view
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/lock", nil, &v))
	assert.True(t, v.Thread.IsLocked)
	require.NotEmpty(t, v.Toasts)
	assert.Equal(t, "Thread locked.", v.Toasts[len(v.Toasts)-1].Message)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/notifications", nil, &v))
	assert.True(t, v.ReceiveNotifications)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/pin", nil, &v))
	assert.True(t, v.Permissions.IsPinned)

	stored, err := env.repo.GetThread(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, stored.IsLocked)
	assert.True(t, stored.ReceiveNotifications)
	assert.True(t, stored.IsPinned())

	// Toasts are dismissable.
	toast := v.Toasts[0].ID
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/threads/t1/toasts/"+toast, nil, &v))
	for _, tv := range v.Toasts {
		assert.NotEqual(t, toast, tv.ID)
	}
}

func TestServer_SignedOutCannotModerate(t *testing.T) {
	env := setupServer(t)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/threads/t1/lock", nil)
	require.NoError(t, err)

	var resp errorResponse
	assert.Equal(t, http.StatusForbidden, env.send(t, req, &resp))
	require.NotNil(t, resp.View)
	assert.False(t, resp.View.Permissions.ShowModeration)

	stored, err := env.repo.GetThread(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, stored.IsLocked)
}

func TestServer_DeleteNeedsConfirmation(t *testing.T) {
	env := setupServer(t)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/threads/t1/delete/confirm", nil, nil))

	var v view
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/delete", nil, &v))
	require.NotNil(t, v.Confirmation)
	assert.Equal(t, "DELETE_DOUBLE_CHECK_MODAL", v.Confirmation.Kind)
	assert.Equal(t, "Are you sure you want to delete this thread?", v.Confirmation.Message)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/threads/t1/delete/confirm", nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/threads/t1", nil, nil))
}

func TestServer_EditWithPreviewAndSave(t *testing.T) {
	env := setupServer(t)

	var v view
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/edit", nil, &v))
	assert.True(t, v.Edit.Editing)
	assert.False(t, v.Permissions.ShowModeration)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/threads/t1/title", titleRequest{Title: "Updated\n"}, &v))
	assert.True(t, v.FocusBody)
	assert.Equal(t, "Hello", v.Edit.Title)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/threads/t1/title", titleRequest{Title: "Updated"}, &v))
	assert.Equal(t, "Updated", v.Edit.Title)

	text := "read https://go.dev "
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/threads/t1/body", bodyRequest{Text: &text}, &v))

	require.Eventually(t, func() bool {
		var got view
		env.do(t, http.MethodGet, "/threads/t1", nil, &got)
		return got.Edit.LinkPreview != nil
	}, timeout, tick)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/save", nil, &v))
	assert.False(t, v.Edit.Editing)
	assert.Equal(t, "Thread saved!", v.Toasts[len(v.Toasts)-1].Message)

	stored, err := env.repo.GetThread(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Updated", stored.Content.Title)
	p := domain.FirstLinkPreview(stored.Attachments)
	require.NotNil(t, p)
	assert.Equal(t, "https://go.dev", p.TrueURL)
}

func TestServer_SaveWithoutTitle(t *testing.T) {
	env := setupServer(t)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/edit", nil, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/threads/t1/title", titleRequest{Title: ""}, nil))

	var resp errorResponse
	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/threads/t1/save", nil, &resp))
	require.NotNil(t, resp.View)
	assert.True(t, resp.View.Edit.Editing)
	assert.Equal(t, "Be sure to save a title for your thread!", resp.View.Toasts[len(resp.View.Toasts)-1].Message)

	stored, err := env.repo.GetThread(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", stored.Content.Title)
}

func TestServer_ImageUpload(t *testing.T) {
	env := setupServer(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/edit", nil, nil))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "cat.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/threads/t1/images", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ViewerHeader, "u1")
	require.Equal(t, http.StatusOK, env.send(t, req, nil))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/save", nil, nil))

	var uploads []uploadView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/threads/t1/uploads", nil, &uploads))
	require.Len(t, uploads, 1)
	assert.Equal(t, "cat.png", uploads[0].Name)
	assert.Equal(t, 4, uploads[0].Size)
}

func TestServer_RemovePreview(t *testing.T) {
	env := setupServer(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/threads/t1/edit", nil, nil))

	text := "example.com "
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/threads/t1/body", bodyRequest{Text: &text}, nil))
	require.Eventually(t, func() bool {
		var got view
		env.do(t, http.MethodGet, "/threads/t1", nil, &got)
		return got.Edit.LinkPreview != nil
	}, timeout, tick)

	var v view
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/threads/t1/preview", nil, &v))
	assert.Nil(t, v.Edit.LinkPreview)

	// The same text again is not re-checked.
	text = "example.com  "
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/threads/t1/body", bodyRequest{Text: &text}, &v))
	assert.False(t, v.Edit.FetchingPreview)
	assert.Nil(t, v.Edit.LinkPreview)
}
