package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	"github.com/tendant/simple-feed/pkg/simplefeed/presets"
)

const testSecret = "test-secret"

type testServer struct {
	t      *testing.T
	router http.Handler
	auth   *jwtauth.JWTAuth
}

func setupFeedHandlerTest(t *testing.T, opts ...simplefeed.Option) *testServer {
	t.Helper()

	svc := presets.NewTesting(t, opts...)
	auth := NewTokenAuth(testSecret)

	r := chi.NewRouter()
	r.Use(jwtauth.Verifier(auth))
	r.Mount("/api/posts", NewFeedHandler(svc).Routes())

	return &testServer{t: t, router: r, auth: auth}
}

// sequentialClock advances one second per call so records get distinct times.
func sequentialClock() simplefeed.Option {
	var mu sync.Mutex
	next := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	return simplefeed.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		next = next.Add(time.Second)
		return next
	})
}

func newUser(name string) simplefeed.Actor {
	return simplefeed.Actor{ID: uuid.New(), Name: name}
}

func (s *testServer) do(as *simplefeed.Actor, req *http.Request) *httptest.ResponseRecorder {
	s.t.Helper()
	if as != nil {
		token, err := IssueToken(s.auth, *as)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(as *simplefeed.Actor, method, target string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.do(as, req)
}

func (s *testServer) upload(as *simplefeed.Actor, kind, caption string, media []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(s.t, mw.WriteField("caption", caption))
	if media != nil {
		part, err := mw.CreateFormFile("file", "photo.png")
		require.NoError(s.t, err)
		_, err = part.Write(media)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())

	target := "/api/posts/new"
	if kind != "" {
		target += "?type=" + kind
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(as, req)
}

func (s *testServer) create(as simplefeed.Actor, kind, caption string) *simplefeed.ContentRecord {
	s.t.Helper()
	rec := s.upload(&as, kind, caption, []byte("image-bytes"))
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateContentResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(s.t, "Post created", resp.Message)
	return resp.Post
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestFeedHandler_Scenario(t *testing.T) {
	s := setupFeedHandlerTest(t)
	u1, u2, u3 := newUser("u1"), newUser("u2"), newUser("u3")

	post := s.create(u1, "post", "Hello")

	rec := s.json(&u1, http.MethodGet, "/api/posts/all?type=post&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.JSONEq(t, "null", string(raw["nextCursor"]))
	assert.JSONEq(t, "null", string(raw["nextCursorTime"]))
	assert.JSONEq(t, "false", string(raw["hasMore"]))

	page := decode[PageResponse](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Hello", page.Items[0].Caption)
	require.NotNil(t, page.Items[0].Owner)
	assert.Equal(t, "u1", page.Items[0].Owner.Name)

	like := decode[simplefeed.LikeResult](t, s.json(&u2, http.MethodPost, "/api/posts/like/"+post.ID.String(), nil))
	assert.Equal(t, "Post Liked", like.Message)
	assert.Equal(t, []uuid.UUID{u2.ID}, like.Content.Likes)

	unlike := decode[simplefeed.LikeResult](t, s.json(&u2, http.MethodPost, "/api/posts/like/"+post.ID.String(), nil))
	assert.Equal(t, "Post Unliked", unlike.Message)
	assert.Empty(t, unlike.Content.Likes)

	rec = s.json(&u3, http.MethodDelete, "/api/posts/comment/"+post.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please give comment id", decode[MessageResponse](t, rec).Message)
}

func TestFeedHandler_Authentication(t *testing.T) {
	s := setupFeedHandlerTest(t)

	rec := s.json(nil, http.MethodGet, "/api/posts/all", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/all", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = s.do(nil, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A token signed with another secret is rejected.
	other := NewTokenAuth("other-secret")
	token, err := IssueToken(other, newUser("mallory"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/posts/all", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = s.do(nil, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A token whose subject is not a user id is rejected.
	_, token, err = s.auth.Encode(map[string]interface{}{"sub": "user123"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/posts/all", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = s.do(nil, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFeedHandler_CreateContent(t *testing.T) {
	s := setupFeedHandlerTest(t)
	u := newUser("creator")

	t.Run("reel", func(t *testing.T) {
		reel := s.create(u, "reel", "clip")
		assert.Equal(t, simplefeed.KindReel, reel.Kind)
		assert.NotEmpty(t, reel.Media.URL)
		assert.Equal(t, u.ID, reel.OwnerID)
	})

	t.Run("default kind is post", func(t *testing.T) {
		post := s.create(u, "", "plain")
		assert.Equal(t, simplefeed.KindPost, post.Kind)
	})

	t.Run("missing file", func(t *testing.T) {
		rec := s.upload(&u, "post", "no media", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Please upload a file", decode[MessageResponse](t, rec).Message)
	})

	t.Run("json body without file", func(t *testing.T) {
		rec := s.json(&u, http.MethodPost, "/api/posts/new?type=post", map[string]string{"caption": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Please upload a file", decode[MessageResponse](t, rec).Message)
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := s.upload(&u, "story", "x", []byte("x"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFeedHandler_FeedPagination(t *testing.T) {
	s := setupFeedHandlerTest(t, sequentialClock())
	u := newUser("author")

	var want []uuid.UUID
	for i := 0; i < 7; i++ {
		want = append([]uuid.UUID{s.create(u, "reel", fmt.Sprintf("reel %d", i)).ID}, want...)
	}
	s.create(u, "post", "other partition")

	var got []uuid.UUID
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		target := "/api/posts/all?type=reel&limit=3"
		if cursor != "" {
			target += "&cursor=" + cursor
		}
		rec := s.json(&u, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		page := decode[PageResponse](t, rec)
		for _, item := range page.Items {
			got = append(got, item.ID)
		}
		if !page.HasMore {
			assert.Nil(t, page.NextCursor)
			break
		}
		require.NotNil(t, page.NextCursor)
		require.NotNil(t, page.NextCursorTime)
		assert.Equal(t, page.Items[len(page.Items)-1].CreatedAt, page.NextCursorTime.UTC())
		cursor = *page.NextCursor
	}
	assert.Equal(t, want, got)

	t.Run("timestamp cursor", func(t *testing.T) {
		rec := s.json(&u, http.MethodGet, "/api/posts/all?type=reel&limit=50&cursor=2024-02-01T08:00:04Z", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[PageResponse](t, rec)
		for _, item := range page.Items {
			assert.True(t, item.CreatedAt.Before(time.Date(2024, 2, 1, 8, 0, 4, 0, time.UTC)))
		}
	})

	t.Run("bad parameters", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, s.json(&u, http.MethodGet, "/api/posts/all?cursor=%24%24%24", nil).Code)
		assert.Equal(t, http.StatusBadRequest, s.json(&u, http.MethodGet, "/api/posts/all?limit=ten", nil).Code)
		assert.Equal(t, http.StatusBadRequest, s.json(&u, http.MethodGet, "/api/posts/all?type=story", nil).Code)
	})

	t.Run("empty feed returns an empty list", func(t *testing.T) {
		empty := setupFeedHandlerTest(t)
		rec := empty.json(&u, http.MethodGet, "/api/posts/all", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"items":[]`)
	})
}

func TestFeedHandler_GetContent(t *testing.T) {
	s := setupFeedHandlerTest(t)
	u := newUser("reader")
	post := s.create(u, "post", "hi")

	rec := s.json(&u, http.MethodGet, "/api/posts/"+post.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))
	assert.Equal(t, post.ID, decode[simplefeed.ContentRecord](t, rec).ID)

	rec = s.json(&u, http.MethodGet, "/api/posts/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No Post with this id", decode[MessageResponse](t, rec).Message)

	rec = s.json(&u, http.MethodGet, "/api/posts/not-an-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedHandler_EditCaption(t *testing.T) {
	s := setupFeedHandlerTest(t)
	owner, other := newUser("owner"), newUser("other")
	post := s.create(owner, "post", "before")
	target := "/api/posts/" + post.ID.String()

	rec := s.json(&other, http.MethodPut, target, map[string]string{"caption": "hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You are not owner of this post", decode[MessageResponse](t, rec).Message)

	rec = s.json(&owner, http.MethodPut, target, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(&owner, http.MethodPut, target, map[string]string{"caption": "after"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[simplefeed.ContentRecord](t, rec)
	assert.Equal(t, "after", updated.Caption)
	etag := rec.Header().Get("ETag")

	// A stale version loses.
	req := httptest.NewRequest(http.MethodPut, target, strings.NewReader(`{"caption":"stale"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", `"1"`)
	rec = s.do(&owner, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest(http.MethodPut, target, strings.NewReader(`{"caption":"fresh"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", etag)
	rec = s.do(&owner, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh", decode[simplefeed.ContentRecord](t, rec).Caption)

	req = httptest.NewRequest(http.MethodPut, target, strings.NewReader(`{"caption":"x"}`))
	req.Header.Set("If-Match", "latest")
	rec = s.do(&owner, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedHandler_DeleteContent(t *testing.T) {
	s := setupFeedHandlerTest(t)
	owner, other := newUser("owner"), newUser("other")
	post := s.create(owner, "post", "bye")
	target := "/api/posts/" + post.ID.String()

	rec := s.json(&other, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Unauthorized", decode[MessageResponse](t, rec).Message)

	rec = s.json(&owner, http.MethodDelete, target, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Post Deleted", decode[MessageResponse](t, rec).Message)

	rec = s.json(&owner, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.json(&owner, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedHandler_Comments(t *testing.T) {
	s := setupFeedHandlerTest(t)
	owner, author, stranger := newUser("owner"), newUser("author"), newUser("stranger")
	post := s.create(owner, "post", "discuss")
	commentURL := "/api/posts/comment/" + post.ID.String()

	rec := s.json(&author, http.MethodPost, commentURL, map[string]string{"comment": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please give comment", decode[MessageResponse](t, rec).Message)

	rec = s.json(&author, http.MethodPost, commentURL, map[string]string{"comment": "first"})
	require.Equal(t, http.StatusOK, rec.Code)
	withComment := decode[simplefeed.ContentRecord](t, rec)
	require.Len(t, withComment.Comments, 1)
	comment := withComment.Comments[0]
	assert.Equal(t, "author", comment.AuthorName)
	assert.Equal(t, "first", comment.Body)

	rec = s.json(&stranger, http.MethodDelete, commentURL+"?commentId="+comment.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You are not allowed to delete this comment", decode[MessageResponse](t, rec).Message)

	rec = s.json(&author, http.MethodDelete, commentURL+"?commentId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid comment id", decode[MessageResponse](t, rec).Message)

	rec = s.json(&author, http.MethodDelete, commentURL+"?commentId="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Comment not found", decode[MessageResponse](t, rec).Message)

	rec = s.json(&owner, http.MethodDelete, commentURL+"?commentId="+comment.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[simplefeed.ContentRecord](t, rec).Comments)

	rec = s.json(&owner, http.MethodPost, "/api/posts/comment/"+uuid.NewString(), map[string]string{"comment": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"content not found", &simplefeed.ContentError{Op: "get", Err: simplefeed.ErrContentNotFound}, http.StatusNotFound, "No Post with this id"},
		{"comment not found", &simplefeed.ContentError{Op: "delete_comment", Err: simplefeed.ErrCommentNotFound}, http.StatusNotFound, "Comment not found"},
		{"forbidden", &simplefeed.ForbiddenError{Message: "Unauthorized"}, http.StatusForbidden, "Unauthorized"},
		{"validation", &simplefeed.ValidationError{Field: "comment", Message: "Please give comment"}, http.StatusBadRequest, "Please give comment"},
		{"cursor", fmt.Errorf("%w: bad", simplefeed.ErrInvalidCursor), http.StatusBadRequest, "Invalid cursor"},
		{"conflict", simplefeed.ErrConflict, http.StatusConflict, "Post was modified, reload and try again"},
		{"upload", &simplefeed.MediaError{Op: "upload", Err: errors.New("s3 down")}, http.StatusBadGateway, "Failed to upload media"},
		{"media delete", &simplefeed.MediaError{Op: "delete", Err: errors.New("s3 down")}, http.StatusBadGateway, "Failed to delete media"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, message := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, message)
		})
	}
}

func TestParseVersion(t *testing.T) {
	for input, want := range map[string]int64{`"3"`: 3, `W/"4"`: 4, "5": 5} {
		got, err := parseVersion(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := parseVersion("abc")
	assert.Error(t, err)
}
