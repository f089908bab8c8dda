package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/dishly/dishly/internal/auth"
	"github.com/dishly/dishly/internal/backend"
	"github.com/dishly/dishly/internal/interaction"
)

type fakeBackend struct {
	token     string
	page      int
	post      backend.NewPost
	comment   backend.NewComment
	postID    string
	userID    string
	like      backend.LikeResult
	follow    backend.FollowResult
	err       error
	rawResult json.RawMessage
}

func (f *fakeBackend) Posts(ctx context.Context, token string, page int) (json.RawMessage, error) {
	f.token, f.page = token, page
	return f.rawResult, f.err
}

func (f *fakeBackend) CreatePost(ctx context.Context, token string, post backend.NewPost) (json.RawMessage, error) {
	f.token, f.post = token, post
	return f.rawResult, f.err
}

func (f *fakeBackend) TogglePostLike(ctx context.Context, token, postID string) (backend.LikeResult, error) {
	f.token, f.postID = token, postID
	return f.like, f.err
}

func (f *fakeBackend) Comments(ctx context.Context, token, postID string) (json.RawMessage, error) {
	f.token, f.postID = token, postID
	return f.rawResult, f.err
}

func (f *fakeBackend) AddComment(ctx context.Context, token, postID string, comment backend.NewComment) (json.RawMessage, error) {
	f.token, f.postID, f.comment = token, postID, comment
	return f.rawResult, f.err
}

func (f *fakeBackend) ToggleFollow(ctx context.Context, token, userID string) (backend.FollowResult, error) {
	f.token, f.userID = token, userID
	return f.follow, f.err
}

func testToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newRouter(fb *fakeBackend) http.Handler {
	h := NewHandler(fb)
	a := auth.NewHandler(nil, false)
	r := chi.NewRouter()
	r.With(a.OptionalToken).Get("/api/posts", h.List)
	r.Group(func(r chi.Router) {
		r.Use(a.RequireToken)
		r.Post("/api/posts", h.Create)
		r.Post("/api/posts/{id}/like", h.Like)
		r.Get("/api/posts/{id}/comments", h.Comments)
		r.Post("/api/posts/{id}/comments", h.AddComment)
		r.Post("/api/users/{id}/follow", h.Follow)
	})
	return r
}

func request(method, target, token string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.TokenCookie, Value: token})
	}
	return req
}

func TestList_AnonymousPassesPage(t *testing.T) {
	fb := &fakeBackend{rawResult: json.RawMessage(`[{"id":"p1"}]`)}
	rec := httptest.NewRecorder()

	newRouter(fb).ServeHTTP(rec, request(http.MethodGet, "/api/posts?page=3", "", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fb.page != 3 || fb.token != "" {
		t.Errorf("page = %d token = %q", fb.page, fb.token)
	}
	if rec.Body.String() != `[{"id":"p1"}]` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestList_RejectsBadPage(t *testing.T) {
	for _, page := range []string{"0", "-1", "abc"} {
		rec := httptest.NewRecorder()
		newRouter(&fakeBackend{}).ServeHTTP(rec, request(http.MethodGet, "/api/posts?page="+page, "", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("page=%s: expected 400, got %d", page, rec.Code)
		}
	}
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantPost   backend.NewPost
	}{
		{"valid", `{"caption":"  Sunday ramen  ","mediaKey":"posts/abc.mp4"}`, http.StatusCreated, backend.NewPost{Caption: "Sunday ramen", MediaKey: "posts/abc.mp4"}},
		{"blank caption", `{"caption":"   "}`, http.StatusBadRequest, backend.NewPost{}},
		{"caption too long", `{"caption":"` + strings.Repeat("a", 2201) + `"}`, http.StatusBadRequest, backend.NewPost{}},
		{"invalid json", `{`, http.StatusBadRequest, backend.NewPost{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fb := &fakeBackend{rawResult: json.RawMessage(`{"id":"p9"}`)}
			rec := httptest.NewRecorder()

			newRouter(fb).ServeHTTP(rec, request(http.MethodPost, "/api/posts", testToken(t), strings.NewReader(tc.body)))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if diff := cmp.Diff(tc.wantPost, fb.post); diff != "" {
				t.Errorf("post mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLike_RequiresToken(t *testing.T) {
	fb := &fakeBackend{}
	rec := httptest.NewRecorder()

	newRouter(fb).ServeHTTP(rec, request(http.MethodPost, "/api/posts/p1/like", "", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if fb.postID != "" {
		t.Error("backend must not be called without a token")
	}
}

func TestLike_ReturnsAuthoritativeValue(t *testing.T) {
	fb := &fakeBackend{like: backend.LikeResult{LikesCount: 10, Liked: true}}
	rec := httptest.NewRecorder()

	newRouter(fb).ServeHTTP(rec, request(http.MethodPost, "/api/posts/p1/like", testToken(t), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got backend.LikeResult
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(fb.like, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if fb.postID != "p1" {
		t.Errorf("postID = %q", fb.postID)
	}
}

func TestLike_BackendErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"not found", &interaction.RemoteError{Status: 404, Message: "Post not found"}, http.StatusNotFound, "Post not found"},
		{"server error", &interaction.RemoteError{Status: 500}, http.StatusBadGateway, interaction.GenericFailureMessage},
		{"transport", &interaction.TransportError{Op: "toggle_post_like", Err: context.DeadlineExceeded}, http.StatusBadGateway, interaction.GenericFailureMessage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(&fakeBackend{err: tc.err}).ServeHTTP(rec, request(http.MethodPost, "/api/posts/p1/like", testToken(t), nil))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			var body struct {
				Error string `json:"error"`
			}
			_ = json.NewDecoder(rec.Body).Decode(&body)
			if body.Error != tc.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tc.wantMsg)
			}
		})
	}
}

func TestAddComment(t *testing.T) {
	fb := &fakeBackend{rawResult: json.RawMessage(`{"id":"c1"}`)}
	rec := httptest.NewRecorder()

	newRouter(fb).ServeHTTP(rec, request(http.MethodPost, "/api/posts/p1/comments", testToken(t), strings.NewReader(`{"body":" Looks great! "}`)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if fb.comment.Body != "Looks great!" || fb.postID != "p1" {
		t.Errorf("comment = %+v post = %q", fb.comment, fb.postID)
	}

	rec = httptest.NewRecorder()
	newRouter(fb).ServeHTTP(rec, request(http.MethodPost, "/api/posts/p1/comments", testToken(t), strings.NewReader(`{"body":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", rec.Code)
	}
}

func TestFollow(t *testing.T) {
	fb := &fakeBackend{follow: backend.FollowResult{Following: true, Followers: 42}}
	rec := httptest.NewRecorder()

	newRouter(fb).ServeHTTP(rec, request(http.MethodPost, "/api/users/u7/follow", testToken(t), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fb.userID != "u7" {
		t.Errorf("userID = %q", fb.userID)
	}
	if !strings.Contains(rec.Body.String(), `"followers_count":42`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
