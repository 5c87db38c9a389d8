package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"blogroll/auth"
	"blogroll/blog"
	"blogroll/comment"
	"blogroll/common"
	"blogroll/database"
	"blogroll/models"
	"blogroll/post"
	"blogroll/profile"
	"blogroll/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	db     *gorm.DB
	root   string
	store  *storage.Disk
	module *AdminModule
	router *gin.Engine
	tokens *auth.Tokens
	admin  *models.User
	user   *models.User
}

func setup(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), common.GormConfig(logger.Silent))
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, zerolog.Nop()))

	root := t.TempDir()
	store, err := storage.NewDisk(root)
	require.NoError(t, err)
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	log := zerolog.Nop()
	module := NewAdminModule(db, store, log,
		blog.NewBlogModule(db, store, log),
		post.NewPostModule(db, store, log),
		comment.NewCommentModule(db, log),
		profile.NewProfileModule(db, store, log),
	)
	router := common.NewEngine(log)
	module.RegisterRoutes(router.Group("/api/v1"), auth.NewAuthModule(db, tokens, log, 0).RequireAuth)

	f := &fixture{db: db, root: root, store: store, module: module, router: router, tokens: tokens}
	f.admin = createTestUser(t, db, "admin@example.com", true)
	f.user = createTestUser(t, db, "user@example.com", false)
	return f
}

func createTestUser(t *testing.T, db *gorm.DB, email string, admin bool) *models.User {
	user := &models.User{Name: "Test", Email: email, Password: "hashed", IsAdmin: admin}
	require.NoError(t, db.Create(user).Error)
	return user
}

func (f *fixture) do(t *testing.T, user *models.User, method, path string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, nil)
	token, err := f.tokens.Issue(user)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

// putFile stores content under key and backdates it by age.
func (f *fixture) putFile(t *testing.T, key string, age time.Duration) {
	content := []byte("data")
	require.NoError(t, f.store.Put(context.Background(), key, bytes.NewReader(content), int64(len(content)), "text/plain"))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(filepath.Join(f.root, filepath.FromSlash(key)), mtime, mtime))
}

func (f *fixture) stored(t *testing.T, key string) bool {
	ok, err := f.store.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func count(db *gorm.DB, model interface{}) int64 {
	var n int64
	db.Model(model).Count(&n)
	return n
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	f := setup(t)

	for _, path := range []string{"/api/v1/admin/blogs", "/api/v1/admin/users", "/api/v1/admin/uploads"} {
		w, env := f.do(t, f.user, "GET", path)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "Unauthorized.", env.Message)
	}

	w, _ := f.do(t, f.user, "DELETE", fmt.Sprintf("/api/v1/admin/users/%d", f.admin.ID))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int64(2), count(f.db, &models.User{}))
}

func TestListEntities(t *testing.T) {
	f := setup(t)
	b := &models.Blog{OwnerID: f.user.ID, Name: "B", Description: "d"}
	require.NoError(t, f.db.Create(b).Error)
	p := &models.Post{BlogID: b.ID, OwnerID: f.user.ID, Content: "*hi*", Type: "markdown"}
	require.NoError(t, f.db.Create(p).Error)
	require.NoError(t, f.db.Create(&models.Comment{PostID: p.ID, UserID: f.admin.ID, Content: "c"}).Error)

	w, env := f.do(t, f.admin, "GET", "/api/v1/admin/blogs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Blogs retrieved successfully.", env.Message)

	w, env = f.do(t, f.admin, "GET", "/api/v1/admin/posts")
	require.Equal(t, http.StatusOK, w.Code)
	var posts []models.Post
	require.NoError(t, json.Unmarshal(env.Data, &posts))
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].ContentHTML, "<em>hi</em>")

	w, env = f.do(t, f.admin, "GET", "/api/v1/admin/comments")
	require.Equal(t, http.StatusOK, w.Code)
	var comments []models.Comment
	require.NoError(t, json.Unmarshal(env.Data, &comments))
	require.Len(t, comments, 1)
	require.NotNil(t, comments[0].Post)
	require.NotNil(t, comments[0].User)

	w, env = f.do(t, f.admin, "GET", "/api/v1/admin/users")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Users retrieved successfully.", env.Message)
	var users []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &users))
	assert.Len(t, users, 2)
	assert.NotContains(t, users[0], "password")
}

func TestDeleteEntities(t *testing.T) {
	f := setup(t)
	b := &models.Blog{OwnerID: f.user.ID, Name: "B", Description: "d"}
	require.NoError(t, f.db.Create(b).Error)
	p := &models.Post{BlogID: b.ID, OwnerID: f.user.ID, Content: "p", Type: "text"}
	require.NoError(t, f.db.Create(p).Error)
	c := &models.Comment{PostID: p.ID, UserID: f.user.ID, Content: "c"}
	require.NoError(t, f.db.Create(c).Error)

	w, env := f.do(t, f.admin, "DELETE", fmt.Sprintf("/api/v1/admin/comments/%d", c.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Comment deleted successfully.", env.Message)

	w, env = f.do(t, f.admin, "DELETE", fmt.Sprintf("/api/v1/admin/posts/%d", p.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Post deleted successfully.", env.Message)

	w, env = f.do(t, f.admin, "DELETE", fmt.Sprintf("/api/v1/admin/blogs/%d", b.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Blog deleted successfully.", env.Message)

	w, env = f.do(t, f.admin, "DELETE", fmt.Sprintf("/api/v1/admin/users/%d", f.user.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User deleted successfully.", env.Message)

	assert.Equal(t, int64(0), count(f.db, &models.Comment{}))
	assert.Equal(t, int64(0), count(f.db, &models.Post{}))
	assert.Equal(t, int64(0), count(f.db, &models.Blog{}))
	assert.Equal(t, int64(1), count(f.db, &models.User{}))
}

func TestDeleteEntities_NotFound(t *testing.T) {
	f := setup(t)

	cases := map[string]string{
		"/api/v1/admin/blogs/999":    "Blog not found.",
		"/api/v1/admin/posts/999":    "Post not found.",
		"/api/v1/admin/comments/999": "Comment not found.",
		"/api/v1/admin/users/999":    "User not found.",
		"/api/v1/admin/users/abc":    "User not found.",
	}
	for path, msg := range cases {
		w, env := f.do(t, f.admin, "DELETE", path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, msg, env.Message, path)
	}
}

func TestDeleteUser_CascadesBlog(t *testing.T) {
	f := setup(t)
	b := &models.Blog{OwnerID: f.user.ID, Name: "B", Description: "d"}
	require.NoError(t, f.db.Create(b).Error)
	require.NoError(t, f.db.Create(&models.Post{BlogID: b.ID, OwnerID: f.user.ID, Content: "p", Type: "text"}).Error)

	require.NoError(t, f.module.DeleteUser(context.Background(), f.user.ID))
	assert.Equal(t, int64(0), count(f.db, &models.Blog{}))
	assert.Equal(t, int64(0), count(f.db, &models.Post{}))
}

func TestListUploads(t *testing.T) {
	f := setup(t)

	w, env := f.do(t, f.admin, "GET", "/api/v1/admin/uploads")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No uploaded files found.", env.Message)

	f.putFile(t, "uploads/posts/old.png", 3*time.Hour)
	f.putFile(t, "uploads/blog_logos/new.png", time.Hour)
	f.putFile(t, "uploads/profile_pictures/mid.png", 2*time.Hour)
	f.putFile(t, "uploads/posts/.DS_Store", 0)
	f.putFile(t, "uploads/posts/debug.log", 0)
	f.putFile(t, "uploads/posts/partial.tmp", 0)
	f.putFile(t, "elsewhere/ignored.png", 0)

	w, env = f.do(t, f.admin, "GET", "/api/v1/admin/uploads")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Uploaded files retrieved successfully.", env.Message)

	var paths []string
	require.NoError(t, json.Unmarshal(env.Data, &paths))
	assert.Equal(t, []string{
		"uploads/blog_logos/new.png",
		"uploads/profile_pictures/mid.png",
		"uploads/posts/old.png",
	}, paths)
}

func TestListUploads_OnlyHiddenFiles(t *testing.T) {
	f := setup(t)
	f.putFile(t, "uploads/posts/.DS_Store", 0)

	_, err := f.module.ListUploads(context.Background())
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestDeleteUpload(t *testing.T) {
	f := setup(t)
	f.putFile(t, "uploads/posts/photo.png", 0)
	f.putFile(t, "uploads/posts/my file.png", 0)

	w, env := f.do(t, f.admin, "DELETE", "/api/v1/admin/uploads/posts/photo.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "File deleted successfully.", env.Message)
	assert.False(t, f.stored(t, "uploads/posts/photo.png"))

	w, _ = f.do(t, f.admin, "DELETE", "/api/v1/admin/uploads/posts/my%20file.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.stored(t, "uploads/posts/my file.png"))

	w, env = f.do(t, f.admin, "DELETE", "/api/v1/admin/uploads/posts/photo.png")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found.", env.Message)
}

func TestDeleteUpload_Rejects(t *testing.T) {
	f := setup(t)
	f.putFile(t, "uploads/secret.png", 0)
	f.putFile(t, "uploads/posts/%2e%2e", 0)
	f.putFile(t, "other/photo.png", 0)

	for _, path := range []string{
		"/api/v1/admin/uploads/other/photo.png",
		"/api/v1/admin/uploads/posts/..%2Fsecret.png",
		"/api/v1/admin/uploads/posts/%2E%2E",
		"/api/v1/admin/uploads/posts/..%5Csecret.png",
	} {
		w, _ := f.do(t, f.admin, "DELETE", path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	assert.True(t, f.stored(t, "uploads/secret.png"))
	assert.True(t, f.stored(t, "other/photo.png"))

	// decoded exactly once: %252e%252e names the literal file "%2e%2e"
	w, _ := f.do(t, f.admin, "DELETE", "/api/v1/admin/uploads/posts/%252e%252e")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.stored(t, "uploads/posts/%2e%2e"))
}
