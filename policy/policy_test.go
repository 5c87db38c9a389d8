package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"blogroll/models"
)

var (
	owner    = &models.User{ID: 1}
	author   = &models.User{ID: 2}
	stranger = &models.User{ID: 3}
	admin    = &models.User{ID: 4, IsAdmin: true}
)

func TestCanManageBlog(t *testing.T) {
	blog := &models.Blog{ID: 10, OwnerID: owner.ID}

	assert.True(t, CanManageBlog(owner, blog))
	assert.False(t, CanManageBlog(stranger, blog))
	assert.False(t, CanManageBlog(nil, blog))
	assert.False(t, CanManageBlog(admin, blog))
}

func TestCanManagePost(t *testing.T) {
	blog := &models.Blog{ID: 10, OwnerID: owner.ID}
	post := &models.Post{ID: 20, BlogID: blog.ID, OwnerID: author.ID}

	assert.True(t, CanManagePost(author, post, blog))
	assert.True(t, CanManagePost(owner, post, blog))
	assert.False(t, CanManagePost(stranger, post, blog))
	assert.False(t, CanManagePost(nil, post, blog))
}

func TestCommentVisibility(t *testing.T) {
	post := &models.Post{ID: 20, OwnerID: owner.ID}
	hidden := &models.Comment{ID: 30, PostID: post.ID, UserID: author.ID, IsVisible: false}
	shown := &models.Comment{ID: 31, PostID: post.ID, UserID: author.ID, IsVisible: true}

	tests := []struct {
		name    string
		viewer  *models.User
		comment *models.Comment
		want    bool
	}{
		{"anonymous sees visible", nil, shown, true},
		{"anonymous misses hidden", nil, hidden, false},
		{"stranger misses hidden", stranger, hidden, false},
		{"author sees own hidden", author, hidden, true},
		{"post owner sees hidden", owner, hidden, true},
		{"admin gets no special read access", admin, hidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CommentVisibleTo(tt.viewer, tt.comment, post))
		})
	}
}

func TestCanModerateComment_MatchesReadFilter(t *testing.T) {
	post := &models.Post{ID: 20, OwnerID: owner.ID}
	hidden := &models.Comment{ID: 30, PostID: post.ID, UserID: author.ID, IsVisible: false}

	for _, u := range []*models.User{nil, owner, author, stranger, admin} {
		assert.Equal(t, CanModerateComment(u, hidden, post), CommentVisibleTo(u, hidden, post))
	}
}

func TestCanEditComment(t *testing.T) {
	comment := &models.Comment{ID: 30, UserID: author.ID}

	assert.True(t, CanEditComment(author, comment))
	assert.False(t, CanEditComment(owner, comment))
	assert.False(t, CanEditComment(nil, comment))
}

func TestCanManageFolder(t *testing.T) {
	folder := &models.Folder{ID: 5, UserID: owner.ID}

	assert.True(t, CanManageFolder(owner, folder))
	assert.False(t, CanManageFolder(stranger, folder))
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin(admin))
	assert.False(t, IsAdmin(owner))
	assert.False(t, IsAdmin(nil))
}
