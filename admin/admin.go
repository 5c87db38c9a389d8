package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"blogroll/auth"
	"blogroll/blog"
	"blogroll/comment"
	"blogroll/common"
	"blogroll/models"
	"blogroll/post"
	"blogroll/profile"
	"blogroll/storage"
)

// AdminModule is the moderation surface. It delegates deletes to the owning
// modules so cascades match the self-service paths.
type AdminModule struct {
	db       *gorm.DB
	store    storage.Storage
	log      zerolog.Logger
	blogs    *blog.BlogModule
	posts    *post.PostModule
	comments *comment.CommentModule
	profiles *profile.ProfileModule
}

func NewAdminModule(
	db *gorm.DB,
	store storage.Storage,
	logger zerolog.Logger,
	blogs *blog.BlogModule,
	posts *post.PostModule,
	comments *comment.CommentModule,
	profiles *profile.ProfileModule,
) *AdminModule {
	return &AdminModule{
		db:       db,
		store:    store,
		log:      logger,
		blogs:    blogs,
		posts:    posts,
		comments: comments,
		profiles: profiles,
	}
}

func (a *AdminModule) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	adminGroup := api.Group("/admin", requireAuth, auth.RequireAdmin)
	{
		adminGroup.GET("/blogs", a.listBlogs)
		adminGroup.DELETE("/blogs/:id", a.destroyBlog)
		adminGroup.GET("/posts", a.listPosts)
		adminGroup.DELETE("/posts/:id", a.destroyPost)
		adminGroup.GET("/comments", a.listComments)
		adminGroup.DELETE("/comments/:id", a.destroyComment)
		adminGroup.GET("/users", a.listUsers)
		adminGroup.DELETE("/users/:id", a.destroyUser)
		adminGroup.GET("/uploads", a.listUploads)
		adminGroup.DELETE("/uploads/:folder/:filename", a.deleteUpload)
	}
}

func (a *AdminModule) ListPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := a.db.WithContext(ctx).Order("id").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for i := range posts {
		post.Render(&posts[i])
	}
	return posts, nil
}

func (a *AdminModule) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := a.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteBlog runs the blog cascade for any blog.
func (a *AdminModule) DeleteBlog(ctx context.Context, id uint) error {
	blog, err := a.blogs.Get(ctx, id)
	if err != nil {
		return err
	}
	return a.blogs.Destroy(ctx, blog)
}

// DeleteUser runs the account cascade for any user.
func (a *AdminModule) DeleteUser(ctx context.Context, id uint) error {
	var user models.User
	err := a.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NotFound("User not found.")
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	return a.profiles.DeleteAccount(ctx, &user)
}

func (a *AdminModule) listBlogs(c *gin.Context) {
	blogs, err := a.blogs.List(c.Request.Context())
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, blogs, "Blogs retrieved successfully.")
}

func (a *AdminModule) destroyBlog(c *gin.Context) {
	a.destroy(c, "Blog", a.DeleteBlog)
}

func (a *AdminModule) listPosts(c *gin.Context) {
	posts, err := a.ListPosts(c.Request.Context())
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, posts, "Posts retrieved successfully.")
}

func (a *AdminModule) destroyPost(c *gin.Context) {
	a.destroy(c, "Post", a.posts.AdminDelete)
}

func (a *AdminModule) listComments(c *gin.Context) {
	comments, err := a.comments.ListAll(c.Request.Context())
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, comments, "Comments retrieved successfully.")
}

func (a *AdminModule) destroyComment(c *gin.Context) {
	a.destroy(c, "Comment", a.comments.AdminDelete)
}

func (a *AdminModule) listUsers(c *gin.Context) {
	users, err := a.ListUsers(c.Request.Context())
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, users, "Users retrieved successfully.")
}

func (a *AdminModule) destroyUser(c *gin.Context) {
	a.destroy(c, "User", a.DeleteUser)
}

// destroy is the shared handler for DELETE /admin/<entity>/:id.
func (a *AdminModule) destroy(c *gin.Context, entity string, del func(context.Context, uint) error) {
	id, err := common.ParamID(c, "id", entity+" not found.")
	if err != nil {
		common.SendError(c, err)
		return
	}

	if err := del(c.Request.Context(), id); err != nil {
		common.SendError(c, err)
		return
	}
	a.log.Info().Str("entity", entity).Uint("id", id).Uint("admin_id", auth.CurrentUser(c).ID).Msg("admin delete")
	common.SendResponse(c, http.StatusOK, nil, entity+" deleted successfully.")
}
