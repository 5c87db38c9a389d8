package post

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"blogroll/auth"
	"blogroll/common"
	"blogroll/models"
	"blogroll/policy"
	"blogroll/storage"
)

const (
	postNotFound = "Post not found."
	blogNotFound = "Blog not found."
	mediaField   = "image"
	removedMedia = " [This image has been removed.]"
)

type PostModule struct {
	db    *gorm.DB
	store storage.Storage
	log   zerolog.Logger
}

func NewPostModule(db *gorm.DB, store storage.Storage, logger zerolog.Logger) *PostModule {
	return &PostModule{db: db, store: store, log: logger}
}

func (p *PostModule) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	authed := api.Group("", requireAuth)
	{
		authed.POST("/blogs/:blogId/posts", common.LimitBody(common.MaxUploadBody), p.create)
		authed.GET("/blogs/:blogId/posts", p.index)
		authed.GET("/posts/:id", p.show)
		authed.POST("/posts/:id/update", common.LimitBody(common.MaxUploadBody), p.update)
		authed.DELETE("/posts/:id", p.destroy)
	}
}

// PostInput is shared by create and update. Type is only written when sent.
type PostInput struct {
	Content string  `json:"content" form:"content" binding:"required,max=2000"`
	Type    *string `json:"type" form:"type" binding:"omitnil,max=50"`
}

// Create stores a post on blogID authored by actor. The media file, when
// given, is checked before anything is written.
func (p *PostModule) Create(ctx context.Context, actor *models.User, blogID uint, in PostInput, media *multipart.FileHeader) (*models.Post, error) {
	blog, err := p.findBlog(ctx, blogID)
	if err != nil {
		return nil, err
	}
	if !policy.CanManageBlog(actor, blog) {
		return nil, common.Unauthorized("Unauthorized.")
	}

	post := &models.Post{BlogID: blog.ID, OwnerID: actor.ID, Content: in.Content, Type: defaultType}
	if in.Type != nil && *in.Type != "" {
		post.Type = *in.Type
	}

	if media != nil {
		key, err := p.upload(ctx, media)
		if err != nil {
			return nil, err
		}
		url := storage.PublicURL(key)
		post.ImageURL = &url
	}

	if err := p.db.WithContext(ctx).Create(post).Error; err != nil {
		if post.ImageURL != nil {
			storage.DeleteQuietly(ctx, p.store, p.log, storage.KeyFromURL(*post.ImageURL))
		}
		return nil, fmt.Errorf("create post: %w", err)
	}

	p.log.Info().Uint("post_id", post.ID).Uint("blog_id", blog.ID).Msg("post created")
	Render(post)
	return post, nil
}

// List returns the posts of blogID, oldest first.
func (p *PostModule) List(ctx context.Context, blogID uint) ([]models.Post, error) {
	if _, err := p.findBlog(ctx, blogID); err != nil {
		return nil, err
	}

	var posts []models.Post
	if err := p.db.WithContext(ctx).Where("blog_id = ?", blogID).Order("id").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for i := range posts {
		Render(&posts[i])
	}
	return posts, nil
}

func (p *PostModule) Get(ctx context.Context, id uint) (*models.Post, error) {
	post, err := p.find(ctx, id)
	if err != nil {
		return nil, err
	}
	Render(post)
	return post, nil
}

// Update replaces the content of a post, and its media when a new file is
// sent. The old file is removed once the new one passes its checks.
func (p *PostModule) Update(ctx context.Context, actor *models.User, id uint, in PostInput, media *multipart.FileHeader) (*models.Post, error) {
	post, err := p.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if media != nil {
		detected, err := storage.PostMediaRule(mediaField).Check(media)
		if err != nil {
			return nil, err
		}
		storage.DeleteQuietly(ctx, p.store, p.log, mediaKey(post))
		key, err := storage.Upload(ctx, p.store, storage.DirPosts, media, detected)
		if err != nil {
			return nil, err
		}
		url := storage.PublicURL(key)
		post.ImageURL = &url
	}

	post.Content = in.Content
	if in.Type != nil {
		post.Type = *in.Type
		if post.Type == "" {
			post.Type = defaultType
		}
	}

	if err := p.db.WithContext(ctx).Save(post).Error; err != nil {
		if media != nil {
			storage.DeleteQuietly(ctx, p.store, p.log, storage.KeyFromURL(*post.ImageURL))
		}
		return nil, fmt.Errorf("update post: %w", err)
	}

	Render(post)
	return post, nil
}

// Delete removes a post with its comments. Allowed for the post author and
// the owner of the blog it belongs to.
func (p *PostModule) Delete(ctx context.Context, actor *models.User, id uint) error {
	post, err := p.authorize(ctx, actor, id)
	if err != nil {
		return err
	}
	return p.remove(ctx, post, false)
}

// AdminDelete tombstones the post before removing it.
func (p *PostModule) AdminDelete(ctx context.Context, id uint) error {
	post, err := p.find(ctx, id)
	if err != nil {
		return err
	}
	return p.remove(ctx, post, true)
}

func (p *PostModule) remove(ctx context.Context, post *models.Post, tombstone bool) error {
	key := mediaKey(post)
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tombstone {
			err := tx.Model(post).Updates(map[string]interface{}{
				"content":   post.Content + removedMedia,
				"image_url": "",
			}).Error
			if err != nil {
				return fmt.Errorf("tombstone post: %w", err)
			}
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete post comments: %w", err)
		}
		if err := tx.Delete(&models.Post{}, post.ID).Error; err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	storage.DeleteQuietly(ctx, p.store, p.log, key)
	p.log.Info().Uint("post_id", post.ID).Bool("tombstoned", tombstone).Msg("post deleted")
	return nil
}

// DeleteForBlog removes every post of blogID and their comments inside tx.
// It returns the storage keys of the posts' media for the caller to delete
// after commit.
func DeleteForBlog(tx *gorm.DB, blogID uint) ([]string, error) {
	var posts []models.Post
	if err := tx.Where("blog_id = ?", blogID).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("find blog posts: %w", err)
	}
	if len(posts) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(posts))
	var keys []string
	for i := range posts {
		ids = append(ids, posts[i].ID)
		if key := mediaKey(&posts[i]); key != "" {
			keys = append(keys, key)
		}
	}

	if err := tx.Where("post_id IN ?", ids).Delete(&models.Comment{}).Error; err != nil {
		return nil, fmt.Errorf("delete blog comments: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&models.Post{}).Error; err != nil {
		return nil, fmt.Errorf("delete blog posts: %w", err)
	}
	return keys, nil
}

func mediaKey(post *models.Post) string {
	if post.ImageURL == nil {
		return ""
	}
	return storage.KeyFromURL(*post.ImageURL)
}

func (p *PostModule) upload(ctx context.Context, media *multipart.FileHeader) (string, error) {
	detected, err := storage.PostMediaRule(mediaField).Check(media)
	if err != nil {
		return "", err
	}
	return storage.Upload(ctx, p.store, storage.DirPosts, media, detected)
}

func (p *PostModule) authorize(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	post, err := p.find(ctx, id)
	if err != nil {
		return nil, err
	}

	var blog models.Blog
	err = p.db.WithContext(ctx).First(&blog, post.BlogID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find post blog: %w", err)
	}
	if !policy.CanManagePost(actor, post, &blog) {
		return nil, common.Unauthorized("Unauthorized.")
	}
	return post, nil
}

func (p *PostModule) find(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := p.db.WithContext(ctx).First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound(postNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &post, nil
}

func (p *PostModule) findBlog(ctx context.Context, id uint) (*models.Blog, error) {
	var blog models.Blog
	err := p.db.WithContext(ctx).First(&blog, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound(blogNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find blog: %w", err)
	}
	return &blog, nil
}

func (p *PostModule) create(c *gin.Context) {
	blogID, err := common.ParamID(c, "blogId", blogNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	var in PostInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}
	media, err := common.OptionalFile(c, mediaField)
	if err != nil {
		common.SendError(c, err)
		return
	}

	post, err := p.Create(c.Request.Context(), auth.CurrentUser(c), blogID, in, media)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusCreated, post, "Post created successfully.")
}

func (p *PostModule) index(c *gin.Context) {
	blogID, err := common.ParamID(c, "blogId", blogNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	posts, err := p.List(c.Request.Context(), blogID)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, posts, "Posts retrieved successfully.")
}

func (p *PostModule) show(c *gin.Context) {
	id, err := common.ParamID(c, "id", postNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	post, err := p.Get(c.Request.Context(), id)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, post, "Post retrieved successfully.")
}

func (p *PostModule) update(c *gin.Context) {
	id, err := common.ParamID(c, "id", postNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	var in PostInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}
	media, err := common.OptionalFile(c, mediaField)
	if err != nil {
		common.SendError(c, err)
		return
	}

	post, err := p.Update(c.Request.Context(), auth.CurrentUser(c), id, in, media)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, post, "Post updated successfully.")
}

func (p *PostModule) destroy(c *gin.Context) {
	id, err := common.ParamID(c, "id", postNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	if err := p.Delete(c.Request.Context(), auth.CurrentUser(c), id); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "Post deleted successfully.")
}
