package blog

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"blogroll/auth"
	"blogroll/common"
	"blogroll/folder"
	"blogroll/models"
	"blogroll/policy"
	"blogroll/post"
	"blogroll/storage"
)

const (
	blogNotFound = "Blog not found."
	oneBlog      = "User can only have one blog."
	imageField   = "image"
	logoField    = "logo"
)

type BlogModule struct {
	db    *gorm.DB
	store storage.Storage
	log   zerolog.Logger
}

func NewBlogModule(db *gorm.DB, store storage.Storage, logger zerolog.Logger) *BlogModule {
	return &BlogModule{db: db, store: store, log: logger}
}

func (b *BlogModule) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	blogGroup := api.Group("/blogs", requireAuth)
	{
		blogGroup.POST("", common.LimitBody(common.MaxUploadBody), b.create)
		blogGroup.GET("/:id", b.show)
		blogGroup.POST("/:id", common.LimitBody(common.MaxUploadBody), b.update)
		blogGroup.DELETE("/:id", b.destroy)
	}
}

type CreateBlogInput struct {
	Name        string `json:"name" form:"name" binding:"required,max=255"`
	Description string `json:"description" form:"description" binding:"required"`
}

// UpdateBlogInput only touches the fields that were sent.
type UpdateBlogInput struct {
	Name        *string `json:"name" form:"name" binding:"omitnil,min=1,max=255"`
	Description *string `json:"description" form:"description" binding:"omitnil,min=1"`
}

// Artwork carries the optional image and logo uploads of a blog.
type Artwork struct {
	Image *multipart.FileHeader
	Logo  *multipart.FileHeader
}

type checkedFile struct {
	header *multipart.FileHeader
	dir    string
	rule   storage.UploadRule
}

func (a Artwork) files() []checkedFile {
	var files []checkedFile
	if a.Image != nil {
		files = append(files, checkedFile{a.Image, storage.DirBlogImages, storage.ImageRule(imageField)})
	}
	if a.Logo != nil {
		files = append(files, checkedFile{a.Logo, storage.DirBlogLogos, storage.ImageRule(logoField)})
	}
	return files
}

// EnsureCanCreate rejects users that already own a blog. It runs before input
// validation so the conflict wins over field errors.
func (b *BlogModule) EnsureCanCreate(ctx context.Context, actor *models.User) error {
	var count int64
	if err := b.db.WithContext(ctx).Model(&models.Blog{}).Where("owner_id = ?", actor.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("check existing blog: %w", err)
	}
	if count > 0 {
		return oneBlogConflict()
	}
	return nil
}

// Create makes actor's blog. The unique owner index turns a concurrent second
// create into the same conflict.
func (b *BlogModule) Create(ctx context.Context, actor *models.User, in CreateBlogInput, art Artwork) (*models.Blog, error) {
	if err := b.EnsureCanCreate(ctx, actor); err != nil {
		return nil, err
	}

	keys, err := b.uploadArtwork(ctx, art)
	if err != nil {
		return nil, err
	}

	blog := &models.Blog{OwnerID: actor.ID, Name: in.Name, Description: in.Description}
	if key, ok := keys[imageField]; ok {
		blog.Image = &key
	}
	if key, ok := keys[logoField]; ok {
		blog.Logo = &key
	}

	if err := b.db.WithContext(ctx).Create(blog).Error; err != nil {
		b.discard(ctx, keys)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, oneBlogConflict()
		}
		return nil, fmt.Errorf("create blog: %w", err)
	}

	b.log.Info().Uint("blog_id", blog.ID).Uint("owner_id", actor.ID).Msg("blog created")
	return blog, nil
}

// List returns every blog, used by explore and the admin listing.
func (b *BlogModule) List(ctx context.Context) ([]models.Blog, error) {
	var blogs []models.Blog
	if err := b.db.WithContext(ctx).Order("id").Find(&blogs).Error; err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	return blogs, nil
}

func (b *BlogModule) Get(ctx context.Context, id uint) (*models.Blog, error) {
	var blog models.Blog
	err := b.db.WithContext(ctx).First(&blog, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound(blogNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find blog: %w", err)
	}
	return &blog, nil
}

// Update applies a partial update. Replaced artwork is deleted once the new
// file has passed its checks, before it is stored.
func (b *BlogModule) Update(ctx context.Context, actor *models.User, id uint, in UpdateBlogInput, art Artwork) (*models.Blog, error) {
	blog, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanManageBlog(actor, blog) {
		return nil, common.Unauthorized("Unauthorized.")
	}

	detected, err := checkArtwork(art)
	if err != nil {
		return nil, err
	}
	if art.Image != nil {
		storage.DeleteQuietly(ctx, b.store, b.log, deref(blog.Image))
	}
	if art.Logo != nil {
		storage.DeleteQuietly(ctx, b.store, b.log, deref(blog.Logo))
	}
	keys, err := b.storeArtwork(ctx, art, detected)
	if err != nil {
		b.clearArtwork(ctx, blog, art)
		return nil, err
	}

	if in.Name != nil {
		blog.Name = *in.Name
	}
	if in.Description != nil {
		blog.Description = *in.Description
	}
	if key, ok := keys[imageField]; ok {
		blog.Image = &key
	}
	if key, ok := keys[logoField]; ok {
		blog.Logo = &key
	}

	if err := b.db.WithContext(ctx).Save(blog).Error; err != nil {
		b.discard(ctx, keys)
		return nil, fmt.Errorf("update blog: %w", err)
	}
	return blog, nil
}

// Delete removes actor's blog and everything hanging off it.
func (b *BlogModule) Delete(ctx context.Context, actor *models.User, id uint) error {
	blog, err := b.Get(ctx, id)
	if err != nil {
		return err
	}
	if !policy.CanManageBlog(actor, blog) {
		return common.Unauthorized("Unauthorized.")
	}
	return b.Destroy(ctx, blog)
}

// Destroy runs the blog cascade without an ownership check.
func (b *BlogModule) Destroy(ctx context.Context, blog *models.Blog) error {
	var keys []string
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		keys, err = DestroyTx(tx, blog)
		return err
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		storage.DeleteQuietly(ctx, b.store, b.log, key)
	}
	b.log.Info().Uint("blog_id", blog.ID).Int("files", len(keys)).Msg("blog deleted")
	return nil
}

// DestroyTx deletes blog, its posts and comments, its folder memberships and
// its subscriptions inside tx. The returned storage keys belong to the deleted
// rows and are left for the caller to remove after commit.
func DestroyTx(tx *gorm.DB, blog *models.Blog) ([]string, error) {
	keys, err := post.DeleteForBlog(tx, blog.ID)
	if err != nil {
		return nil, err
	}
	if err := folder.DetachEverywhere(tx, blog.ID); err != nil {
		return nil, err
	}
	if err := tx.Where("blog_id = ?", blog.ID).Delete(&models.Subscription{}).Error; err != nil {
		return nil, fmt.Errorf("delete subscriptions: %w", err)
	}
	if err := tx.Delete(&models.Blog{}, blog.ID).Error; err != nil {
		return nil, fmt.Errorf("delete blog: %w", err)
	}

	for _, key := range []string{deref(blog.Image), deref(blog.Logo)} {
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// DestroyOwnedBy runs DestroyTx for the blog of ownerID, if there is one.
func DestroyOwnedBy(tx *gorm.DB, ownerID uint) ([]string, error) {
	var blog models.Blog
	err := tx.Where("owner_id = ?", ownerID).First(&blog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find owned blog: %w", err)
	}
	return DestroyTx(tx, &blog)
}

// uploadArtwork validates every file before storing any of them.
func (b *BlogModule) uploadArtwork(ctx context.Context, art Artwork) (map[string]string, error) {
	detected, err := checkArtwork(art)
	if err != nil {
		return nil, err
	}
	return b.storeArtwork(ctx, art, detected)
}

func checkArtwork(art Artwork) ([]*mimetype.MIME, error) {
	files := art.files()
	detected := make([]*mimetype.MIME, len(files))
	for i, f := range files {
		mime, err := f.rule.Check(f.header)
		if err != nil {
			return nil, err
		}
		detected[i] = mime
	}
	return detected, nil
}

func (b *BlogModule) storeArtwork(ctx context.Context, art Artwork, detected []*mimetype.MIME) (map[string]string, error) {
	files := art.files()
	keys := make(map[string]string, len(files))
	for i, f := range files {
		key, err := storage.Upload(ctx, b.store, f.dir, f.header, detected[i])
		if err != nil {
			b.discard(ctx, keys)
			return nil, err
		}
		keys[f.rule.Field] = key
	}
	return keys, nil
}

// clearArtwork unsets the columns whose files were deleted ahead of a failed
// upload so the row never points at a missing key.
func (b *BlogModule) clearArtwork(ctx context.Context, blog *models.Blog, art Artwork) {
	cleared := map[string]interface{}{}
	if art.Image != nil {
		cleared[imageField] = nil
	}
	if art.Logo != nil {
		cleared[logoField] = nil
	}
	if len(cleared) == 0 {
		return
	}
	if err := b.db.WithContext(ctx).Model(&models.Blog{}).Where("id = ?", blog.ID).Updates(cleared).Error; err != nil {
		b.log.Warn().Err(err).Uint("blog_id", blog.ID).Msg("failed to clear replaced artwork")
	}
}

func (b *BlogModule) discard(ctx context.Context, keys map[string]string) {
	for _, key := range keys {
		storage.DeleteQuietly(ctx, b.store, b.log, key)
	}
}

func oneBlogConflict() error {
	return common.Conflict(oneBlog, map[string][]string{"error": {oneBlog}})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func artwork(c *gin.Context) (Artwork, error) {
	image, err := common.OptionalFile(c, imageField)
	if err != nil {
		return Artwork{}, err
	}
	logo, err := common.OptionalFile(c, logoField)
	if err != nil {
		return Artwork{}, err
	}
	return Artwork{Image: image, Logo: logo}, nil
}

func (b *BlogModule) create(c *gin.Context) {
	actor := auth.CurrentUser(c)
	if err := b.EnsureCanCreate(c.Request.Context(), actor); err != nil {
		common.SendError(c, err)
		return
	}

	var in CreateBlogInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}
	art, err := artwork(c)
	if err != nil {
		common.SendError(c, err)
		return
	}

	blog, err := b.Create(c.Request.Context(), actor, in, art)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusCreated, blog, "Blog created successfully.")
}

func (b *BlogModule) show(c *gin.Context) {
	id, err := common.ParamID(c, "id", blogNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	blog, err := b.Get(c.Request.Context(), id)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, blog, "Blog retrieved successfully.")
}

func (b *BlogModule) update(c *gin.Context) {
	id, err := common.ParamID(c, "id", blogNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	var in UpdateBlogInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}
	art, err := artwork(c)
	if err != nil {
		common.SendError(c, err)
		return
	}

	blog, err := b.Update(c.Request.Context(), auth.CurrentUser(c), id, in, art)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, blog, "Blog updated successfully.")
}

func (b *BlogModule) destroy(c *gin.Context) {
	id, err := common.ParamID(c, "id", blogNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	if err := b.Delete(c.Request.Context(), auth.CurrentUser(c), id); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "Blog deleted successfully.")
}
