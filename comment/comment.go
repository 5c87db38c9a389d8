package comment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"blogroll/auth"
	"blogroll/common"
	"blogroll/models"
	"blogroll/policy"
)

const (
	commentNotFound = "Comment not found."
	postNotFound    = "Post not found."
)

type CommentModule struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewCommentModule(db *gorm.DB, logger zerolog.Logger) *CommentModule {
	return &CommentModule{db: db, log: logger}
}

func (m *CommentModule) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	authed := api.Group("", requireAuth)
	{
		authed.POST("/posts/:postId/comments", m.store)
		authed.GET("/posts/:postId/comments", m.index)
		authed.POST("/comments/:id/update", m.update)
		authed.DELETE("/comments/:id", m.destroy)
		authed.PUT("/comments/:id/toggle", m.toggle)
	}
}

type CommentInput struct {
	Content string `json:"content" form:"content" binding:"required,max=2000"`
}

// Create adds a visible comment by actor on postID.
func (m *CommentModule) Create(ctx context.Context, actor *models.User, postID uint, in CommentInput) (*models.Comment, error) {
	if _, err := m.findPost(ctx, postID); err != nil {
		return nil, err
	}

	comment := &models.Comment{PostID: postID, UserID: actor.ID, Content: in.Content, IsVisible: true}
	if err := m.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

// List returns the comments of postID that viewer may see: visible ones plus
// hidden ones viewer wrote or moderates as post owner.
func (m *CommentModule) List(ctx context.Context, viewer *models.User, postID uint) ([]models.Comment, error) {
	post, err := m.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	var all []models.Comment
	if err := m.db.WithContext(ctx).Where("post_id = ?", postID).Order("id").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	visible := make([]models.Comment, 0, len(all))
	for i := range all {
		if policy.CommentVisibleTo(viewer, &all[i], post) {
			visible = append(visible, all[i])
		}
	}
	return visible, nil
}

// Toggle flips the visibility of a comment. Allowed for its author and the
// owner of the post.
func (m *CommentModule) Toggle(ctx context.Context, actor *models.User, id uint) (*models.Comment, error) {
	comment, post, err := m.findWithPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanModerateComment(actor, comment, post) {
		return nil, common.Unauthorized("Unauthorized to toggle comment visibility.")
	}

	comment.IsVisible = !comment.IsVisible
	if err := m.db.WithContext(ctx).Model(comment).Update("is_visible", comment.IsVisible).Error; err != nil {
		return nil, fmt.Errorf("toggle comment: %w", err)
	}
	m.log.Info().Uint("comment_id", comment.ID).Bool("visible", comment.IsVisible).Msg("comment visibility toggled")
	return comment, nil
}

// Update rewrites the content of actor's own comment.
func (m *CommentModule) Update(ctx context.Context, actor *models.User, id uint, in CommentInput) (*models.Comment, error) {
	comment, err := m.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanEditComment(actor, comment) {
		return nil, common.Unauthorized("Unauthorized.")
	}

	comment.Content = in.Content
	if err := m.db.WithContext(ctx).Model(comment).Update("content", in.Content).Error; err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return comment, nil
}

func (m *CommentModule) Delete(ctx context.Context, actor *models.User, id uint) error {
	comment, post, err := m.findWithPost(ctx, id)
	if err != nil {
		return err
	}
	if !policy.CanModerateComment(actor, comment, post) {
		return common.Unauthorized("Unauthorized.")
	}
	return m.remove(ctx, comment.ID)
}

// AdminDelete removes any comment.
func (m *CommentModule) AdminDelete(ctx context.Context, id uint) error {
	if _, err := m.find(ctx, id); err != nil {
		return err
	}
	return m.remove(ctx, id)
}

// ListAll returns every comment with its post and author, for moderation.
func (m *CommentModule) ListAll(ctx context.Context) ([]models.Comment, error) {
	var comments []models.Comment
	err := m.db.WithContext(ctx).
		Preload("Post").
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("id").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("list all comments: %w", err)
	}
	return comments, nil
}

// DeleteForUser drops every comment written by userID.
func DeleteForUser(tx *gorm.DB, userID uint) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.Comment{}).Error; err != nil {
		return fmt.Errorf("delete user comments: %w", err)
	}
	return nil
}

func (m *CommentModule) remove(ctx context.Context, id uint) error {
	if err := m.db.WithContext(ctx).Delete(&models.Comment{}, id).Error; err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	m.log.Info().Uint("comment_id", id).Msg("comment deleted")
	return nil
}

func (m *CommentModule) find(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	err := m.db.WithContext(ctx).First(&comment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound(commentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find comment: %w", err)
	}
	return &comment, nil
}

// findWithPost loads the comment and the post whose owner moderates it. A
// missing post leaves only the author able to moderate.
func (m *CommentModule) findWithPost(ctx context.Context, id uint) (*models.Comment, *models.Post, error) {
	comment, err := m.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var post models.Post
	err = m.db.WithContext(ctx).First(&post, comment.PostID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return comment, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find comment post: %w", err)
	}
	return comment, &post, nil
}

func (m *CommentModule) findPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := m.db.WithContext(ctx).First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound(postNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &post, nil
}

func (m *CommentModule) store(c *gin.Context) {
	postID, err := common.ParamID(c, "postId", postNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	var in CommentInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}

	comment, err := m.Create(c.Request.Context(), auth.CurrentUser(c), postID, in)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusCreated, comment, "Comment created successfully.")
}

func (m *CommentModule) index(c *gin.Context) {
	postID, err := common.ParamID(c, "postId", postNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	comments, err := m.List(c.Request.Context(), auth.CurrentUser(c), postID)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, comments, "Comments retrieved successfully.")
}

func (m *CommentModule) toggle(c *gin.Context) {
	id, err := common.ParamID(c, "id", commentNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	if _, err := m.Toggle(c.Request.Context(), auth.CurrentUser(c), id); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "Comment visibility toggled.")
}

func (m *CommentModule) update(c *gin.Context) {
	id, err := common.ParamID(c, "id", commentNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	var in CommentInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}

	comment, err := m.Update(c.Request.Context(), auth.CurrentUser(c), id, in)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, comment, "Comment updated successfully.")
}

func (m *CommentModule) destroy(c *gin.Context) {
	id, err := common.ParamID(c, "id", commentNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	if err := m.Delete(c.Request.Context(), auth.CurrentUser(c), id); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "Comment deleted successfully.")
}
