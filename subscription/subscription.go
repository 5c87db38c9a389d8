package subscription

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
	"blogroll/folder"
	"blogroll/models"
)

const blogNotFound = "Blog not found."

type SubscriptionModule struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewSubscriptionModule(db *gorm.DB, logger zerolog.Logger) *SubscriptionModule {
	return &SubscriptionModule{db: db, log: logger}
}

func (s *SubscriptionModule) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	group := api.Group("/subscriptions", requireAuth)
	{
		group.GET("", s.index)
		group.POST("/:blogId", s.subscribe)
		group.DELETE("/:blogId", s.unsubscribe)
	}
}

// List returns the blogs actor is subscribed to, in subscription order.
func (s *SubscriptionModule) List(ctx context.Context, actor *models.User) ([]models.Blog, error) {
	var blogs []models.Blog
	err := s.db.WithContext(ctx).
		Joins("JOIN blog_user ON blog_user.blog_id = blogs.id").
		Where("blog_user.user_id = ?", actor.ID).
		Order("blog_user.created_at, blogs.id").
		Find(&blogs).Error
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return blogs, nil
}

// Subscribe records actor as a subscriber of blogID. The composite primary
// key turns a concurrent duplicate into the same conflict.
func (s *SubscriptionModule) Subscribe(ctx context.Context, actor *models.User, blogID uint) error {
	db := s.db.WithContext(ctx)
	if err := ensureBlogExists(db, blogID); err != nil {
		return err
	}

	err := db.Create(&models.Subscription{UserID: actor.ID, BlogID: blogID}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return common.Conflict("Already subscribed to this blog.", nil)
	}
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.log.Info().Uint("user_id", actor.ID).Uint("blog_id", blogID).Msg("subscribed")
	return nil
}

// Unsubscribe drops the subscription and takes the blog out of actor's
// folders in the same transaction. It is a no-op for blogs actor does not
// follow.
func (s *SubscriptionModule) Unsubscribe(ctx context.Context, actor *models.User, blogID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureBlogExists(tx, blogID); err != nil {
			return err
		}
		err := tx.Where("user_id = ? AND blog_id = ?", actor.ID, blogID).Delete(&models.Subscription{}).Error
		if err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		return folder.DetachFromUserFolders(tx, actor.ID, blogID)
	})
}

// DeleteForUser drops every subscription held by userID.
func DeleteForUser(tx *gorm.DB, userID uint) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.Subscription{}).Error; err != nil {
		return fmt.Errorf("delete subscriptions: %w", err)
	}
	return nil
}

func ensureBlogExists(db *gorm.DB, blogID uint) error {
	var count int64
	if err := db.Model(&models.Blog{}).Where("id = ?", blogID).Count(&count).Error; err != nil {
		return fmt.Errorf("find blog: %w", err)
	}
	if count == 0 {
		return common.NotFound(blogNotFound)
	}
	return nil
}

func (s *SubscriptionModule) index(c *gin.Context) {
	blogs, err := s.List(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, blogs, "Subscribed blogs retrieved successfully.")
}

func (s *SubscriptionModule) subscribe(c *gin.Context) {
	blogID, err := common.ParamID(c, "blogId", blogNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	if err := s.Subscribe(c.Request.Context(), auth.CurrentUser(c), blogID); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "Successfully subscribed to the blog.")
}

func (s *SubscriptionModule) unsubscribe(c *gin.Context) {
	blogID, err := common.ParamID(c, "blogId", blogNotFound)
	if err != nil {
		common.SendError(c, err)
		return
	}

	if err := s.Unsubscribe(c.Request.Context(), auth.CurrentUser(c), blogID); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "Successfully unsubscribed from the blog and removed from folders.")
}
