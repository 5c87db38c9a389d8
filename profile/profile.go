package profile

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"blogroll/auth"
	"blogroll/blog"
	"blogroll/comment"
	"blogroll/common"
	"blogroll/folder"
	"blogroll/models"
	"blogroll/storage"
	"blogroll/subscription"
)

const pictureField = "profile_picture"

type ProfileModule struct {
	db    *gorm.DB
	store storage.Storage
	log   zerolog.Logger
}

func NewProfileModule(db *gorm.DB, store storage.Storage, logger zerolog.Logger) *ProfileModule {
	return &ProfileModule{db: db, store: store, log: logger}
}

func (p *ProfileModule) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	group := api.Group("/profile", requireAuth)
	{
		group.GET("", p.show)
		group.POST("", common.LimitBody(common.MaxUploadBody), p.update)
		group.DELETE("", p.destroy)
	}
}

// UpdateProfileInput only touches the fields that were sent.
type UpdateProfileInput struct {
	Name     *string `json:"name" form:"name" binding:"omitnil,min=1,max=255"`
	Email    *string `json:"email" form:"email" binding:"omitnil,email,max=255"`
	Password *string `json:"password" form:"password" binding:"omitnil,min=8,max=72"`
	Bio      *string `json:"bio" form:"bio" binding:"omitnil,max=1000"`
}

// Update applies a partial update to actor. A new picture replaces the old
// one, which is deleted once the new file passes its checks.
func (p *ProfileModule) Update(ctx context.Context, actor *models.User, in UpdateProfileInput, picture *multipart.FileHeader) (*models.User, error) {
	db := p.db.WithContext(ctx)

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		taken, err := auth.EmailTaken(db, email, actor.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, common.FieldError("email", "The email has already been taken.")
		}
		actor.Email = email
	}
	if in.Name != nil {
		actor.Name = strings.TrimSpace(*in.Name)
	}
	if in.Bio != nil {
		actor.Bio = in.Bio
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		actor.Password = hash
	}

	var newPicture string
	if picture != nil {
		detected, err := storage.ImageRule(pictureField).Check(picture)
		if err != nil {
			return nil, err
		}
		if actor.ProfilePicture != nil {
			storage.DeleteQuietly(ctx, p.store, p.log, *actor.ProfilePicture)
		}
		newPicture, err = storage.Upload(ctx, p.store, storage.DirProfilePictures, picture, detected)
		if err != nil {
			return nil, err
		}
		actor.ProfilePicture = &newPicture
	}

	if err := db.Save(actor).Error; err != nil {
		storage.DeleteQuietly(ctx, p.store, p.log, newPicture)
		return nil, fmt.Errorf("update profile: %w", err)
	}

	p.log.Info().Uint("user_id", actor.ID).Msg("profile updated")
	return actor, nil
}

// DeleteAccount removes user with everything they own: their blog and its
// content, their folders, subscriptions and comments. The user row is soft
// deleted so existing tokens stop resolving. Stored files go last.
func (p *ProfileModule) DeleteAccount(ctx context.Context, user *models.User) error {
	var keys []string
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		keys, err = blog.DestroyOwnedBy(tx, user.ID)
		if err != nil {
			return err
		}
		if err := folder.DeleteForUser(tx, user.ID); err != nil {
			return err
		}
		if err := subscription.DeleteForUser(tx, user.ID); err != nil {
			return err
		}
		if err := comment.DeleteForUser(tx, user.ID); err != nil {
			return err
		}
		if err := tx.Delete(&models.User{}, user.ID).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if user.ProfilePicture != nil {
		keys = append(keys, *user.ProfilePicture)
	}
	for _, key := range keys {
		storage.DeleteQuietly(ctx, p.store, p.log, key)
	}
	p.log.Info().Uint("user_id", user.ID).Int("files", len(keys)).Msg("user deleted")
	return nil
}

func (p *ProfileModule) show(c *gin.Context) {
	common.SendResponse(c, http.StatusOK, auth.CurrentUser(c), "Profile retrieved successfully.")
}

func (p *ProfileModule) update(c *gin.Context) {
	var in UpdateProfileInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}
	picture, err := common.OptionalFile(c, pictureField)
	if err != nil {
		common.SendError(c, err)
		return
	}

	user, err := p.Update(c.Request.Context(), auth.CurrentUser(c), in, picture)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, user, "Profile updated successfully.")
}

func (p *ProfileModule) destroy(c *gin.Context) {
	if err := p.DeleteAccount(c.Request.Context(), auth.CurrentUser(c)); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "User profile deleted successfully.")
}
