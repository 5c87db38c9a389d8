package folder

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

const alreadyFiled = "This blog is already in another folder."

type FolderModule struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewFolderModule(db *gorm.DB, logger zerolog.Logger) *FolderModule {
	return &FolderModule{db: db, log: logger}
}

func (f *FolderModule) RegisterRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	group := api.Group("/folders", requireAuth)
	{
		group.GET("", f.index)
		group.POST("", f.store)
		group.POST("/:folderId/add-blog", f.addBlog)
		group.POST("/:folderId/remove-blog", f.removeBlog)
	}
}

type CreateFolderInput struct {
	Name   string `json:"name" form:"name" binding:"required,max=255"`
	BlogID uint   `json:"blog_id" form:"blog_id" binding:"required"`
}

type BlogInput struct {
	BlogID uint `json:"blog_id" form:"blog_id" binding:"required"`
}

// List returns the actor's folders with their blogs.
func (f *FolderModule) List(ctx context.Context, actor *models.User) ([]models.Folder, error) {
	var folders []models.Folder
	err := f.db.WithContext(ctx).
		Preload("Blogs").
		Where("user_id = ?", actor.ID).
		Order("id").
		Find(&folders).Error
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

// Create makes a folder holding a single blog. A blog can sit in at most one
// of the actor's folders.
func (f *FolderModule) Create(ctx context.Context, actor *models.User, in CreateFolderInput) (*models.Folder, error) {
	folder := &models.Folder{UserID: actor.ID, Name: in.Name}

	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureBlogExists(tx, in.BlogID); err != nil {
			return err
		}
		if err := ensureNotFiled(tx, actor.ID, in.BlogID); err != nil {
			return err
		}
		if err := tx.Create(folder).Error; err != nil {
			return fmt.Errorf("create folder: %w", err)
		}
		return attach(tx, folder, in.BlogID)
	})
	if err != nil {
		return nil, err
	}

	f.log.Info().Uint("folder_id", folder.ID).Uint("user_id", actor.ID).Msg("folder created")
	return f.load(ctx, folder.ID)
}

// AddBlog files blogID into the actor's folder.
func (f *FolderModule) AddBlog(ctx context.Context, actor *models.User, folderID, blogID uint) (*models.Folder, error) {
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := findOwned(tx, actor, folderID)
		if err != nil {
			return err
		}
		if err := ensureBlogExists(tx, blogID); err != nil {
			return err
		}
		if err := ensureNotFiled(tx, actor.ID, blogID); err != nil {
			return err
		}
		return attach(tx, folder, blogID)
	})
	if err != nil {
		return nil, err
	}
	return f.load(ctx, folderID)
}

// RemoveBlog detaches blogID from the actor's folder and deletes the folder
// once it is empty.
func (f *FolderModule) RemoveBlog(ctx context.Context, actor *models.User, folderID, blogID uint) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findOwned(tx, actor, folderID); err != nil {
			return err
		}
		if err := ensureBlogExists(tx, blogID); err != nil {
			return err
		}

		err := tx.Where("folder_id = ? AND blog_id = ?", folderID, blogID).Delete(&models.FolderBlog{}).Error
		if err != nil {
			return fmt.Errorf("detach blog: %w", err)
		}
		return pruneIfEmpty(tx, folderID)
	})
}

// DetachFromUserFolders removes blogID from every folder owned by userID and
// deletes the folders left empty. Callers pass their transaction.
func DetachFromUserFolders(tx *gorm.DB, userID, blogID uint) error {
	return detach(tx, tx.Where("user_id = ? AND blog_id = ?", userID, blogID))
}

// DetachEverywhere removes blogID from all folders of all users.
func DetachEverywhere(tx *gorm.DB, blogID uint) error {
	return detach(tx, tx.Where("blog_id = ?", blogID))
}

// DeleteForUser drops every folder owned by userID.
func DeleteForUser(tx *gorm.DB, userID uint) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.FolderBlog{}).Error; err != nil {
		return fmt.Errorf("delete folder memberships: %w", err)
	}
	if err := tx.Where("user_id = ?", userID).Delete(&models.Folder{}).Error; err != nil {
		return fmt.Errorf("delete folders: %w", err)
	}
	return nil
}

func detach(tx *gorm.DB, scope *gorm.DB) error {
	var memberships []models.FolderBlog
	if err := scope.Find(&memberships).Error; err != nil {
		return fmt.Errorf("find folder memberships: %w", err)
	}

	for _, m := range memberships {
		err := tx.Where("folder_id = ? AND blog_id = ?", m.FolderID, m.BlogID).Delete(&models.FolderBlog{}).Error
		if err != nil {
			return fmt.Errorf("detach blog %d: %w", m.BlogID, err)
		}
		if err := pruneIfEmpty(tx, m.FolderID); err != nil {
			return err
		}
	}
	return nil
}

func pruneIfEmpty(tx *gorm.DB, folderID uint) error {
	var count int64
	if err := tx.Model(&models.FolderBlog{}).Where("folder_id = ?", folderID).Count(&count).Error; err != nil {
		return fmt.Errorf("count folder blogs: %w", err)
	}
	if count > 0 {
		return nil
	}
	if err := tx.Delete(&models.Folder{}, folderID).Error; err != nil {
		return fmt.Errorf("delete empty folder: %w", err)
	}
	return nil
}

func attach(tx *gorm.DB, folder *models.Folder, blogID uint) error {
	err := tx.Create(&models.FolderBlog{FolderID: folder.ID, BlogID: blogID, UserID: folder.UserID}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return filedConflict()
	}
	if err != nil {
		return fmt.Errorf("attach blog: %w", err)
	}
	return nil
}

func findOwned(tx *gorm.DB, actor *models.User, folderID uint) (*models.Folder, error) {
	var folder models.Folder
	err := tx.First(&folder, folderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("Folder not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("find folder: %w", err)
	}
	if !policy.CanManageFolder(actor, &folder) {
		return nil, common.Unauthorized("Unauthorized.")
	}
	return &folder, nil
}

func ensureBlogExists(tx *gorm.DB, blogID uint) error {
	var count int64
	if err := tx.Model(&models.Blog{}).Where("id = ?", blogID).Count(&count).Error; err != nil {
		return fmt.Errorf("find blog: %w", err)
	}
	if count == 0 {
		return common.FieldError("blog_id", "The selected blog id is invalid.")
	}
	return nil
}

func ensureNotFiled(tx *gorm.DB, userID, blogID uint) error {
	var count int64
	err := tx.Model(&models.FolderBlog{}).Where("user_id = ? AND blog_id = ?", userID, blogID).Count(&count).Error
	if err != nil {
		return fmt.Errorf("check folder membership: %w", err)
	}
	if count > 0 {
		return filedConflict()
	}
	return nil
}

func filedConflict() error {
	return common.Conflict(alreadyFiled, map[string][]string{"blog_id": {alreadyFiled}})
}

func (f *FolderModule) load(ctx context.Context, id uint) (*models.Folder, error) {
	var folder models.Folder
	if err := f.db.WithContext(ctx).Preload("Blogs").First(&folder, id).Error; err != nil {
		return nil, fmt.Errorf("reload folder: %w", err)
	}
	return &folder, nil
}

func (f *FolderModule) index(c *gin.Context) {
	folders, err := f.List(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, folders, "Folders retrieved successfully.")
}

func (f *FolderModule) store(c *gin.Context) {
	var in CreateFolderInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}

	folder, err := f.Create(c.Request.Context(), auth.CurrentUser(c), in)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusCreated, folder, "Folder created successfully.")
}

func (f *FolderModule) addBlog(c *gin.Context) {
	folderID, err := common.ParamID(c, "folderId", "Folder not found.")
	if err != nil {
		common.SendError(c, err)
		return
	}

	var in BlogInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}

	folder, err := f.AddBlog(c.Request.Context(), auth.CurrentUser(c), folderID, in.BlogID)
	if err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, folder, "Blog added to folder successfully.")
}

func (f *FolderModule) removeBlog(c *gin.Context) {
	folderID, err := common.ParamID(c, "folderId", "Folder not found.")
	if err != nil {
		common.SendError(c, err)
		return
	}

	var in BlogInput
	if err := c.ShouldBind(&in); err != nil {
		common.SendError(c, common.BindingError(err))
		return
	}

	if err := f.RemoveBlog(c.Request.Context(), auth.CurrentUser(c), folderID, in.BlogID); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "Blog removed from folder successfully.")
}
