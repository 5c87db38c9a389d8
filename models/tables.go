package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string         `gorm:"not null" json:"name"`
	Email          string         `gorm:"uniqueIndex;not null" json:"email"`
	Password       string         `gorm:"not null" json:"-"` // bcrypt hash, never serialized
	ProfilePicture *string        `json:"profile_picture"`   // bare storage key
	Bio            *string        `gorm:"type:text" json:"bio"`
	IsAdmin        bool           `gorm:"default:false" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

type Blog struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID     uint      `gorm:"not null;uniqueIndex" json:"owner_id"` // one blog per user
	Name        string    `gorm:"not null" json:"name"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Image       *string   `json:"image"` // bare storage key
	Logo        *string   `json:"logo"`  // bare storage key
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Post struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BlogID      uint      `gorm:"not null;index" json:"blog_id"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	ImageURL    *string   `json:"image_url"` // "/storage/" + key
	Type        string    `gorm:"default:text" json:"type"`
	ContentHTML string    `gorm:"-" json:"content_html,omitempty"` // rendered for markdown posts only
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Comment struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IsVisible bool      `gorm:"not null;default:true" json:"is_visible"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Post *Post `gorm:"foreignKey:PostID" json:"post,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

type Folder struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Blogs []Blog `gorm:"many2many:folder_blog;" json:"blogs"`
}

// FolderBlog is the folder membership join table. UserID is denormalized from
// the folder so a blog can sit in at most one folder per user.
type FolderBlog struct {
	FolderID uint `gorm:"primaryKey"`
	BlogID   uint `gorm:"primaryKey;uniqueIndex:idx_folder_blog_user_blog,priority:2"`
	UserID   uint `gorm:"not null;uniqueIndex:idx_folder_blog_user_blog,priority:1"`
}

func (FolderBlog) TableName() string {
	return "folder_blog"
}

// Subscription is the blog_user join table.
type Subscription struct {
	UserID    uint      `gorm:"primaryKey"`
	BlogID    uint      `gorm:"primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (Subscription) TableName() string {
	return "blog_user"
}
