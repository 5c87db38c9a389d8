package storage

import (
	"context"
	"fmt"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"blogroll/common"
)

// UploadRoot is the key prefix shared by every uploaded file.
const UploadRoot = "uploads"

// Upload sub-directories, one per kind of owned file.
const (
	DirProfilePictures = "profile_pictures"
	DirPosts           = "posts"
	DirBlogLogos       = "blog_logos"
	DirBlogImages      = "blog_images"
)

var UploadDirs = []string{DirProfilePictures, DirPosts, DirBlogLogos, DirBlogImages}

func IsUploadDir(dir string) bool {
	for _, d := range UploadDirs {
		if d == dir {
			return true
		}
	}
	return false
}

// PublicPrefix is prepended to keys that are exposed as URLs.
const PublicPrefix = "/storage/"

// MaxUploadSize is the 2048 KB ceiling applied to every upload.
const MaxUploadSize int64 = 2048 * 1024

var ImageTypes = []string{"image/jpeg", "image/png", "image/jpg", "image/gif"}

var PostMediaTypes = []string{
	"image/jpeg",
	"image/png",
	"image/jpg",
	"image/gif",
	"application/pdf",
	"text/plain",
	"text/markdown",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/octet-stream",
}

// UploadRule constrains one uploaded form field.
type UploadRule struct {
	Field    string
	MaxBytes int64
	Allowed  []string
}

func ImageRule(field string) UploadRule {
	return UploadRule{Field: field, MaxBytes: MaxUploadSize, Allowed: ImageTypes}
}

func PostMediaRule(field string) UploadRule {
	return UploadRule{Field: field, MaxBytes: MaxUploadSize, Allowed: PostMediaTypes}
}

// Check enforces the size ceiling, then sniffs the content and matches the
// detected MIME type against the allow-list.
func (r UploadRule) Check(fh *multipart.FileHeader) (*mimetype.MIME, error) {
	if fh.Size > r.MaxBytes {
		return nil, common.FieldError(r.Field, fmt.Sprintf("The %s field must not be greater than %d kilobytes.",
			strings.ReplaceAll(r.Field, "_", " "), r.MaxBytes/1024))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, common.FieldError(r.Field, fmt.Sprintf("The %s failed to upload.", strings.ReplaceAll(r.Field, "_", " ")))
	}
	defer f.Close()

	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("detect %s type: %w", r.Field, err)
	}

	for _, allowed := range r.Allowed {
		if detected.Is(allowed) {
			return detected, nil
		}
	}
	return nil, common.UnsupportedMediaType("Invalid file type.")
}

// Upload stores fh under uploads/<dir>/ with a random name and returns its key.
func Upload(ctx context.Context, st Storage, dir string, fh *multipart.FileHeader, detected *mimetype.MIME) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	ext := detected.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(fh.Filename))
	}
	key := path.Join(UploadRoot, dir, uuid.NewString()+ext)

	if err := st.Put(ctx, key, f, fh.Size, detected.String()); err != nil {
		return "", err
	}
	return key, nil
}

// DeleteQuietly removes key and only logs a failure. Empty keys are ignored.
func DeleteQuietly(ctx context.Context, st Storage, logger zerolog.Logger, key string) {
	if key == "" {
		return
	}
	if err := st.Delete(ctx, key); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to delete stored file")
	}
}

func PublicURL(key string) string {
	return PublicPrefix + key
}

// KeyFromURL reverses PublicURL.
func KeyFromURL(url string) string {
	return strings.TrimPrefix(url, PublicPrefix)
}
