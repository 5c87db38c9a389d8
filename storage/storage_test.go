package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogroll/common"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	zipBytes = append([]byte("PK\x03\x04"), make([]byte, 64)...)
	pdfBytes = []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")
)

func fileHeader(t *testing.T, field, name string, content []byte) *multipart.FileHeader {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File[field][0]
}

func TestDisk_PutOpenExistsDelete(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	key := "uploads/posts/a.txt"
	require.NoError(t, disk.Put(ctx, key, strings.NewReader("hello"), 5, "text/plain"))

	ok, err := disk.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := disk.Open(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	require.NoError(t, disk.Delete(ctx, key))
	ok, _ = disk.Exists(ctx, key)
	assert.False(t, ok)

	// deleting twice is fine
	assert.NoError(t, disk.Delete(ctx, key))

	_, err = disk.Open(ctx, key)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDisk_KeysStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	disk, err := NewDisk(filepath.Join(root, "public"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0644))

	ok, err := disk.Exists(ctx, "../secret.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisk_List(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, disk.Put(ctx, "uploads/posts/one.png", bytes.NewReader(pngBytes), int64(len(pngBytes)), "image/png"))
	require.NoError(t, disk.Put(ctx, "uploads/blog_logos/two.png", bytes.NewReader(pngBytes), int64(len(pngBytes)), "image/png"))
	require.NoError(t, disk.Put(ctx, "other/three.txt", strings.NewReader("x"), 1, "text/plain"))

	objects, err := disk.List(ctx, UploadRoot)
	require.NoError(t, err)

	var keys []string
	for _, o := range objects {
		keys = append(keys, o.Key)
		assert.False(t, o.LastModified.IsZero())
	}
	assert.ElementsMatch(t, []string{"uploads/posts/one.png", "uploads/blog_logos/two.png"}, keys)
}

func TestDisk_ListMissingPrefix(t *testing.T) {
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	objects, err := disk.List(context.Background(), "uploads")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestUploadRule_AcceptsAllowedTypes(t *testing.T) {
	mt, err := PostMediaRule("image").Check(fileHeader(t, "image", "a.png", pngBytes))
	require.NoError(t, err)
	assert.True(t, mt.Is("image/png"))

	mt, err = PostMediaRule("image").Check(fileHeader(t, "image", "doc.pdf", pdfBytes))
	require.NoError(t, err)
	assert.True(t, mt.Is("application/pdf"))

	mt, err = PostMediaRule("image").Check(fileHeader(t, "image", "notes.md", []byte("some *markdown* notes\nsecond line\n")))
	require.NoError(t, err)
	assert.True(t, mt.Is("text/plain"))
}

func TestUploadRule_RejectsZip(t *testing.T) {
	_, err := PostMediaRule("image").Check(fileHeader(t, "image", "archive.zip", zipBytes))
	require.Error(t, err)
	assert.Equal(t, common.KindUnsupportedMediaType, common.KindOf(err))
}

func TestUploadRule_ImageRuleRejectsPDF(t *testing.T) {
	_, err := ImageRule("logo").Check(fileHeader(t, "logo", "doc.pdf", pdfBytes))
	assert.Equal(t, common.KindUnsupportedMediaType, common.KindOf(err))
}

func TestUploadRule_TooLarge(t *testing.T) {
	big := append(append([]byte{}, pngBytes...), make([]byte, MaxUploadSize)...)

	_, err := PostMediaRule("image").Check(fileHeader(t, "image", "big.png", big))
	require.Error(t, err)
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	var e *common.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, []string{"The image field must not be greater than 2048 kilobytes."}, e.Fields["image"])
}

func TestUpload_StoresUnderDirectory(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	fh := fileHeader(t, "image", "photo.png", pngBytes)
	mt, err := ImageRule("image").Check(fh)
	require.NoError(t, err)

	key, err := Upload(ctx, disk, DirBlogImages, fh, mt)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "uploads/blog_images/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	ok, err := disk.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingStorage struct {
	Storage
	deletes int
}

func (f *failingStorage) Delete(ctx context.Context, key string) error {
	f.deletes++
	return errors.New("unreachable")
}

func TestDeleteQuietly_SwallowsErrors(t *testing.T) {
	var logs bytes.Buffer
	st := &failingStorage{}

	DeleteQuietly(context.Background(), st, zerolog.New(&logs), "uploads/posts/x.png")
	DeleteQuietly(context.Background(), st, zerolog.New(&logs), "")

	assert.Equal(t, 1, st.deletes)
	assert.Contains(t, logs.String(), "uploads/posts/x.png")
}

func TestPublicURL(t *testing.T) {
	url := PublicURL("uploads/posts/x.png")
	assert.Equal(t, "/storage/uploads/posts/x.png", url)
	assert.Equal(t, "uploads/posts/x.png", KeyFromURL(url))
}

func TestIsUploadDir(t *testing.T) {
	assert.True(t, IsUploadDir("posts"))
	assert.True(t, IsUploadDir("profile_pictures"))
	assert.False(t, IsUploadDir("../etc"))
	assert.False(t, IsUploadDir("uploads"))
}

func TestObjectTimesSortable(t *testing.T) {
	a := Object{Key: "a", LastModified: time.Now().Add(-time.Hour)}
	b := Object{Key: "b", LastModified: time.Now()}
	assert.True(t, b.LastModified.After(a.LastModified))
}
