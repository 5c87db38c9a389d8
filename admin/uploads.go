package admin

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"blogroll/common"
	"blogroll/storage"
)

// Basenames ending in these suffixes are never listed.
var hiddenSuffixes = []string{".DS_Store", ".tmp", ".log"}

const fileNotFound = "File not found."

// ListUploads returns every stored upload, newest first.
func (a *AdminModule) ListUploads(ctx context.Context) ([]storage.Object, error) {
	objects, err := a.store.List(ctx, storage.UploadRoot+"/")
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	files := make([]storage.Object, 0, len(objects))
	for _, obj := range objects {
		if !hidden(path.Base(obj.Key)) {
			files = append(files, obj)
		}
	}
	if len(files) == 0 {
		return nil, common.NotFound("No uploaded files found.")
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].LastModified.After(files[j].LastModified)
	})
	return files, nil
}

// DeleteUpload removes uploads/<folder>/<name>. name is already decoded and
// must name a file directly inside folder.
func (a *AdminModule) DeleteUpload(ctx context.Context, folder, name string) error {
	if !storage.IsUploadDir(folder) {
		return common.NotFound(fileNotFound)
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return common.NotFound(fileNotFound)
	}

	key := path.Join(storage.UploadRoot, folder, name)
	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return common.NotFound(fileNotFound)
	}
	if err := a.store.Delete(ctx, key); err != nil {
		return err
	}

	a.log.Info().Str("key", key).Msg("upload deleted")
	return nil
}

func hidden(name string) bool {
	for _, suffix := range hiddenSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func (a *AdminModule) listUploads(c *gin.Context) {
	files, err := a.ListUploads(c.Request.Context())
	if err != nil {
		common.SendError(c, err)
		return
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Key
	}
	common.SendResponse(c, http.StatusOK, paths, "Uploaded files retrieved successfully.")
}

func (a *AdminModule) deleteUpload(c *gin.Context) {
	name, err := common.DecodedParam(c, "filename")
	if err != nil {
		common.SendError(c, common.NotFound(fileNotFound))
		return
	}
	if err := a.DeleteUpload(c.Request.Context(), c.Param("folder"), name); err != nil {
		common.SendError(c, err)
		return
	}
	common.SendResponse(c, http.StatusOK, nil, "File deleted successfully.")
}
