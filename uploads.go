package pagekit

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// List returns every regular file in the upload directory, sorted by name.
// Files are listed whether or not any PageData entry refers to them.
func (l *ImageLibrary) List(baseURL string) ([]ImageFile, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, internalError("failed to list images", err)
	}
	images := make([]ImageFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		images = append(images, ImageFile{
			Filename: entry.Name(),
			URL:      imageURL(baseURL, entry.Name()),
			Size:     info.Size(),
		})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Filename < images[j].Filename })
	return images, nil
}

// Delete removes filename from the upload directory. Names that resolve
// outside the directory are rejected before the filesystem is touched.
// References to the file from PageData are left dangling.
func (l *ImageLibrary) Delete(ctx context.Context, filename string) error {
	target, err := l.resolve(filename)
	if err != nil {
		return err
	}

	info, err := os.Stat(target)
	if os.IsNotExist(err) || (err == nil && !info.Mode().IsRegular()) {
		return notFoundError("file not found")
	}
	if err != nil {
		return internalError("failed to delete image", err)
	}
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return notFoundError("file not found")
		}
		return internalError("failed to delete image", err)
	}

	name := filepath.Base(target)
	if l.mirror != nil {
		if err := l.mirror.Delete(ctx, name); err != nil {
			l.log.Warn("mirror delete failed", zap.String("filename", name), zap.Error(err))
		}
	}
	l.log.Info("image deleted", zap.String("filename", name))
	return nil
}

// resolve joins filename onto the upload directory and checks that the
// cleaned absolute result is strictly inside it.
func (l *ImageLibrary) resolve(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", validationError("filename required")
	}
	base, err := filepath.Abs(l.dir)
	if err != nil {
		return "", internalError("failed to resolve upload dir", err)
	}
	target, err := filepath.Abs(filepath.Join(l.dir, filename))
	if err != nil {
		return "", accessDeniedError()
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", accessDeniedError()
	}
	return target, nil
}
