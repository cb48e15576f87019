package pagekit

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxImageDimension = 1200
	jpegQuality       = 80
	// maxDecodePixels caps the declared size of a source image so a small
	// file cannot claim dimensions that exhaust memory on decode.
	maxDecodePixels   = 50_000_000
	compressedPrefix  = "compressed-"
	uploadsURLPrefix  = "/uploads"
)

// allowedMIMETypes are the declared content types accepted for upload.
var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ImageLibrary owns the upload directory: it accepts new uploads,
// compresses them, and lists or deletes the files it holds.
type ImageLibrary struct {
	dir     string
	maxSize int64
	mirror  Mirror
	log     *zap.Logger
	now     func() time.Time
}

// NewImageLibrary creates the upload directory if needed. mirror may be nil.
func NewImageLibrary(dir string, maxSize int64, mirror Mirror, log *zap.Logger) (*ImageLibrary, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &ImageLibrary{
		dir:     dir,
		maxSize: maxSize,
		mirror:  mirror,
		log:     log,
		now:     time.Now,
	}, nil
}

// Dir returns the upload directory.
func (l *ImageLibrary) Dir() string { return l.dir }

// Upload validates one multipart file, stores it in a temporary file,
// writes a compressed JPEG derivative next to it, and removes the
// temporary file. Only the derivative remains on disk.
func (l *ImageLibrary) Upload(ctx context.Context, fh *multipart.FileHeader, baseURL string) (Image, error) {
	if fh == nil {
		return Image{}, validationError("no image provided")
	}
	mimeType := declaredMIME(fh)
	if !allowedMIMETypes[mimeType] {
		return Image{}, unsupportedMediaError(mimeType)
	}
	if fh.Size > l.maxSize {
		return Image{}, payloadTooLargeError(l.maxSize)
	}

	src, err := fh.Open()
	if err != nil {
		return Image{}, internalError("failed to read upload", err)
	}
	defer src.Close()

	tempName := l.tempName(fh.Filename)
	tempPath := filepath.Join(l.dir, tempName)
	if err := writeTemp(tempPath, src); err != nil {
		l.removeQuietly(tempPath)
		return Image{}, internalError("failed to store upload", err)
	}

	filename := compressedPrefix + strings.TrimSuffix(tempName, filepath.Ext(tempName)) + ".jpg"
	outPath := filepath.Join(l.dir, filename)
	w, h, compressErr := compressImage(tempPath, outPath)
	l.removeQuietly(tempPath)
	if compressErr != nil {
		l.log.Error("image compression failed",
			zap.String("original", fh.Filename),
			zap.Error(compressErr))
		return Image{}, processingError(compressErr)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return Image{}, processingError(err)
	}

	img := Image{
		Filename:     filename,
		OriginalName: fh.Filename,
		URL:          imageURL(baseURL, filename),
		Size:         info.Size(),
		Width:        w,
		Height:       h,
		UploadedAt:   l.now().UTC(),
	}

	if l.mirror != nil {
		if err := l.mirror.Put(ctx, filename, outPath, "image/jpeg"); err != nil {
			l.log.Warn("upload mirror failed", zap.String("filename", filename), zap.Error(err))
		}
	}

	l.log.Info("image compressed",
		zap.String("filename", filename),
		zap.String("original", fh.Filename),
		zap.Int64("uploaded_size", fh.Size),
		zap.Int64("size", img.Size),
		zap.Int("width", w),
		zap.Int("height", h))
	return img, nil
}

// declaredMIME returns the part's Content-Type without parameters.
func declaredMIME(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mediaType
}

// tempName generates "<unix-ms>-<random><ext>", keeping the original
// extension when it is a plain alphanumeric one.
func (l *ImageLibrary) tempName(original string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s%s", l.now().UnixMilli(), suffix, cleanExt(original))
}

func cleanExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

func writeTemp(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *ImageLibrary) removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.log.Warn("could not remove temporary upload", zap.String("path", path), zap.Error(err))
	}
}

// compressImage decodes the image at inPath, fits it within
// maxImageDimension on both sides without upscaling, and writes it to
// outPath as a JPEG. Sources declaring more than maxDecodePixels are
// rejected before decoding. outPath is removed if encoding fails.
func compressImage(inPath, outPath string) (int, int, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return 0, 0, err
	}
	defer in.Close()

	cfg, _, err := image.DecodeConfig(in)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxDecodePixels {
		return 0, 0, fmt.Errorf("image is %dx%d, over the %d pixel limit", cfg.Width, cfg.Height, maxDecodePixels)
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}

	src, _, err := image.Decode(in)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image: %w", err)
	}

	img := fitWithin(src, maxImageDimension, maxImageDimension)
	bounds := img.Bounds()

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, 0, err
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		out.Close()
		os.Remove(outPath)
		return 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return 0, 0, err
	}
	return bounds.Dx(), bounds.Dy(), nil
}

// fitWithin scales src down to fit maxW x maxH, preserving the aspect
// ratio, and flattens it onto a white background since JPEG has no alpha.
func fitWithin(src image.Image, maxW, maxH int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	newW, newH := w, h
	if w > maxW || h > maxH {
		if w*maxH >= h*maxW {
			newW = maxW
			newH = h * maxW / w
		} else {
			newH = maxH
			newW = w * maxH / h
		}
		if newW < 1 {
			newW = 1
		}
		if newH < 1 {
			newH = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if newW == w && newH == h {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}
	return dst
}

func imageURL(baseURL, filename string) string {
	return baseURL + uploadsURLPrefix + "/" + filename
}
