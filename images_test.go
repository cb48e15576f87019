package pagekit

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const testBaseURL = "http://example.test"

func newTestLibrary(t *testing.T, maxSize int64, mirror Mirror) *ImageLibrary {
	t.Helper()
	lib, err := NewImageLibrary(filepath.Join(t.TempDir(), "uploads"), maxSize, mirror, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewImageLibrary failed: %v", err)
	}
	return lib
}

// formFile builds the *multipart.FileHeader a server would see for one
// uploaded part.
func formFile(t *testing.T, filename, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["image"][0]
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type recordingMirror struct {
	mu      sync.Mutex
	puts    []string
	deletes []string
	err     error
}

func (m *recordingMirror) Put(_ context.Context, filename, localPath, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, filename)
	return m.err
}

func (m *recordingMirror) Delete(_ context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, filename)
	return m.err
}

func TestUploadCompressesLargeImage(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, nil)
	fh := formFile(t, "Photo.PNG", "image/png", testPNG(t, 2400, 1600))

	img, err := lib.Upload(context.Background(), fh, testBaseURL)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if img.Width != 1200 || img.Height != 800 {
		t.Errorf("dimensions = %dx%d, want 1200x800", img.Width, img.Height)
	}
	if !strings.HasPrefix(img.Filename, "compressed-") || !strings.HasSuffix(img.Filename, ".jpg") {
		t.Errorf("Filename = %q, want compressed-*.jpg", img.Filename)
	}
	if img.URL != testBaseURL+"/uploads/"+img.Filename {
		t.Errorf("URL = %q", img.URL)
	}
	if img.OriginalName != "Photo.PNG" {
		t.Errorf("OriginalName = %q, want %q", img.OriginalName, "Photo.PNG")
	}

	// Only the derivative remains; the temporary upload is gone.
	names := dirNames(t, lib.Dir())
	if len(names) != 1 || names[0] != img.Filename {
		t.Fatalf("upload dir = %v, want only %s", names, img.Filename)
	}

	f, err := os.Open(filepath.Join(lib.Dir(), img.Filename))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width > maxImageDimension || cfg.Height > maxImageDimension {
		t.Errorf("output %dx%d exceeds %d", cfg.Width, cfg.Height, maxImageDimension)
	}
	info, _ := f.Stat()
	if img.Size != info.Size() {
		t.Errorf("Size = %d, want %d", img.Size, info.Size())
	}
}

func TestUploadDimensions(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"small is not upscaled", 300, 200, 300, 200},
		{"tall", 600, 2400, 300, 1200},
		{"exact fit", 1200, 1200, 1200, 1200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := newTestLibrary(t, 10<<20, nil)
			img, err := lib.Upload(context.Background(), formFile(t, "a.png", "image/png", testPNG(t, tt.w, tt.h)), testBaseURL)
			if err != nil {
				t.Fatalf("Upload failed: %v", err)
			}
			if img.Width != tt.wantW || img.Height != tt.wantH {
				t.Errorf("dimensions = %dx%d, want %dx%d", img.Width, img.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestUploadGIF(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, nil)
	pal := image.NewPaletted(image.Rect(0, 0, 40, 30), []color.Color{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, pal, nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}

	img, err := lib.Upload(context.Background(), formFile(t, "a.gif", "image/gif", buf.Bytes()), testBaseURL)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if img.Width != 40 || img.Height != 30 {
		t.Errorf("dimensions = %dx%d, want 40x30", img.Width, img.Height)
	}
}

func TestUploadFlattensTransparency(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatalf("png encode: %v", err)
	}

	img, err := lib.Upload(context.Background(), formFile(t, "clear.png", "image/png", buf.Bytes()), testBaseURL)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	f, err := os.Open(filepath.Join(lib.Dir(), img.Filename))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	out, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, _ := out.At(8, 8).RGBA()
	if r < 0xf000 || g < 0xf000 || b < 0xf000 {
		t.Errorf("pixel = %x,%x,%x, want white", r, g, b)
	}
}

func TestUploadRejectsMIMEType(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, nil)

	for _, ct := range []string{"application/pdf", "image/svg+xml", "text/plain", ""} {
		_, err := lib.Upload(context.Background(), formFile(t, "a.png", ct, testPNG(t, 10, 10)), testBaseURL)
		if !errors.Is(err, ErrUnsupportedMedia) {
			t.Errorf("content type %q: err = %v, want unsupported media", ct, err)
		}
	}
	if names := dirNames(t, lib.Dir()); len(names) != 0 {
		t.Errorf("upload dir = %v, want empty", names)
	}
}

func TestUploadRejectsTooLarge(t *testing.T) {
	lib := newTestLibrary(t, 64, nil)
	data := testPNG(t, 50, 50)

	_, err := lib.Upload(context.Background(), formFile(t, "a.png", "image/png", data), testBaseURL)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want payload too large", err)
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Status != 400 {
		t.Errorf("status = %v, want 400", pe)
	}

	// The type check runs first.
	_, err = lib.Upload(context.Background(), formFile(t, "a.pdf", "application/pdf", data), testBaseURL)
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("err = %v, want unsupported media", err)
	}
	if names := dirNames(t, lib.Dir()); len(names) != 0 {
		t.Errorf("upload dir = %v, want empty", names)
	}
}

func TestUploadCorruptImage(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, nil)

	_, err := lib.Upload(context.Background(), formFile(t, "a.png", "image/png", []byte("definitely not a png")), testBaseURL)
	if !errors.Is(err, ErrProcessing) {
		t.Fatalf("err = %v, want processing error", err)
	}
	if names := dirNames(t, lib.Dir()); len(names) != 0 {
		t.Errorf("upload dir = %v, want empty after failed compression", names)
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h,
// with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := make([]byte, 4+13)
	copy(chunk, "IHDR")
	binary.BigEndian.PutUint32(chunk[4:], w)
	binary.BigEndian.PutUint32(chunk[8:], h)
	chunk[12] = 8 // bit depth
	chunk[13] = 2 // truecolor
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestUploadRejectsOversizedDimensions(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, nil)

	_, err := lib.Upload(context.Background(), formFile(t, "huge.png", "image/png", pngHeader(30000, 30000)), testBaseURL)
	if !errors.Is(err, ErrProcessing) {
		t.Fatalf("err = %v, want processing error", err)
	}
	if names := dirNames(t, lib.Dir()); len(names) != 0 {
		t.Errorf("upload dir = %v, want empty", names)
	}
}

func TestUploadNilFile(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, nil)
	if _, err := lib.Upload(context.Background(), nil, testBaseURL); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestUploadMirror(t *testing.T) {
	mirror := &recordingMirror{}
	lib := newTestLibrary(t, 10<<20, mirror)

	img, err := lib.Upload(context.Background(), formFile(t, "a.png", "image/png", testPNG(t, 20, 20)), testBaseURL)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if len(mirror.puts) != 1 || mirror.puts[0] != img.Filename {
		t.Errorf("mirror puts = %v, want [%s]", mirror.puts, img.Filename)
	}

	if err := lib.Delete(context.Background(), img.Filename); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(mirror.deletes) != 1 || mirror.deletes[0] != img.Filename {
		t.Errorf("mirror deletes = %v, want [%s]", mirror.deletes, img.Filename)
	}
}

func TestUploadMirrorFailureIsIgnored(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, &recordingMirror{err: errors.New("bucket gone")})

	img, err := lib.Upload(context.Background(), formFile(t, "a.png", "image/png", testPNG(t, 20, 20)), testBaseURL)
	if err != nil {
		t.Fatalf("Upload should succeed when the mirror fails: %v", err)
	}
	if _, err := os.Stat(filepath.Join(lib.Dir(), img.Filename)); err != nil {
		t.Errorf("local file missing: %v", err)
	}
}

func TestTempName(t *testing.T) {
	lib := newTestLibrary(t, 10<<20, nil)
	lib.now = fixedClock(time.UnixMilli(1700000000123))

	pattern := regexp.MustCompile(`^1700000000123-[0-9a-f]{12}\.png$`)
	first := lib.tempName("Photo.PNG")
	if !pattern.MatchString(first) {
		t.Errorf("tempName = %q, want match %s", first, pattern)
	}
	if second := lib.tempName("Photo.PNG"); second == first {
		t.Errorf("tempName should be unique within one millisecond, got %q twice", first)
	}
}

func TestCleanExt(t *testing.T) {
	tests := map[string]string{
		"a.png":         ".png",
		"a.JPEG":        ".jpeg",
		"noext":         "",
		"a.":            "",
		"a.p$g":         "",
		"a.verylongext": "",
		"../x.webp":     ".webp",
	}
	for in, want := range tests {
		if got := cleanExt(in); got != want {
			t.Errorf("cleanExt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{2400, 1600, 1200, 800},
		{1600, 2400, 800, 1200},
		{5000, 10, 1200, 2},
		{10, 5000, 2, 1200},
		{100, 100, 100, 100},
	}
	for _, tt := range tests {
		got := fitWithin(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h)), 1200, 1200).Bounds()
		if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
			t.Errorf("fitWithin(%dx%d) = %dx%d, want %dx%d", tt.w, tt.h, got.Dx(), got.Dy(), tt.wantW, tt.wantH)
		}
	}
}
