package attachment

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestReadAndInspectImage(t *testing.T) {
	file, err := Read("../covers/banner.png", bytes.NewReader(pngBytes(t, 40, 20)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if file.Name != "banner.png" {
		t.Fatalf("expected base name, got %q", file.Name)
	}
	if !file.IsImage() {
		t.Fatalf("expected image content type, got %q", file.ContentType)
	}
	if err := file.Inspect(); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if file.Width != 40 || file.Height != 20 {
		t.Fatalf("unexpected dimensions %dx%d", file.Width, file.Height)
	}
}

func TestReadRejectsEmpty(t *testing.T) {
	if _, err := Read("empty.txt", strings.NewReader("")); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestInspectRejectsText(t *testing.T) {
	file, err := Read("resume.txt", strings.NewReader("plain text"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := file.Inspect(); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
}
