package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// MaxSize 单个待上传文件允许的最大字节数。
const MaxSize = 16 << 20

var (
	ErrEmptyFile    = errors.New("attachment is empty")
	ErrFileTooLarge = errors.New("attachment exceeds size limit")
	ErrNotAnImage   = errors.New("attachment is not a supported image")
)

// File 表示一个尚未上传的本地文件，发送前完整缓存在内存中。
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Read 从 reader 读取文件内容并推断类型。
func Read(name string, r io.Reader) (*File, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(data) > MaxSize {
		return nil, ErrFileTooLarge
	}

	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &File{Name: name, ContentType: contentType, Data: data}, nil
}

// IsImage 按 MIME 类型判断是否为图片。
func (f *File) IsImage() bool {
	return f != nil && strings.HasPrefix(f.ContentType, "image/")
}

// Inspect 解码图片头部，填充宽高；非图片返回 ErrNotAnImage。
func (f *File) Inspect() error {
	if f == nil || len(f.Data) == 0 {
		return ErrEmptyFile
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	f.Width = cfg.Width
	f.Height = cfg.Height
	if !f.IsImage() {
		f.ContentType = "image/" + format
	}
	return nil
}

// Size 返回文件字节数。
func (f *File) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}
