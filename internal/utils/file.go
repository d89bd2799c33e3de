package utils

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsVideoFile checks whether a file is a video, preferring content sniffing
// over the extension. Files that cannot be read fall back to the extension
// check so callers get a useful error from the actual open instead.
func IsVideoFile(filename string) bool {
	mime, err := SniffMIME(filename)
	if err == nil {
		if strings.HasPrefix(mime, "video/") {
			return true
		}
		// QuickTime and some MP4 variants sniff as octet-stream.
		if mime != "application/octet-stream" {
			return false
		}
	}
	return hasVideoExtension(filename)
}

// IsImageFile checks if a file has a still-image extension
func IsImageFile(filename string) bool {
	ext := GetFileExtension(filename)
	imageExts := []string{"jpg", "jpeg", "png", "webp", "bmp", "tiff"}

	for _, imgExt := range imageExts {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// SniffMIME detects the content type of a file from its first 512 bytes.
func SniffMIME(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", fmt.Errorf("failed to open file for sniffing: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return "", fmt.Errorf("failed to read file header: %w", err)
	}

	mime := http.DetectContentType(buf[:n])
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return mime, nil
}

func hasVideoExtension(filename string) bool {
	ext := GetFileExtension(filename)
	videoExts := []string{"mp4", "mov", "m4v", "avi", "mkv", "webm"}

	for _, vidExt := range videoExts {
		if ext == vidExt {
			return true
		}
	}
	return false
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
