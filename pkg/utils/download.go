package utils

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"pagerelay/pkg/logger"
)

// DefaultMaxDownloadBytes caps a single media download (25 MiB, the platform
// ceiling for attachments).
const DefaultMaxDownloadBytes int64 = 25 << 20

// DownloadMedia performs req with client, infers a file extension from the
// response's declared Content-Type and streams the body to
// dir/<baseName><ext> in small chunks, keeping peak memory constant
// regardless of file size.
//
// A response whose Content-Type maps to no known extension fails the whole
// download before anything is written: a file with no recognizable type is
// not worth persisting. On any error no file is left behind.
func DownloadMedia(client *http.Client, req *http.Request, dir, baseName string, maxBytes int64) (string, error) {
	logger.DebugCF("download", "Starting download", map[string]interface{}{
		"url":       req.URL.String(),
		"max_bytes": maxBytes,
	})

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a small amount for the error message.
		errBody := make([]byte, 512)
		n, _ := io.ReadFull(resp.Body, errBody)
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(errBody[:n]))
	}

	contentType := resp.Header.Get("Content-Type")
	ext := ExtensionForContentType(contentType)
	if ext == "" {
		return "", fmt.Errorf("unable to determine file extension for content type %q", contentType)
	}

	path := filepath.Join(dir, baseName+ext)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	// Cleanup helper, removes the partial file on any error.
	cleanup := func() {
		_ = file.Close()
		_ = os.Remove(path)
	}

	var src io.Reader = resp.Body
	if maxBytes > 0 {
		src = io.LimitReader(resp.Body, maxBytes+1) // +1 to detect overflow
	}

	written, err := io.Copy(file, src)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("download write failed: %w", err)
	}

	if maxBytes > 0 && written > maxBytes {
		cleanup()
		return "", fmt.Errorf("download too large: %d bytes (max %d)", written, maxBytes)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	logger.DebugCF("download", "Download complete", map[string]interface{}{
		"path":          path,
		"bytes_written": written,
	})

	return path, nil
}

// ExtensionForContentType maps a declared Content-Type to a file extension
// (dot included), or "" when the type maps to nothing usable.
func ExtensionForContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}

	// mime.ExtensionsByType returns its candidates alphabetically (".jpe"
	// sorts before ".jpg"), so pin the common types first.
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "audio/mpeg":
		return ".mp3"
	case "text/plain":
		return ".txt"
	}

	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
