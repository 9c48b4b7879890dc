package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// DetectContentType maps a filename to a MIME content type for outgoing
// attachments, defaulting to application/octet-stream.
func DetectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct := mime.TypeByExtension(ext); ct != "" {
		// strip any charset parameter, attachment headers carry the bare type
		if i := strings.Index(ct, ";"); i > 0 {
			ct = ct[:i]
		}
		return ct
	}
	switch ext {
	case ".md":
		return "text/markdown"
	case ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// ExtensionFromContentType maps a MIME content type to a file extension for
// generated attachment names.
func ExtensionFromContentType(contentType string) string {
	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "jpeg") || strings.Contains(contentType, "jpg"):
		return "jpg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "pdf"):
		return "pdf"
	case strings.Contains(contentType, "zip") || strings.Contains(contentType, "compressed"):
		return "zip"
	case strings.Contains(contentType, "text/plain"):
		return "txt"
	case strings.Contains(contentType, "html"):
		return "html"
	case strings.Contains(contentType, "csv"):
		return "csv"
	case strings.Contains(contentType, "json"):
		return "json"
	case strings.Contains(contentType, "xml"):
		return "xml"
	default:
		return "bin"
	}
}
