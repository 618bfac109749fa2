package fileHandlers

import (
	"mime"
	"strings"

	"chathub-backend/internal/models"
)

var allowedMimes = map[string]struct{}{
	// images
	"image/jpeg":    {},
	"image/png":     {},
	"image/gif":     {},
	"image/webp":    {},
	"image/svg+xml": {},
	// documents
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel":                                                  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	// text
	"text/plain":    {},
	"text/csv":      {},
	"text/html":     {},
	"text/markdown": {},
	// archives
	"application/zip":              {},
	"application/x-rar-compressed": {},
	"application/x-7z-compressed":  {},
	// code
	"application/json":       {},
	"application/javascript": {},
	"text/javascript":        {},
	"application/xml":        {},
	// media
	"audio/mpeg": {},
	"audio/wav":  {},
	"audio/ogg":  {},
	"video/mp4":  {},
	"video/webm": {},
	"video/ogg":  {},
}

// NormalizeMime lowercases a Content-Type value and strips its parameters.
func NormalizeMime(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func Allowed(mimeType string) bool {
	_, ok := allowedMimes[NormalizeMime(mimeType)]
	return ok
}

// Categorize maps any MIME type to an attachment category. Unknown types are "other".
func Categorize(mimeType string) models.AttachmentType {
	m := NormalizeMime(mimeType)

	switch {
	case strings.HasPrefix(m, "image/"):
		return models.AttachmentImage
	case strings.HasPrefix(m, "video/"):
		return models.AttachmentVideo
	case strings.HasPrefix(m, "audio/"):
		return models.AttachmentAudio
	case strings.Contains(m, "pdf"):
		return models.AttachmentPdf
	case containsAny(m, "document", "word", "excel", "powerpoint", "spreadsheet", "presentation"):
		return models.AttachmentDocument
	case containsAny(m, "zip", "rar", "7z"):
		return models.AttachmentArchive
	case containsAny(m, "text", "json", "xml"):
		return models.AttachmentText
	default:
		return models.AttachmentOther
	}
}

func containsAny(s string, parts ...string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
