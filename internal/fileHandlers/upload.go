package fileHandlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	ErrTooManyFiles   = errors.New("too many files")
	ErrFileTooLarge   = errors.New("file too large")
	ErrTypeNotAllowed = errors.New("file type not allowed")
)

type Limits struct {
	MaxFileSize int64
	MaxFiles    int
}

type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MessageForm is a multipart message post: text fields plus files.
type MessageForm struct {
	Content string
	Files   []Upload
}

// UploadError describes which file broke a limit.
type UploadError struct {
	Err      error
	Filename string
	Detail   string
}

func (e *UploadError) Error() string {
	return e.Detail
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ParseMessageForm streams a multipart body, reading the "content" field and
// every "files" part while enforcing limits.
func ParseMessageForm(r *http.Request, limits Limits) (*MessageForm, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	form := &MessageForm{}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch part.FormName() {
		case "content":
			b, err := io.ReadAll(io.LimitReader(part, 64<<10))
			part.Close()
			if err != nil {
				return nil, err
			}
			form.Content = string(b)
		case "files":
			if len(form.Files) >= limits.MaxFiles {
				part.Close()
				return nil, &UploadError{Err: ErrTooManyFiles, Detail: fmt.Sprintf("At most %d files can be attached", limits.MaxFiles)}
			}
			upload, err := readFilePart(part, limits)
			part.Close()
			if err != nil {
				return nil, err
			}
			form.Files = append(form.Files, *upload)
		default:
			part.Close()
		}
	}

	return form, nil
}

func readFilePart(part *multipart.Part, limits Limits) (*Upload, error) {
	filename := filepath.Base(strings.ReplaceAll(part.FileName(), "\\", "/"))
	if filename == "." || filename == "/" || filename == "" {
		filename = "file"
	}

	contentType := NormalizeMime(part.Header.Get("Content-Type"))
	if !Allowed(contentType) {
		return nil, &UploadError{Err: ErrTypeNotAllowed, Filename: filename, Detail: fmt.Sprintf("File type not allowed: %s", contentType)}
	}

	// read one byte past the limit to detect oversized files
	data, err := io.ReadAll(io.LimitReader(part, limits.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limits.MaxFileSize {
		return nil, &UploadError{Err: ErrFileTooLarge, Filename: filename, Detail: fmt.Sprintf("File %s exceeds the %d MB limit", filename, limits.MaxFileSize>>20)}
	}

	return &Upload{Filename: filename, ContentType: contentType, Data: data}, nil
}
