// Package drive implements the cloud file transport: CRUD primitives over
// the Drive v3 API, scoped either to visible folders or to the private
// appDataFolder space. Every operation requires a usable token from the auth
// broker's TokenSource; an ErrInteractiveAuthRequired from the broker passes
// through unchanged so callers can decide whether to prompt.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// FolderMimeType is the Drive sentinel mime type marking folders.
	FolderMimeType = "application/vnd.google-apps.folder"

	// SpaceAppData addresses the private per-application storage area. It is
	// not a folder id: searches there must use the spaces parameter, while
	// uploads name it as a parent. The two addressing modes are not
	// interchangeable in the underlying API.
	SpaceAppData = "appDataFolder"

	jsonContentType = "application/json"
)

// File describes one remote file.
type File struct {
	ID           string
	Name         string
	MimeType     string
	Parents      []string
	ModifiedTime string
	Size         int64
}

// API is the transport surface the sync core programs against. The concrete
// implementation is Service; tests substitute in-memory fakes.
type API interface {
	// CreateFolder creates a folder, optionally under parentID, and returns
	// its id.
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	// FindFolder returns the id of the first non-trashed folder with the
	// exact name, or "" when none exists.
	FindFolder(ctx context.Context, name string) (string, error)
	// FindFile returns the id of the first non-trashed file with the exact
	// name, or "" when none exists. Pass SpaceAppData as parentID to search
	// the private app-data space.
	FindFile(ctx context.Context, name, parentID string) (string, error)
	// Upload creates a new file with the given content and returns its id.
	// Pass SpaceAppData as parentID to place it in the app-data space.
	Upload(ctx context.Context, content, name, parentID string) (string, error)
	// Download returns the raw text content of a file.
	Download(ctx context.Context, fileID string) (string, error)
	// Update overwrites a file's content in place; the id does not change.
	Update(ctx context.Context, fileID, content string) error
	// List returns non-trashed files matching the optional query expression.
	List(ctx context.Context, query string) ([]File, error)
	// Delete removes a file permanently.
	Delete(ctx context.Context, fileID string) error
}

// Error is returned for any non-success response from the Drive API. It
// carries the operation name and HTTP status. Nothing is swallowed at this
// layer; callers decide recovery.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("drive: %s failed: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("drive: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &Error{Op: op, Status: gerr.Code, Err: err}
	}
	return &Error{Op: op, Err: err}
}

// Service is the concrete transport over the Drive v3 client.
type Service struct {
	files *drivev3.FilesService
}

// New builds the transport. Callers normally pass
// option.WithTokenSource(broker.TokenSource()); tests pass an endpoint
// override and a plain HTTP client.
func New(ctx context.Context, opts ...option.ClientOption) (*Service, error) {
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive: create client: %w", err)
	}
	return &Service{files: svc.Files}, nil
}

// CreateFolder implements API.
func (s *Service) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	meta := &drivev3.File{Name: name, MimeType: FolderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	f, err := s.files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", wrapErr("createFolder", err)
	}
	return f.Id, nil
}

// FindFolder implements API.
func (s *Service) FindFolder(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), FolderMimeType)
	list, err := s.files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", wrapErr("findFolder", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

// FindFile implements API.
func (s *Service) FindFile(ctx context.Context, name, parentID string) (string, error) {
	call := s.files.List().Fields("files(id)")

	q := fmt.Sprintf("name='%s' and trashed=false", escapeQuery(name))
	if parentID == SpaceAppData {
		// The app-data space has dedicated addressing: a parent-folder
		// predicate does not match there.
		call = call.Spaces(SpaceAppData)
	} else if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}

	list, err := call.Q(q).Context(ctx).Do()
	if err != nil {
		return "", wrapErr("findFile", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

// Upload implements API. The client encodes a multipart request with a
// metadata part (name + optional parent) and a content part.
func (s *Service) Upload(ctx context.Context, content, name, parentID string) (string, error) {
	meta := &drivev3.File{Name: name}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	f, err := s.files.Create(meta).
		Media(strings.NewReader(content), googleapi.ContentType(jsonContentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapErr("uploadFile", err)
	}
	return f.Id, nil
}

// Download implements API.
func (s *Service) Download(ctx context.Context, fileID string) (string, error) {
	resp, err := s.files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return "", wrapErr("downloadFile", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapErr("downloadFile", err)
	}
	return string(raw), nil
}

// Update implements API.
func (s *Service) Update(ctx context.Context, fileID, content string) error {
	_, err := s.files.Update(fileID, &drivev3.File{}).
		Media(strings.NewReader(content), googleapi.ContentType(jsonContentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return wrapErr("updateFile", err)
	}
	return nil
}

// List implements API.
func (s *Service) List(ctx context.Context, query string) ([]File, error) {
	q := "trashed=false"
	if query != "" {
		q += " and " + query
	}

	list, err := s.files.List().Q(q).
		Fields("files(id,name,mimeType,parents,modifiedTime,size)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapErr("listFiles", err)
	}

	out := make([]File, 0, len(list.Files))
	for _, f := range list.Files {
		out = append(out, File{
			ID:           f.Id,
			Name:         f.Name,
			MimeType:     f.MimeType,
			Parents:      f.Parents,
			ModifiedTime: f.ModifiedTime,
			Size:         f.Size,
		})
	}
	return out, nil
}

// Delete implements API.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	if err := s.files.Delete(fileID).Context(ctx).Do(); err != nil {
		return wrapErr("deleteFile", err)
	}
	return nil
}

// escapeQuery escapes single quotes and backslashes inside a query literal.
func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// Ensure Service implements the transport interface.
var _ API = (*Service)(nil)
