package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jun/vaultgw/internal/adapter"
	"github.com/jun/vaultgw/internal/logging"
	"github.com/jun/vaultgw/internal/metrics"
	"github.com/jun/vaultgw/internal/model"
	"github.com/jun/vaultgw/internal/retry"
)

const (
	fileFields   = "id, name, mimeType, parents, webViewLink, iconLink, size"
	defaultPage  = 100
	maxPageSize  = 1000
	googleAppsNS = "application/vnd.google-apps."
)

// exportFormats maps native Google document types, which have no binary
// body, to the format they are exported as.
var exportFormats = map[string]struct{ mimeType, ext string }{
	googleAppsNS + "document":     {"application/pdf", ".pdf"},
	googleAppsNS + "spreadsheet":  {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"},
	googleAppsNS + "presentation": {"application/pdf", ".pdf"},
	googleAppsNS + "drawing":      {"application/pdf", ".pdf"},
}

// DriveStore implements adapter.Store for Google Drive.
type DriveStore struct {
	service   *drive.Service
	readRetry retry.Config
	logger    *zap.Logger
}

// NewDriveStore creates a DriveStore.
// client should be an authenticated http.Client for the vault account.
func NewDriveStore(ctx context.Context, client *http.Client, logger *zap.Logger, opts ...option.ClientOption) (*DriveStore, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive client: %w", err)
	}
	return &DriveStore{
		service:   srv,
		readRetry: retry.DefaultConfig(),
		logger:    logging.OrGlobal(logger),
	}, nil
}

// read runs an idempotent call with retries.
func read[T any](ctx context.Context, d *DriveStore, op string, fn func() (T, error)) (T, error) {
	r, err := retry.DoWithResult(ctx, d.readRetry, func(attempt int, err error) {
		metrics.RecordRetry(op)
		logging.WithContext(ctx, d.logger).Debug("retrying remote call",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
	}, func() (T, error) {
		r, err := fn()
		return r, classify(op, err)
	})
	metrics.RecordRemoteCall(op, err)
	return r, err
}

// write runs a mutating call exactly once.
func write[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	r, err := retry.DoWithResult(ctx, retry.NoRetry(), nil, func() (T, error) {
		r, err := fn()
		return r, classify(op, err)
	})
	metrics.RecordRemoteCall(op, err)
	return r, err
}

// FindFolder returns the first non-trashed folder named name under parentID.
func (d *DriveStore) FindFolder(ctx context.Context, parentID, name string) (*model.ObjectRef, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), adapter.FolderMIMEType, escapeQuery(parentID))

	r, err := read(ctx, d, "find folder", func() (*drive.FileList, error) {
		return d.service.Files.List().
			Q(q).
			PageSize(1).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Fields(googleapi.Field("files(" + fileFields + ")")).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	if len(r.Files) == 0 {
		return nil, adapter.ErrNotFound
	}
	return toRef(r.Files[0]), nil
}

// CreateFolder creates a folder named name under parentID.
func (d *DriveStore) CreateFolder(ctx context.Context, parentID, name string) (*model.ObjectRef, error) {
	f := &drive.File{
		Name:     name,
		MimeType: adapter.FolderMIMEType,
		Parents:  []string{parentID},
	}
	res, err := write(ctx, "create folder", func() (*drive.File, error) {
		return d.service.Files.Create(f).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toRef(res), nil
}

// GetObject reads metadata for id.
func (d *DriveStore) GetObject(ctx context.Context, id string) (*model.ObjectRef, error) {
	res, err := read(ctx, d, "get", func() (*drive.File, error) {
		return d.service.Files.Get(id).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toRef(res), nil
}

// ListFiles lists the non-trashed children of folderID.
func (d *DriveStore) ListFiles(ctx context.Context, folderID string, pageSize int64) ([]model.ObjectRef, error) {
	switch {
	case pageSize <= 0:
		pageSize = defaultPage
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))

	r, err := read(ctx, d, "list", func() (*drive.FileList, error) {
		return d.service.Files.List().
			Q(q).
			PageSize(pageSize).
			OrderBy("folder,name").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Fields(googleapi.Field("files(" + fileFields + ")")).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}

	files := make([]model.ObjectRef, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, *toRef(f))
	}
	return files, nil
}

// Upload creates a file under folderID with content from r.
func (d *DriveStore) Upload(ctx context.Context, r io.Reader, name, mimeType, folderID string) (*model.ObjectRef, error) {
	f := &drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{folderID},
	}
	res, err := write(ctx, "upload", func() (*drive.File, error) {
		return d.service.Files.Create(f).
			Media(r, googleapi.ContentType(mimeType)).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toRef(res), nil
}

// Copy copies id into targetFolderID.
func (d *DriveStore) Copy(ctx context.Context, id, targetFolderID, newName string) (*model.ObjectRef, error) {
	f := &drive.File{Parents: []string{targetFolderID}}
	if newName != "" {
		f.Name = newName
	}
	res, err := write(ctx, "copy", func() (*drive.File, error) {
		return d.service.Files.Copy(id, f).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}
	return toRef(res), nil
}

// Reparent adds addParent and removes removeParents in a single update.
func (d *DriveStore) Reparent(ctx context.Context, id, addParent string, removeParents []string) (*model.ObjectRef, error) {
	res, err := write(ctx, "reparent", func() (*drive.File, error) {
		call := d.service.Files.Update(id, &drive.File{}).
			AddParents(addParent).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx)
		if len(removeParents) > 0 {
			// The API takes one comma-separated list; repeated calls overwrite.
			call = call.RemoveParents(strings.Join(removeParents, ","))
		}
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return toRef(res), nil
}

// Delete permanently deletes id.
func (d *DriveStore) Delete(ctx context.Context, id string) error {
	_, err := write(ctx, "delete", func() (struct{}, error) {
		return struct{}{}, d.service.Files.Delete(id).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	})
	return err
}

// Open starts a streaming read of id. Native Google documents are exported.
func (d *DriveStore) Open(ctx context.Context, id string) (*adapter.Download, error) {
	meta, err := d.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if meta.MIMEType == adapter.FolderMIMEType {
		return nil, fmt.Errorf("open %s: %w: object is a folder", id, adapter.ErrMalformedInput)
	}

	dl := &adapter.Download{
		Name:        meta.Name,
		MIMEType:    meta.MIMEType,
		WebViewLink: meta.WebViewLink,
	}

	var resp *http.Response
	if format, ok := exportFormats[meta.MIMEType]; ok {
		resp, err = read(ctx, d, "export", func() (*http.Response, error) {
			return d.service.Files.Export(id, format.mimeType).Context(ctx).Download()
		})
		dl.MIMEType = format.mimeType
		if !strings.HasSuffix(strings.ToLower(dl.Name), format.ext) {
			dl.Name += format.ext
		}
	} else if strings.HasPrefix(meta.MIMEType, googleAppsNS) {
		return nil, fmt.Errorf("open %s: %w: %s has no downloadable content", id, adapter.ErrMalformedInput, meta.MIMEType)
	} else {
		resp, err = read(ctx, d, "download", func() (*http.Response, error) {
			return d.service.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
		})
	}
	if err != nil {
		return nil, err
	}
	dl.Body = resp.Body
	return dl, nil
}

func toRef(f *drive.File) *model.ObjectRef {
	return &model.ObjectRef{
		ID:          f.Id,
		Name:        f.Name,
		MIMEType:    f.MimeType,
		Parents:     f.Parents,
		WebViewLink: f.WebViewLink,
		IconLink:    f.IconLink,
		Size:        f.Size,
	}
}

// escapeQuery escapes a literal for use inside a quoted Drive query string.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// classify maps a Drive API failure onto the adapter sentinels and marks
// the transient ones retryable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, adapter.ErrNotAuthenticated) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		re := &adapter.RemoteError{
			Op:         op,
			StatusCode: gerr.Code,
			Message:    gerr.Message,
		}
		if re.Message == "" {
			re.Message = strings.TrimSpace(gerr.Body)
		}
		if len(gerr.Errors) > 0 {
			re.Reason = gerr.Errors[0].Reason
		}

		switch {
		case gerr.Code == http.StatusUnauthorized:
			re.Err = adapter.ErrNotAuthenticated
		case gerr.Code == http.StatusNotFound:
			re.Err = adapter.ErrNotFound
		case gerr.Code == http.StatusTooManyRequests:
			re.Err = adapter.ErrQuota
			return retry.Retryable(re)
		case gerr.Code == http.StatusForbidden && isRateLimit(re.Reason):
			re.Err = adapter.ErrQuota
			return retry.Retryable(re)
		case gerr.Code == http.StatusForbidden && re.Reason == "storageQuotaExceeded":
			re.Err = adapter.ErrQuota
		case gerr.Code == http.StatusForbidden:
			re.Err = adapter.ErrPermission
		case gerr.Code >= 500:
			return retry.Retryable(re)
		}
		return re
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return retry.Retryable(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isRateLimit(reason string) bool {
	switch reason {
	case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded":
		return true
	}
	return false
}
