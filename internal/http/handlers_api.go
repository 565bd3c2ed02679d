package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/gateway"
)

// DefaultMaxUploadBytes caps a multipart upload body.
const DefaultMaxUploadBytes = 10 << 20

// uploadField is the multipart field holding the file.
const uploadField = "myFile"

// APIHandlers serves the provider-backed API pages and the file upload.
type APIHandlers struct {
	handlerBase
	UploadDir      string
	MaxUploadBytes int64
}

// GitHub handles GET /api/github. The gateway guarantees a linked GitHub identity.
func (h *APIHandlers) GitHub(w http.ResponseWriter, r *http.Request) {
	h.identityPage(w, r, "api/github", domainauth.ProviderGitHub)
}

// GoogleDrive handles GET /api/google/drive. The gateway guarantees the Drive scope.
func (h *APIHandlers) GoogleDrive(w http.ResponseWriter, r *http.Request) {
	h.identityPage(w, r, "api/google-drive", domainauth.ProviderGoogle)
}

func (h *APIHandlers) identityPage(w http.ResponseWriter, r *http.Request, page string, provider domainauth.Provider) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, _ := rc.Principal.Identity(provider)
	h.render(w, r, page, map[string]any{
		"identity": identityView{
			Provider: id.Provider.String(),
			Email:    id.Email,
			Name:     id.DisplayName,
			Scopes:   id.Scopes,
		},
	})
}

// UploadPage handles GET /api/upload.
func (h *APIHandlers) UploadPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "api/upload", nil)
}

// Upload handles POST /api/upload. The gateway skips the CSRF filter here, so the
// token is checked once the multipart body has been parsed.
func (h *APIHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "upload_too_large", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_multipart", Err: err})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	if !gateway.TokensMatch(rc.CSRFToken(), SubmittedCSRFToken(r)) {
		h.logger().WarnContext(r.Context(), "request denied",
			"method", r.Method,
			"path", r.URL.Path,
			"reason", gateway.ErrCSRFMismatch,
		)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_file", Err: err})
		return
	}
	defer file.Close()

	stored, size, err := h.store(file)
	if err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}

	h.logger().InfoContext(r.Context(), "file uploaded", "name", header.Filename, "stored_as", stored, "bytes", size)
	WriteJSON(w, http.StatusCreated, map[string]any{
		"filename": header.Filename,
		"storedAs": stored,
		"size":     size,
	})
}

// store copies the upload into UploadDir under a generated name.
func (h *APIHandlers) store(src io.Reader) (string, int64, error) {
	if err := os.MkdirAll(h.UploadDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString()
	dst, err := os.OpenFile(filepath.Join(h.UploadDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	n, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}
	return name, n, nil
}
