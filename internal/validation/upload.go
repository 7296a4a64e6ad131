// Package validation provides input validation for marketplace uploads. Archive and
// preview-image checks run purely over declared metadata (MIME type, size, file name)
// before any storage or database I/O, so invalid uploads are rejected without
// consuming network round-trips or storage. There is deliberately no content
// sniffing here — the security scan step inspects archive contents later in the
// pipeline.
package validation

import (
	"fmt"
	"strings"
)

const (
	// MinArchiveSize is the smallest accepted archive (1KB). Anything below this
	// is not a plausible template archive.
	MinArchiveSize = 1024

	// MaxArchiveSize is the largest accepted archive (100MB).
	MaxArchiveSize = 100 * 1024 * 1024

	// MaxImageSize is the largest accepted preview image (10MB).
	MaxImageSize = 10 * 1024 * 1024

	// MaxFileNameLength is the longest accepted file name.
	MaxFileNameLength = 255

	// forbiddenNameChars are rejected anywhere in a file name; they are either
	// path separators or characters invalid on common filesystems.
	forbiddenNameChars = `<>:"/\|?*`
)

// archiveMIMETypes is the allow-list of declared archive content types.
var archiveMIMETypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/gzip":             true,
	"application/x-gzip":           true,
	"application/x-tar":            true,
	"application/x-compressed-tar": true,
	"application/x-rar-compressed": true,
	"application/vnd.rar":          true,
	"application/octet-stream":     true, // browsers fall back to this for .tar.gz
}

// archiveExtensions is the allow-list of archive file name suffixes.
var archiveExtensions = []string{".zip", ".tar.gz", ".rar", ".tgz"}

// imageMIMETypes is the allow-list of declared preview image content types.
var imageMIMETypes = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
}

// FileMeta describes an upload by metadata only. Handlers populate it from the
// multipart part header without reading the body.
type FileMeta struct {
	Name        string
	Size        int64
	ContentType string
}

// Result is the outcome of a validation check. Validation never returns a Go
// error and never has side effects; an invalid file produces Valid=false with a
// human-readable Reason suitable for direct display.
type Result struct {
	Valid  bool
	Reason string
}

func invalid(format string, args ...interface{}) Result {
	return Result{Valid: false, Reason: fmt.Sprintf(format, args...)}
}

var ok = Result{Valid: true}

// ValidateArchive checks a template archive upload against the type, extension,
// size, and name constraints. All checks are metadata-only.
func ValidateArchive(f FileMeta) Result {
	if r := validateName(f.Name); !r.Valid {
		return r
	}

	if !archiveMIMETypes[strings.ToLower(f.ContentType)] {
		return invalid("unsupported archive type %q; upload a .zip, .tar.gz, .tgz, or .rar archive", f.ContentType)
	}

	if !hasArchiveExtension(f.Name) {
		return invalid("file name must end with one of: %s", strings.Join(archiveExtensions, ", "))
	}

	if f.Size < MinArchiveSize {
		return invalid("archive is too small (%d bytes); minimum is %d bytes", f.Size, MinArchiveSize)
	}
	if f.Size > MaxArchiveSize {
		return invalid("archive is too large (%d bytes); maximum is %d bytes", f.Size, MaxArchiveSize)
	}

	return ok
}

// ValidateImage checks a preview image upload. Same failure contract as
// ValidateArchive.
func ValidateImage(f FileMeta) Result {
	if r := validateName(f.Name); !r.Valid {
		return r
	}

	if !imageMIMETypes[strings.ToLower(f.ContentType)] {
		return invalid("unsupported image type %q; upload a JPEG, PNG, GIF, WebP, or SVG image", f.ContentType)
	}

	if f.Size > MaxImageSize {
		return invalid("image is too large (%d bytes); maximum is %d bytes", f.Size, MaxImageSize)
	}

	return ok
}

// validateName applies the shared file name safety checks.
func validateName(name string) Result {
	if name == "" {
		return invalid("file name is required")
	}
	if len(name) > MaxFileNameLength {
		return invalid("file name is too long (%d characters); maximum is %d", len(name), MaxFileNameLength)
	}
	if i := strings.IndexAny(name, forbiddenNameChars); i >= 0 {
		return invalid("file name contains forbidden character %q", name[i])
	}
	return ok
}

func hasArchiveExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
