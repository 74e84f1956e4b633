package localfs

import (
	"mime"
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

// Release artifacts that the system MIME database often lacks
var artifactTypes = map[string]string{
	".zip":      "application/zip",
	".gz":       "application/gzip",
	".tgz":      "application/gzip",
	".tar":      "application/x-tar",
	".bz2":      "application/x-bzip2",
	".xz":       "application/x-xz",
	".7z":       "application/x-7z-compressed",
	".jar":      "application/java-archive",
	".deb":      "application/vnd.debian.binary-package",
	".rpm":      "application/x-rpm",
	".apk":      "application/vnd.android.package-archive",
	".msi":      "application/x-msdownload",
	".exe":      "application/x-msdownload",
	".dmg":      "application/x-apple-diskimage",
	".pkg":      "application/octet-stream",
	".txt":      "text/plain",
	".md":       "text/markdown",
	".json":     "application/json",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".sig":      "application/pgp-signature",
	".asc":      "application/pgp-signature",
	".sha256":   "text/plain",
	".sbom":     "application/json",
	".wasm":     "application/wasm",
	".pdf":      "application/pdf",
	".nupkg":    "application/zip",
	".vsix":     "application/zip",
	".checksum": "text/plain",
}

// MIME infers content types from file names
type MIME struct{}

// NewMIME returns a MIME resolver
func NewMIME() *MIME {
	return &MIME{}
}

// TypeOf returns the content type for fileName, falling back to
// application/octet-stream for unknown extensions.
func (x *MIME) TypeOf(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		return defaultContentType
	}
	if t, ok := artifactTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultContentType
}
