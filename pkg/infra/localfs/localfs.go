package localfs

import (
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
)

// FileSystem reads asset files from the local disk
type FileSystem struct{}

// New returns a FileSystem backed by the os package
func New() *FileSystem {
	return &FileSystem{}
}

// Open opens path for streaming. The caller closes it.
func (x *FileSystem) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open file", goerr.V("path", path))
	}
	return f, nil
}

// Size returns the byte size of a regular file
func (x *FileSystem) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to stat file", goerr.V("path", path))
	}
	if info.IsDir() {
		return 0, goerr.New("asset path is a directory", goerr.V("path", path))
	}
	return info.Size(), nil
}
