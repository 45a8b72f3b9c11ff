package credentials

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Secret file names expected under the mounted directory.
const (
	fileUsername  = "username"
	filePassword  = "password"
	fileNamespace = "namespace"
	fileDatabase  = "database"
)

// FileSource reads the credential bundle from a mounted secret directory,
// one value per file. The supervisor mounts the directory at some point
// after process start, so Load polls until all four files are readable.
type FileSource struct {
	Dir    string
	Policy WaitPolicy
}

var _ Source = (*FileSource)(nil)

// NewFileSource returns a FileSource rooted at dir.
func NewFileSource(dir string, policy WaitPolicy) *FileSource {
	return &FileSource{Dir: dir, Policy: policy}
}

// Load polls the secret directory until all four values are present or the
// wait is exhausted.
func (s *FileSource) Load(ctx context.Context) (Bundle, error) {
	return s.Policy.poll(ctx, s.readOnce)
}

func (s *FileSource) readOnce(context.Context) (Bundle, error) {
	return Bundle{
		Username:  s.readValue(fileUsername),
		Password:  s.readValue(filePassword),
		Namespace: s.readValue(fileNamespace),
		Database:  s.readValue(fileDatabase),
	}, nil
}

// readValue returns the trimmed file content, or "" if the file is absent
// or unreadable. Absence is expected while the mount settles.
func (s *FileSource) readValue(name string) string {
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
