package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

var (
	ErrEmptyArtifact     = errors.New("empty artifact")
	ErrMalformedArtifact = errors.New("malformed artifact")
	ErrCorruptArchive    = errors.New("corrupt archive")
)

// DefaultMarkerToken is the token every well-formed export script contains.
const DefaultMarkerToken = "TRANSACTION"

// Validator performs the structural and integrity checks an artifact must
// pass before and after it is committed. Both checks are cheap: the export
// check is a token scan, not a parse, and the archive check is a gzip
// read-through.
type Validator struct {
	// MarkerToken is the token a raw export must contain.
	MarkerToken string
}

// NewValidator returns a Validator using token, or DefaultMarkerToken when
// token is empty.
func NewValidator(token string) *Validator {
	if token == "" {
		token = DefaultMarkerToken
	}
	return &Validator{MarkerToken: token}
}

// ValidateExport checks that the raw export at path is non-empty and
// contains the marker token.
func (v *Validator) ValidateExport(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat %q: %v", ErrMalformedArtifact, path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %q", ErrEmptyArtifact, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", ErrMalformedArtifact, path, err)
	}
	defer f.Close()

	ok, err := containsToken(f, []byte(v.MarkerToken))
	if err != nil {
		return fmt.Errorf("%w: scan %q: %v", ErrMalformedArtifact, path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q has no %q marker", ErrMalformedArtifact, path, v.MarkerToken)
	}
	return nil
}

// ValidateCompressed checks the gzip container at path by reading the whole
// stream through, which exercises the trailer CRC.
func (v *Validator) ValidateCompressed(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", ErrCorruptArchive, path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrCorruptArchive, path, err)
	}
	defer zr.Close()

	if _, err := io.Copy(io.Discard, zr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrCorruptArchive, path, err)
	}
	return nil
}

// containsToken streams r in chunks, keeping a token-sized overlap so a
// match spanning a chunk boundary is still found.
func containsToken(r io.Reader, token []byte) (bool, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 64*1024)
	var carry []byte

	for {
		n, err := br.Read(buf)
		if n > 0 {
			window := append(carry, buf[:n]...)
			if bytes.Contains(window, token) {
				return true, nil
			}
			if len(window) >= len(token)-1 {
				carry = append(carry[:0], window[len(window)-(len(token)-1):]...)
			} else {
				carry = append(carry[:0], window...)
			}
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
}
