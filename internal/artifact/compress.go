package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

var ErrCompressionFailed = errors.New("compression failed")

// CompressGzip compresses inputPath into inputPath+".gz" at maximum
// compression and removes the original on success. On failure the partial
// output is removed and the original is left in place for cleanup by the
// caller.
func CompressGzip(inputPath string) (string, error) {
	outputPath := inputPath + ".gz"

	inFile, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("%w: open input: %v", ErrCompressionFailed, err)
	}
	defer inFile.Close()

	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("%w: create output: %v", ErrCompressionFailed, err)
	}
	defer outFile.Close()

	writer, err := gzip.NewWriterLevel(outFile, gzip.BestCompression)
	if err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("%w: create gzip writer: %v", ErrCompressionFailed, err)
	}

	if _, err := io.Copy(writer, inFile); err != nil {
		writer.Close()
		os.Remove(outputPath)
		return "", fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	// Close flushes the trailer; an error here means a truncated archive.
	if err := writer.Close(); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("%w: finalize archive: %v", ErrCompressionFailed, err)
	}
	if err := outFile.Sync(); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("%w: sync output: %v", ErrCompressionFailed, err)
	}

	if err := os.Remove(inputPath); err != nil {
		return "", fmt.Errorf("%w: remove original: %v", ErrCompressionFailed, err)
	}

	return outputPath, nil
}

// DecompressGzip expands the archive at inputPath into destPath.
func DecompressGzip(inputPath, destPath string) error {
	inFile, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", ErrCorruptArchive, inputPath, err)
	}
	defer inFile.Close()

	reader, err := gzip.NewReader(inFile)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrCorruptArchive, inputPath, err)
	}
	defer reader.Close()

	outFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", destPath, err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, reader); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("%w: %q: %v", ErrCorruptArchive, inputPath, err)
	}
	return nil
}
