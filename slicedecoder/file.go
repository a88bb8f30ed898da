package slicedecoder

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// DecompressFile decompresses a whole zstd-compressed file from srcPath to
// destPath in one shot. It backs the host-facing decompressZstd(srcPath,
// destPath) operation and is independent of the chunked Decoder used
// by the import engine: it exists for hosts that already have the whole
// compressed file on disk and want a plain decode, not a streaming one.
func DecompressFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("slicedecoder: open %s: %w", srcPath, err)
	}
	defer src.Close()

	zr, err := zstd.NewReader(src)
	if err != nil {
		return fmt.Errorf("slicedecoder: zstd.NewReader: %w", err)
	}
	defer zr.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("slicedecoder: create %s: %w", destPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, zr); err != nil {
		return fmt.Errorf("slicedecoder: decompress %s: %w", srcPath, err)
	}
	return dst.Close()
}
