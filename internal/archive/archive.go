// Package archive packages a build output directory for distribution as a
// zstd compressed tarball with a CRC64 fingerprint sidecar.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/addonpack/internal/telemetry"
)

// Extension is appended to the package name for the archive file.
const Extension = ".tar.zst"

// FingerprintExtension is appended to the archive path for the sidecar file.
const FingerprintExtension = ".crc64"

var (
	ErrFingerprintMismatch = errors.New("archive fingerprint mismatch")
	ErrUnsafePath          = errors.New("archive entry escapes destination")
	ErrDuplicateEntry      = errors.New("archive entry already exists")
)

// Result describes a created archive.
type Result struct {
	Path        string
	Fingerprint string
	Files       int
	Bytes       int64
}

// Create writes every file under srcDir to dst as a tar stream compressed with
// zstd. Entries are written in lexical order with zeroed timestamps and
// ownership so identical trees produce identical archives. Each of extras is
// added at the root of the archive under its base name, ahead of the tree.
// The fingerprint is written next to the archive.
func Create(ctx context.Context, srcDir, dst string, extras ...string) (*Result, error) {
	srcDir, err := filepath.Abs(srcDir)
	if err != nil {
		return nil, err
	}
	dst, err = filepath.Abs(dst)
	if err != nil {
		return nil, err
	}

	for _, extra := range extras {
		if _, err := os.Lstat(filepath.Join(srcDir, filepath.Base(extra))); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, filepath.Base(extra))
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}

	file, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	result, err := write(ctx, srcDir, dst, extras, file)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close archive: %w", closeErr)
	}
	if err != nil {
		os.Remove(dst) // partial archive
		return nil, err
	}

	if err := os.WriteFile(dst+FingerprintExtension, []byte(result.Fingerprint+"\n"), 0o644); err != nil { //nolint:gosec // published artifact
		return nil, fmt.Errorf("failed to write fingerprint: %w", err)
	}

	telemetry.GetMetrics().ArchiveBytes.Record(ctx, result.Bytes)

	log.Info().
		Str("archive", dst).
		Str("fingerprint", result.Fingerprint).
		Int("files", result.Files).
		Int64("bytes", result.Bytes).
		Msg("Archive created")

	return result, nil
}

func write(ctx context.Context, srcDir, dst string, extras []string, out io.Writer) (*Result, error) {
	hash := crc64nvme.New()
	counter := &countingWriter{}

	enc, err := zstd.NewWriter(io.MultiWriter(out, hash, counter), zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	tw := tar.NewWriter(enc)
	files := 0

	for _, extra := range extras {
		if err := addFile(tw, filepath.Base(extra), extra); err != nil {
			enc.Close()
			return nil, err
		}
		files++
	}

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == srcDir || path == dst || path == dst+FingerprintExtension {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			log.Debug().Str("path", rel).Msg("Skipping non-regular file")
			return nil
		}

		if err := tw.WriteHeader(header(filepath.ToSlash(rel), info)); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", rel, err)
		}
		if info.IsDir() {
			return nil
		}

		if err := copyInto(tw, path); err != nil {
			return err
		}
		files++
		return nil
	})
	if walkErr != nil {
		enc.Close()
		return nil, walkErr
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to close tar stream: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to close encoder: %w", err)
	}

	return &Result{
		Path:        dst,
		Fingerprint: base58.Encode(hash.Sum(nil)),
		Files:       files,
		Bytes:       counter.n,
	}, nil
}

func header(name string, info fs.FileInfo) *tar.Header {
	hdr := &tar.Header{
		Name:    name,
		ModTime: time.Unix(0, 0),
		Format:  tar.FormatPAX,
	}

	if info.IsDir() {
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		hdr.Mode = 0o755
		return hdr
	}

	hdr.Typeflag = tar.TypeReg
	hdr.Mode = 0o644
	hdr.Size = info.Size()
	return hdr
}

func addFile(tw *tar.Writer, name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("failed to archive %s: not a regular file", path)
	}

	if err := tw.WriteHeader(header(name, info)); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", name, err)
	}
	return copyInto(tw, path)
}

func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}
	return nil
}

// Fingerprint returns the base58 encoded CRC64-NVME checksum of the file.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := crc64nvme.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}

	return base58.Encode(hash.Sum(nil)), nil
}

// Verify checks the archive against its fingerprint sidecar.
func Verify(path string) error {
	expected, err := os.ReadFile(path + FingerprintExtension)
	if err != nil {
		return fmt.Errorf("failed to read fingerprint: %w", err)
	}

	actual, err := Fingerprint(path)
	if err != nil {
		return err
	}

	if strings.TrimSpace(string(expected)) != actual {
		return fmt.Errorf("%w: %s", ErrFingerprintMismatch, path)
	}
	return nil
}

// Extract unpacks the archive into dstDir. Absolute entry names and names
// with parent directory segments are refused with ErrUnsafePath.
func Extract(path, dstDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		if unsafeName(hdr.Name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}

		target := filepath.Join(dstDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dstDir)+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := extractFile(tr, target); err != nil {
				return err
			}
		}
	}
}

func unsafeName(name string) bool {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.IsAbs(name) {
		return true
	}
	return slices.Contains(strings.Split(strings.ReplaceAll(name, `\`, "/"), "/"), "..")
}

func extractFile(r io.Reader, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	out, err := os.Create(target)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil { //nolint:gosec // archives come from Create
		out.Close()
		return err
	}
	return out.Close()
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
