package cryptox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// BackupExt is the extension of sealed files and export directories.
const BackupExt = ".tgbak"

var gzipMagic = []byte{0x1f, 0x8b}

// SealResult describes a sealed file. Checksum is the SHA-256 of the
// sealed bytes.
type SealResult struct {
	Path           string `json:"path"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`
	EncryptedSize  int64  `json:"encrypted_size"`
	Checksum       string `json:"checksum"`
	Compressed     bool   `json:"compressed"`
}

// OpenResult describes an opened file. Checksum is the SHA-256 of the
// sealed input.
type OpenResult struct {
	Path          string `json:"path"`
	EncryptedSize int64  `json:"encrypted_size"`
	DecryptedSize int64  `json:"decrypted_size"`
	Checksum      string `json:"checksum"`
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SealFile seals the file at in into out (default in + ".tgbak"),
// gzip-compressing it first when compress is set.
func SealFile(in, out, password string, compress bool) (*SealResult, error) {
	if out == "" {
		out = in + BackupExt
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, err
	}

	res := &SealResult{Path: out, OriginalSize: int64(len(data)), Compressed: compress}

	payload := data
	if compress {
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		payload = buf.Bytes()
	}
	res.CompressedSize = int64(len(payload))

	sealed, err := Seal(payload, password)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, sealed, 0o600); err != nil {
		return nil, err
	}

	res.EncryptedSize = int64(len(sealed))
	res.Checksum = checksum(sealed)
	return res, nil
}

// OpenFile reverses SealFile. The default output drops ".tgbak" or else
// appends ".dec". With decompress set, payloads that are not gzip pass
// through unchanged.
func OpenFile(in, out, password string, decompress bool) (*OpenResult, error) {
	if out == "" {
		if strings.HasSuffix(in, BackupExt) {
			out = strings.TrimSuffix(in, BackupExt)
		} else {
			out = in + ".dec"
		}
	}
	sealed, err := os.ReadFile(in)
	if err != nil {
		return nil, err
	}

	data, err := Open(sealed, password)
	if err != nil {
		return nil, err
	}

	if decompress && bytes.HasPrefix(data, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gunzip: %w", err)
		}
	}

	if err := os.WriteFile(out, data, 0o600); err != nil {
		return nil, err
	}
	return &OpenResult{
		Path:          out,
		EncryptedSize: int64(len(sealed)),
		DecryptedSize: int64(len(data)),
		Checksum:      checksum(sealed),
	}, nil
}

// SealDirectory zips every regular file under dir (paths relative to dir),
// seals the zip and writes it next to dir as "<dir>.tgbak".
func SealDirectory(dir, password string) (string, error) {
	dir = filepath.Clean(dir)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate})
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("zip %s: %w", dir, err)
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	sealed, err := Seal(buf.Bytes(), password)
	if err != nil {
		return "", err
	}

	out := filepath.Join(filepath.Dir(dir), filepath.Base(dir)+BackupExt)
	if err := os.WriteFile(out, sealed, 0o600); err != nil {
		return "", err
	}
	return out, nil
}

// OpenDirectory unseals a SealDirectory backup and extracts it into outDir.
func OpenDirectory(backup, outDir, password string) (string, error) {
	sealed, err := os.ReadFile(backup)
	if err != nil {
		return "", err
	}
	data, err := Open(sealed, password)
	if err != nil {
		return "", err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotArchive, err)
	}

	root, err := filepath.Abs(outDir)
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if err := extract(f, root); err != nil {
			return "", err
		}
	}
	return outDir, nil
}

// ErrNotArchive is returned when a backup decrypts but holds no zip.
var ErrNotArchive = errors.New("backup payload is not a zip archive")

func extract(f *zip.File, root string) error {
	target := filepath.Join(root, filepath.FromSlash(f.Name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry %q escapes output directory", f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
