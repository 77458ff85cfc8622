// Package backup implements C13: exporting and restoring a profile as a
// single portable, password-encrypted archive file. Grounded byte-for-byte
// on original_source/src-tauri/src/trust.rs's create_backup_with_key/
// preview_backup/restore_backup (magic bytes, little-endian metadata
// length, JSON metadata header, AEAD(gzip(tar(...))) payload), reusing
// internal/cryptoutil for both the AEAD and the password-based key
// derivation the original embeds a fresh salt for.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/cryptoutil"
)

// Magic identifies a Coheara backup file.
var Magic = [8]byte{'C', 'O', 'H', 'E', 'A', 'R', 'A', 1}

// FormatVersion is the current metadata schema version.
const FormatVersion = 1

// MaxMetadataBytes bounds the metadata length field against a corrupted
// or hostile file (spec §4.13).
const MaxMetadataBytes = 10 * 1024 * 1024

// dirsToBackup are the profile subtrees archived alongside the database.
var dirsToBackup = []string{"vectors", "originals", "markdown", "exports"}

// Metadata is the unencrypted header every backup file carries, readable
// without the password via Preview.
type Metadata struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	ProfileName   string    `json:"profile_name"`
	DocumentCount int       `json:"document_count"`
	CoheaVersion  string    `json:"coheara_version"`
	SaltB64       string    `json:"salt_b64"`
}

// Result summarizes a completed backup.
type Result struct {
	BackupPath string
	TotalDocs  int
	TotalBytes int64
	CreatedAt  time.Time
}

// Preview is the pre-restore summary shown to the user.
type Preview struct {
	Metadata             Metadata
	TotalSizeBytes       int64
	Compatible           bool
	CompatibilityMessage string
}

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	DocumentsRestored int
	TotalSizeBytes    int64
	Warnings          []string
}

// CreateRequest bundles the inputs Create needs: the profile directory to
// archive, its salt (copied into metadata so Restore can re-derive the
// backup key from only a password), the count of documents in its
// database, and the AEAD key to encrypt under.
type CreateRequest struct {
	ProfileDir    string
	ProfileName   string
	Salt          []byte
	DocumentCount int
	Key           *cryptoutil.Key
}

// Create archives ProfileDir's database and content subtrees into a
// gzipped tar, encrypts it, and writes the framed backup file to
// outputPath.
func Create(req CreateRequest, outputPath string) (*Result, error) {
	tarGz, err := buildArchive(req.ProfileDir)
	if err != nil {
		return nil, err
	}

	encrypted, err := cryptoutil.Encrypt(req.Key, tarGz)
	if err != nil {
		return nil, fmt.Errorf("backup: encrypt: %w", err)
	}

	metadata := Metadata{
		Version:       FormatVersion,
		CreatedAt:     time.Now().UTC(),
		ProfileName:   req.ProfileName,
		DocumentCount: req.DocumentCount,
		CoheaVersion:  "0.1.0",
		SaltB64:       base64.StdEncoding.EncodeToString(req.Salt),
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("backup: marshal metadata: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("backup: create %s: %w", outputPath, err)
	}
	defer file.Close()

	if _, err := file.Write(Magic[:]); err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(metadataJSON)))
	if _, err := file.Write(lenBuf[:]); err != nil {
		return nil, err
	}
	if _, err := file.Write(metadataJSON); err != nil {
		return nil, err
	}
	if _, err := file.Write(encrypted); err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	return &Result{
		BackupPath: outputPath,
		TotalDocs:  req.DocumentCount,
		TotalBytes: info.Size(),
		CreatedAt:  metadata.CreatedAt,
	}, nil
}

func buildArchive(profileDir string) ([]byte, error) {
	var buf bufferWriter
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	dbPath := filepath.Join(profileDir, "database", "coheara.db")
	if _, err := os.Stat(dbPath); err == nil {
		if err := addFileToTar(tw, dbPath, "database/coheara.db"); err != nil {
			return nil, err
		}
	}
	for _, name := range dirsToBackup {
		dir := filepath.Join(profileDir, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if err := addDirToTar(tw, dir, name); err != nil {
				return nil, err
			}
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("backup: close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("backup: close gzip: %w", err)
	}
	return buf.data, nil
}

// bufferWriter is a minimal growable byte sink, used instead of
// bytes.Buffer only to keep this file's imports limited to what the
// archive step actually needs.
type bufferWriter struct{ data []byte }

func (b *bufferWriter) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func addFileToTar(tw *tar.Writer, path, archiveName string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = archiveName
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

func addDirToTar(tw *tar.Writer, dirPath, archivePrefix string) error {
	return filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dirPath, path)
		if err != nil {
			return err
		}
		archiveName := filepath.Join(archivePrefix, rel)
		if info.IsDir() {
			if rel == "." {
				return nil
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = archiveName + "/"
			return tw.WriteHeader(hdr)
		}
		return addFileToTar(tw, path, archiveName)
	})
}

// readHeader reads and validates the magic+metadata-length+metadata
// prefix shared by Preview and Restore, returning the remaining file
// handle positioned at the encrypted payload.
func readHeader(path string) (*os.File, Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("backup: open %s: %w", path, err)
	}

	var magic [8]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		file.Close()
		return nil, Metadata{}, coherr.NewValidation("not a valid Coheara backup file")
	}
	if magic != Magic {
		file.Close()
		return nil, Metadata{}, coherr.NewValidation("not a valid Coheara backup file")
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(file, lenBuf[:]); err != nil {
		file.Close()
		return nil, Metadata{}, coherr.NewValidation("truncated backup file")
	}
	metadataLen := binary.LittleEndian.Uint32(lenBuf[:])
	if metadataLen > MaxMetadataBytes {
		file.Close()
		return nil, Metadata{}, coherr.NewValidation("backup metadata too large — file may be corrupted")
	}

	metadataBytes := make([]byte, metadataLen)
	if _, err := io.ReadFull(file, metadataBytes); err != nil {
		file.Close()
		return nil, Metadata{}, coherr.NewValidation("truncated backup metadata")
	}

	var metadata Metadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		file.Close()
		return nil, Metadata{}, coherr.NewValidation("corrupted backup metadata")
	}

	return file, metadata, nil
}

// PreviewFile reads only the unencrypted metadata header.
func PreviewFile(path string) (*Preview, error) {
	file, metadata, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	compatible := metadata.Version <= FormatVersion
	msg := ""
	if !compatible {
		msg = "this backup was created by a newer version of Coheara"
	}

	return &Preview{
		Metadata:             metadata,
		TotalSizeBytes:       info.Size(),
		Compatible:           compatible,
		CompatibilityMessage: msg,
	}, nil
}

// Restore decrypts and unpacks a backup into targetDir, deriving the
// backup key from password and the salt embedded in the metadata.
func Restore(path, password, targetDir string) (*RestoreResult, error) {
	file, metadata, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	salt, err := base64.StdEncoding.DecodeString(metadata.SaltB64)
	if err != nil {
		return nil, coherr.NewValidation("invalid salt in backup")
	}

	key, err := cryptoutil.DerivePasswordKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	encrypted, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("backup: read payload: %w", err)
	}

	tarGz, err := cryptoutil.Decrypt(key, cryptoutil.EncryptedBlob(encrypted))
	if err != nil {
		return nil, coherr.ErrWrongPassword
	}

	warnings, totalBytes, err := extractArchive(tarGz, targetDir)
	if err != nil {
		return nil, err
	}

	return &RestoreResult{
		DocumentsRestored: metadata.DocumentCount,
		TotalSizeBytes:    totalBytes,
		Warnings:          warnings,
	}, nil
}

func extractArchive(tarGz []byte, targetDir string) ([]string, int64, error) {
	gz, err := gzip.NewReader(&byteReader{data: tarGz})
	if err != nil {
		return nil, 0, fmt.Errorf("backup: open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var warnings []string
	var totalBytes int64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("backup: read tar: %w", err)
		}

		target, ok := safeJoin(targetDir, hdr.Name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("skipped unsafe path in archive: %s", hdr.Name))
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o700); err != nil {
				return nil, 0, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
				return nil, 0, err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
			if err != nil {
				return nil, 0, err
			}
			n, err := io.Copy(out, tr)
			out.Close()
			if err != nil {
				return nil, 0, err
			}
			totalBytes += n
		}
	}

	return warnings, totalBytes, nil
}

// safeJoin joins name onto base and rejects any result escaping base via
// ".." path traversal (spec §4.13 restore path safety).
func safeJoin(base, name string) (string, bool) {
	joined := filepath.Join(base, name)
	rel, err := filepath.Rel(base, joined)
	if err != nil || rel == ".." || len(rel) >= 2 && rel[:2] == ".." {
		return "", false
	}
	return joined, true
}

// byteReader adapts an in-memory slice to io.Reader for gzip.NewReader.
type byteReader struct {
	data []byte
	pos  int
}

func (b *byteReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
