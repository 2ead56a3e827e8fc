package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Audio is the content of a stored upload, ready to send to a backend.
type Audio struct {
	FileID   string
	MIMEType string
	Data     []byte
}

// StoredFile describes an accepted upload.
type StoredFile struct {
	FileID     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	Size       int64     `json:"size"`
	MIMEType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AudioSource gives backends access to uploaded audio by file ID.
type AudioSource interface {
	Open(ctx context.Context, fileID string) (*Audio, error)
}

// DirSource stores uploads as files in a single directory. Each upload is
// named by a generated file ID and accompanied by a JSON metadata sidecar.
type DirSource struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewDirSource creates the directory if needed and returns a source rooted
// there. Uploads larger than maxBytes are rejected.
func NewDirSource(dir string, maxBytes int64, logger *slog.Logger) (*DirSource, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: upload directory cannot be empty", ErrInvalidConfig)
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("%w: max upload size must be positive", ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &DirSource{
		dir:      dir,
		maxBytes: maxBytes,
		logger:   logger.With("component", "audio_store"),
	}, nil
}

// Save streams r into the store. The content must be recognisable as audio.
func (s *DirSource) Save(ctx context.Context, fileName string, r io.Reader) (StoredFile, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if closeErr != nil {
		return StoredFile{}, fmt.Errorf("failed to write upload: %w", closeErr)
	}
	if n > s.maxBytes {
		return StoredFile{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	if n == 0 {
		return StoredFile{}, fmt.Errorf("%w: empty file", ErrUnsupportedMedia)
	}

	mtype, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to detect media type: %w", err)
	}
	if !IsAudio(mtype) {
		return StoredFile{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
	}

	stored := StoredFile{
		FileID:     uuid.NewString(),
		FileName:   filepath.Base(strings.TrimSpace(fileName)),
		Size:       n,
		MIMEType:   mtype.String(),
		UploadedAt: time.Now().UTC(),
	}
	if stored.FileName == "." || stored.FileName == string(filepath.Separator) {
		stored.FileName = stored.FileID + mtype.Extension()
	}

	meta, err := json.Marshal(stored)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to encode upload metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(stored.FileID), meta, 0o640); err != nil {
		return StoredFile{}, fmt.Errorf("failed to write upload metadata: %w", err)
	}
	if err := os.Rename(tmpPath, s.dataPath(stored.FileID)); err != nil {
		_ = os.Remove(s.metaPath(stored.FileID))
		return StoredFile{}, fmt.Errorf("failed to store upload: %w", err)
	}
	committed = true

	s.logger.InfoContext(ctx, "audio stored",
		"file_id", stored.FileID,
		"size", stored.Size,
		"mime_type", stored.MIMEType)
	return stored, nil
}

// Stat returns the metadata recorded for fileID.
func (s *DirSource) Stat(_ context.Context, fileID string) (StoredFile, error) {
	if err := validateFileID(fileID); err != nil {
		return StoredFile{}, err
	}
	raw, err := os.ReadFile(s.metaPath(fileID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StoredFile{}, fmt.Errorf("%w: %s", ErrAudioNotFound, fileID)
		}
		return StoredFile{}, fmt.Errorf("failed to read upload metadata: %w", err)
	}
	var stored StoredFile
	if err := json.Unmarshal(raw, &stored); err != nil {
		return StoredFile{}, fmt.Errorf("failed to decode upload metadata: %w", err)
	}
	return stored, nil
}

// Open implements AudioSource.
func (s *DirSource) Open(_ context.Context, fileID string) (*Audio, error) {
	if err := validateFileID(fileID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.dataPath(fileID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAudioNotFound, fileID)
		}
		return nil, fmt.Errorf("failed to read audio %s: %w", fileID, err)
	}
	return &Audio{
		FileID:   fileID,
		MIMEType: mediaType(mimetype.Detect(data)),
		Data:     data,
	}, nil
}

// Remove deletes an upload and its metadata.
func (s *DirSource) Remove(_ context.Context, fileID string) error {
	if err := validateFileID(fileID); err != nil {
		return err
	}
	err := os.Remove(s.dataPath(fileID))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrAudioNotFound, fileID)
	}
	if err != nil {
		return fmt.Errorf("failed to remove audio %s: %w", fileID, err)
	}
	_ = os.Remove(s.metaPath(fileID))
	return nil
}

func (s *DirSource) dataPath(fileID string) string {
	return filepath.Join(s.dir, fileID+".audio")
}

func (s *DirSource) metaPath(fileID string) string {
	return filepath.Join(s.dir, fileID+".json")
}

// validateFileID only admits generated IDs, which also keeps paths inside
// the store directory.
func validateFileID(fileID string) error {
	if _, err := uuid.Parse(fileID); err != nil {
		return fmt.Errorf("%w: %q", ErrAudioNotFound, fileID)
	}
	return nil
}

// IsAudio reports whether a detected type is one the transcription backends
// accept: any audio type plus the common audio-bearing containers.
func IsAudio(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") ||
			m.Is("video/mp4") || m.Is("video/webm") || m.Is("application/ogg") {
			return true
		}
	}
	return false
}

// mediaType strips parameters from a detected type.
func mediaType(m *mimetype.MIME) string {
	t, _, _ := strings.Cut(m.String(), ";")
	return strings.TrimSpace(t)
}
