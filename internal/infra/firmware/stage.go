package firmware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"home-control/internal/domain"
)

const (
	slotName = "firmware.bin"
	metaName = "firmware.json"

	DefaultMaxSize = 16 << 20
)

var ErrTooLarge = errors.New("firmware exceeds size limit")

// FileStage keeps one firmware binary under dir. A new upload is written to
// a temporary file first and only replaces the slot once it is complete.
type FileStage struct {
	dir     string
	maxSize int64
	now     func() time.Time
	logger  *slog.Logger

	mu sync.Mutex
}

type Option func(*FileStage)

func WithLogger(logger *slog.Logger) Option {
	return func(f *FileStage) { f.logger = logger }
}

func NewFileStage(dir string, maxSize int64, opts ...Option) *FileStage {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	f := &FileStage{
		dir:     dir,
		maxSize: maxSize,
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FileStage) Start(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	return nil
}

func (f *FileStage) Store(ctx context.Context, name string, r io.Reader) (domain.FirmwareArtifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.FirmwareArtifact{}, err
	}
	if err := f.Start(ctx); err != nil {
		return domain.FirmwareArtifact{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "upload-*.tmp")
	if err != nil {
		return domain.FirmwareArtifact{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), io.LimitReader(r, f.maxSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return domain.FirmwareArtifact{}, fmt.Errorf("writing firmware: %w", err)
	}
	if n == 0 {
		return domain.FirmwareArtifact{}, domain.ErrNoArtifact
	}
	if n > f.maxSize {
		return domain.FirmwareArtifact{}, ErrTooLarge
	}

	if name == "" {
		name = slotName
	}
	artifact := domain.FirmwareArtifact{
		ID:       uuid.NewString(),
		Name:     filepath.Base(name),
		Size:     n,
		SHA256:   hex.EncodeToString(hash.Sum(nil)),
		StagedAt: f.now().UTC(),
	}

	if err := os.Rename(tmpPath, f.slotPath()); err != nil {
		return domain.FirmwareArtifact{}, fmt.Errorf("replacing staged firmware: %w", err)
	}
	committed = true

	// The new binary is already in the slot. Without matching metadata Open
	// describes it from the file, so a stale sidecar must not survive.
	if err := f.writeMeta(artifact); err != nil {
		f.logger.Warn("firmware metadata not written", "id", artifact.ID, "error", err)
		os.Remove(filepath.Join(f.dir, metaName))
	}
	return artifact, nil
}

// Open returns the staged binary. Without metadata the artifact is described
// from the file itself.
func (f *FileStage) Open(_ context.Context) (io.ReadCloser, domain.FirmwareArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.slotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.FirmwareArtifact{}, domain.ErrNoArtifact
		}
		return nil, domain.FirmwareArtifact{}, fmt.Errorf("opening staged firmware: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, domain.FirmwareArtifact{}, fmt.Errorf("stat staged firmware: %w", err)
	}
	if info.Size() == 0 {
		file.Close()
		return nil, domain.FirmwareArtifact{}, domain.ErrNoArtifact
	}

	artifact, err := f.readMeta()
	if err != nil || artifact.Size != info.Size() {
		artifact = domain.FirmwareArtifact{
			Name:     slotName,
			Size:     info.Size(),
			StagedAt: info.ModTime().UTC(),
		}
	}
	return file, artifact, nil
}

func (f *FileStage) slotPath() string {
	return filepath.Join(f.dir, slotName)
}

func (f *FileStage) writeMeta(artifact domain.FirmwareArtifact) error {
	raw, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encoding firmware metadata: %w", err)
	}
	path := filepath.Join(f.dir, metaName)
	if err := os.WriteFile(path+".tmp", raw, 0644); err != nil {
		os.Remove(path + ".tmp")
		return fmt.Errorf("writing firmware metadata: %w", err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		os.Remove(path + ".tmp")
		return fmt.Errorf("replacing firmware metadata: %w", err)
	}
	return nil
}

func (f *FileStage) readMeta() (domain.FirmwareArtifact, error) {
	var artifact domain.FirmwareArtifact
	raw, err := os.ReadFile(filepath.Join(f.dir, metaName))
	if err != nil {
		return artifact, err
	}
	err = json.Unmarshal(raw, &artifact)
	return artifact, err
}
