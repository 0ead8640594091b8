package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/uma-arai/barber-booking/internal/common/tracing"
	"github.com/uma-arai/barber-booking/internal/model"
)

// SchemaVersion はファイルストアの現行スキーマです
const SchemaVersion = 1

const (
	lockRetryDelay = 50 * time.Millisecond
	lockTimeout    = 30 * time.Second
)

type fileDocument struct {
	SchemaVersion int                 `json:"schema_version"`
	Reservations  []model.Reservation `json:"reservations"`
}

// FileStore はJSONファイルに予約を保存します
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore は新しいFileStoreを作成します。ファイルは最初の保存時に作られます
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Load はファイルから全予約を読み込みます
// ファイルがない、または空の場合は空のコレクションを返します
// 壊れたファイルは退避し、空のコレクションとして扱います
func (s *FileStore) Load(ctx context.Context) ([]model.Reservation, error) {
	_, end := tracing.Start(ctx, "FileStore.Load")

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		end(nil)
		return []model.Reservation{}, nil
	}
	if err != nil {
		end(err)
		return nil, &model.StoreError{Op: "load", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		end(nil)
		return []model.Reservation{}, nil
	}

	reservations, err := decode(data)
	if err != nil {
		log.Printf("Reservation store %s is corrupt: %v", s.path, err)
		if qErr := s.quarantine(); qErr != nil {
			end(qErr)
			return nil, &model.StoreError{Op: "quarantine", Err: qErr}
		}
		end(nil)
		return []model.Reservation{}, nil
	}

	end(nil)
	return reservations, nil
}

// Save は書き込みロックを取得したうえで全予約を置き換えます
func (s *FileStore) Save(ctx context.Context, reservations []model.Reservation) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return &model.StoreError{Op: "lock", Err: err}
	}
	defer unlock()
	return s.save(ctx, reservations)
}

// Mutate は書き込みロックを保持したまま読み込み、fn の結果を保存します
// ロックは同じファイルを使う別プロセス (デーモンとバッチなど) の間でも有効です
func (s *FileStore) Mutate(ctx context.Context, fn MutateFunc) error {
	ctx, end := tracing.Start(ctx, "FileStore.Mutate")

	unlock, err := s.lock(ctx)
	if err != nil {
		end(err)
		return &model.StoreError{Op: "lock", Err: err}
	}
	defer unlock()

	current, err := s.Load(ctx)
	if err != nil {
		end(err)
		return err
	}
	next, changed, err := fn(current)
	if err != nil || !changed {
		end(nil)
		return err
	}
	if err := s.save(ctx, next); err != nil {
		end(err)
		return err
	}
	end(nil)
	return nil
}

func (s *FileStore) lock(ctx context.Context) (func(), error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(s.path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock %s", fl.Path())
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Printf("Failed to unlock %s: %v", fl.Path(), err)
		}
	}, nil
}

func (s *FileStore) save(ctx context.Context, reservations []model.Reservation) error {
	_, end := tracing.Start(ctx, "FileStore.Save")

	if reservations == nil {
		reservations = []model.Reservation{}
	}
	data, err := json.MarshalIndent(fileDocument{SchemaVersion: SchemaVersion, Reservations: reservations}, "", "  ")
	if err != nil {
		end(err)
		return &model.StoreError{Op: "save", Err: err}
	}

	if err := s.writeAtomic(data); err != nil {
		end(err)
		return &model.StoreError{Op: "save", Err: err}
	}

	end(nil)
	return nil
}

func (s *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) quarantine() error {
	dest := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().Format("20060102-150405"))
	if err := os.Rename(s.path, dest); err != nil {
		return fmt.Errorf("failed to quarantine %s: %w", s.path, err)
	}
	log.Printf("Quarantined corrupt reservation store to %s", dest)
	return nil
}

// decode はバージョン付き文書と旧形式の配列の両方を受け付けます
func decode(data []byte) ([]model.Reservation, error) {
	trimmed := bytes.TrimSpace(data)
	if trimmed[0] == '[' {
		var legacy []model.Reservation
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, err
		}
		return nonNil(legacy), nil
	}

	var doc fileDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	if doc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", doc.SchemaVersion)
	}
	return nonNil(doc.Reservations), nil
}

func nonNil(rs []model.Reservation) []model.Reservation {
	if rs == nil {
		return []model.Reservation{}
	}
	return rs
}
