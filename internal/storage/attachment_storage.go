package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

// Сколько байт читаем для определения типа по сигнатуре.
const sniffLen = 8192

// docx это zip-архив, старые версии сигнатур видят только zip.
var containerAliases = map[string]string{
	".docx": "zip",
}

// AttachmentStorage хранит вложения к заказам на диске.
type AttachmentStorage struct {
	rootPath       string
	maxUploadBytes int64
	allowed        map[string]struct{}
}

// NewAttachmentStorage создаёт файловое хранилище. allowed это расширения вида ".pdf".
func NewAttachmentStorage(rootPath string, maxUploadBytes int64, allowed []string) (*AttachmentStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	set := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		set[strings.ToLower(ext)] = struct{}{}
	}

	return &AttachmentStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadBytes,
		allowed:        set,
	}, nil
}

// Save сохраняет документ пользователя и возвращает путь относительно корня хранилища.
// Содержимое проверяется по сигнатуре: расширение в имени должно соответствовать данным.
func (s *AttachmentStorage) Save(ctx context.Context, userID int64, originalName string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	ext := strings.ToLower(filepath.Ext(sanitizeFilename(originalName)))
	if _, ok := s.allowed[ext]; !ok {
		return "", 0, apperror.Newf(apperror.ErrCodeValidation, "формат %q не поддерживается", ext)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", 0, fmt.Errorf("storage: ошибка чтения файла: %w", err)
	}
	head = head[:n]

	if err := s.checkContent(ext, head); err != nil {
		return "", 0, err
	}

	userDir := strconv.FormatInt(userID, 10)
	if err := os.MkdirAll(filepath.Join(s.rootPath, userDir), 0o755); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать каталог пользователя: %w", err)
	}

	fileName := uuid.NewString() + ext
	relative := filepath.Join(userDir, fileName)
	targetPath := filepath.Join(s.rootPath, relative)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	limited := io.LimitedReader{R: io.MultiReader(bytes.NewReader(head), r), N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limited)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return "", 0, apperror.Newf(apperror.ErrCodeValidation,
			"файл слишком большой, максимум %d МБ", s.maxUploadBytes/(1024*1024))
	}

	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	return relative, written, nil
}

// checkContent сверяет сигнатуру с заявленным расширением.
// Текстовые файлы сигнатуры не имеют, для них проверяем отсутствие двоичных данных.
func (s *AttachmentStorage) checkContent(ext string, head []byte) error {
	if len(head) == 0 {
		return apperror.New(apperror.ErrCodeValidation, "файл пустой")
	}

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		if ext == ".txt" && !bytes.ContainsRune(head, 0) {
			return nil
		}
		return apperror.New(apperror.ErrCodeValidation, "не удалось определить тип файла")
	}

	if "."+kind.Extension == ext {
		return nil
	}
	if alias, ok := containerAliases[ext]; ok && alias == kind.Extension {
		return nil
	}

	return apperror.Newf(apperror.ErrCodeValidation,
		"содержимое файла (%s) не совпадает с расширением %s", kind.MIME.Value, ext)
}

// Path возвращает абсолютный путь к сохранённому файлу.
func (s *AttachmentStorage) Path(relativePath string) string {
	return filepath.Join(s.rootPath, filepath.Clean("/"+relativePath))
}

// Delete удаляет файл из хранилища.
func (s *AttachmentStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.Path(relativePath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// ListStale возвращает пути файлов, не менявшихся с cutoff, относительно корня хранилища.
func (s *AttachmentStorage) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	var stale []string
	err := filepath.WalkDir(s.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		relative, err := filepath.Rel(s.rootPath, path)
		if err != nil {
			return err
		}
		stale = append(stale, relative)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: обход каталога: %w", err)
	}
	return stale, nil
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "document"
	}
	return name
}
