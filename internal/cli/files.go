package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunFiles — файлы одного запуска: data, state и log.
type RunFiles struct {
	// Dir — каталог запуска.
	Dir string

	Data  *os.File
	State *os.File
	Log   *os.File
}

// NewRunID создаёт человекочитаемый идентификатор запуска:
// короткий префикс UUID плюс отметка времени.
func NewRunID() string {
	short := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return fmt.Sprintf("%s_%s", short, time.Now().Format("20060102T150405"))
}

// DefaultRunsDir возвращает базовый каталог запусков.
func DefaultRunsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".golemata"
	}
	return filepath.Join(home, ".golemata", "runs")
}

// OpenRunFiles создаёт каталог запуска и открывает файлы data,
// state и log. Существующие файлы обрезаются.
func OpenRunFiles(baseDir, runID string) (*RunFiles, error) {
	dir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	rf := &RunFiles{Dir: dir}
	var err error
	if rf.Data, err = openTruncated(filepath.Join(dir, "data")); err != nil {
		return nil, err
	}
	if rf.State, err = openTruncated(filepath.Join(dir, "state")); err != nil {
		rf.Close()
		return nil, err
	}
	if rf.Log, err = openTruncated(filepath.Join(dir, "log")); err != nil {
		rf.Close()
		return nil, err
	}
	return rf, nil
}

// Close закрывает все открытые файлы запуска.
func (rf *RunFiles) Close() {
	for _, f := range []*os.File{rf.Data, rf.State, rf.Log} {
		if f != nil {
			f.Close()
		}
	}
}

// openTruncated открывает файл на запись, обрезая прежнее содержимое.
func openTruncated(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
