package streams

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// FileReadInterval — интервал опроса файла входящих команд.
const FileReadInterval = time.Second

// FeedFromFile читает строки, дописываемые в файл, и кладёт их в
// очередь out. Пустой хвост файла опрашивается с фиксированным
// интервалом; выход — по отмене контекста.
func FeedFromFile(ctx context.Context, path string, out chan<- any, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(FileReadInterval)
	defer ticker.Stop()

	var partial string
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			msg := partial + line[:len(line)-1]
			partial = ""
			if msg == "" {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if err != io.EOF {
			logger.Error("command file read failed", "path", path, "error", err)
			return err
		}

		// Неполная строка в конце файла — ждём продолжения.
		partial += line

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
