package admin

import (
	"context"
	"fmt"
	"freelance-market-bot/internal/logger"
	"freelance-market-bot/internal/tg"
	"go.uber.org/zap"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Backup: дампы Postgres через pg_dump/pg_restore.
type Backup struct {
	dir string
	dsn string
	// run выполняет внешнюю команду; в тестах подменяется.
	run func(ctx context.Context, name string, args ...string) error
	now func() time.Time
}

func NewBackup(dir, dsn string) *Backup {
	return &Backup{
		dir: dir,
		dsn: dsn,
		run: func(ctx context.Context, name string, args ...string) error {
			out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
			}
			return nil
		},
		now: time.Now,
	}
}

// Dump создает дамп БД Postgres и возвращает путь к файлу
func (b *Backup) Dump(ctx context.Context, prefix string) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", err
	}
	filename := filepath.Join(b.dir, prefix+"_"+b.now().Format("20060102_150405")+".dump")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := b.run(ctx, "pg_dump", b.dsn, "-Fc", "-f", filename); err != nil {
		return "", err
	}
	return filename, nil
}

// Restore восстанавливает БД из дампа в каталоге резервных копий
func (b *Backup) Restore(ctx context.Context, name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid backup name %q", name)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return b.run(ctx, "pg_restore", "--clean", "-d", b.dsn, filepath.Join(b.dir, name))
}

// CleanOld удаляет дампы старше maxAge
func (b *Backup) CleanOld(maxAge time.Duration) (int, error) {
	files, err := filepath.Glob(filepath.Join(b.dir, "*backup_*.dump"))
	if err != nil {
		return 0, err
	}
	cutoff := b.now().Add(-maxAge)
	removed := 0
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(f) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Auto делает ночной бэкап по расписанию и затем чистит старые копии.
func (b *Backup) Auto(ctx context.Context) {
	filename, err := b.Dump(ctx, "autobackup")
	if err != nil {
		logger.Error("Auto backup failed", zap.Error(err))
		logger.NotifyAdmin("Ошибка автоматического резервного копирования: " + err.Error())
		return
	}
	if n, err := b.CleanOld(31 * 24 * time.Hour); err != nil {
		logger.Warn("Failed to clean old backups", zap.Error(err))
	} else if n > 0 {
		logger.Info("Old backups removed", zap.Int("count", n))
	}
	logger.Info("Auto backup created", zap.String("file", filename))
}

func (p *Panel) backup(ctx context.Context, chatID int64) {
	if p.Backup == nil {
		p.reply(chatID, "Резервное копирование доступно только для хранилища Postgres.")
		return
	}
	filename, err := p.Backup.Dump(ctx, "backup")
	if err != nil {
		p.reply(chatID, "Ошибка резервного копирования: "+err.Error())
		return
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		p.fail(chatID, "резервная копия", err)
		return
	}
	if err := tg.SendDocument(p.Sender, chatID, filepath.Base(filename), data, "Резервная копия БД успешно создана"); err != nil {
		p.fail(chatID, "резервная копия", err)
	}
}

func (p *Panel) restore(ctx context.Context, chatID int64, name string) {
	if p.Backup == nil {
		p.reply(chatID, "Восстановление доступно только для хранилища Postgres.")
		return
	}
	if name == "" {
		p.reply(chatID, "Укажите имя файла для восстановления")
		return
	}
	if err := p.Backup.Restore(ctx, name); err != nil {
		p.reply(chatID, "Ошибка восстановления: "+err.Error())
		return
	}
	p.reply(chatID, "Восстановление успешно завершено из файла: "+name)
}
