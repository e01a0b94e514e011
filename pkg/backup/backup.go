package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"Resilix/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const filePrefix = "resilix_backup_"

// Backup 数据库定时备份任务，目前仅支持 sqlite
type Backup struct {
	db     *gorm.DB
	driver string
	dir    string
	keep   int
	now    func() time.Time
}

// New keep<=0 时保留全部备份文件
func New(db *gorm.DB, driver, dir string, keep int) *Backup {
	if driver == "" {
		driver = "sqlite"
	}
	return &Backup{db: db, driver: driver, dir: dir, keep: keep, now: time.Now}
}

// Run 实现 scheduler.Job
func (b *Backup) Run(ctx context.Context) {
	dst, err := b.Execute(ctx)
	if err != nil {
		logger.Warn("backup failed", zap.Error(err))
		return
	}
	logger.Info("backup completed", zap.String("file", dst))
}

// Execute 执行一次备份并清理多余的旧文件，返回备份文件路径
func (b *Backup) Execute(ctx context.Context) (string, error) {
	if b.driver != "sqlite" {
		return "", fmt.Errorf("unsupported DB_DRIVER for backup: %s", b.driver)
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dst := filepath.Join(b.dir, fmt.Sprintf("%s%s.db", filePrefix, b.now().Format("20060102_150405")))
	// VACUUM INTO 在库被写入时也能得到一致快照
	if err := b.db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dst, err)
	}
	if err := b.prune(); err != nil {
		logger.Warn("prune old backups failed", zap.Error(err))
	}
	return dst, nil
}

func (b *Backup) prune() error {
	if b.keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) <= b.keep {
		return nil
	}
	// 文件名中的时间戳可直接按字典序排序
	sort.Strings(names)
	for _, name := range names[:len(names)-b.keep] {
		if err := os.Remove(filepath.Join(b.dir, name)); err != nil {
			return err
		}
	}
	return nil
}
