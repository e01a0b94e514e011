package metrics

import (
	"time"

	"gorm.io/gorm"
)

const startKey = "metrics:start"

// GormPlugin 通过 gorm 回调记录每条 SQL 的耗时
type GormPlugin struct {
	m *Metrics
}

func NewGormPlugin(m *Metrics) *GormPlugin { return &GormPlugin{m: m} }

func (p *GormPlugin) Name() string { return "resilix:metrics" }

func (p *GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		op := h.op
		if err := h.before("metrics:before_"+op, p.before); err != nil {
			return err
		}
		if err := h.after("metrics:after_"+op, func(tx *gorm.DB) { p.after(tx, op) }); err != nil {
			return err
		}
	}
	return nil
}

func (p *GormPlugin) before(tx *gorm.DB) {
	tx.InstanceSet(startKey, time.Now())
}

func (p *GormPlugin) after(tx *gorm.DB, op string) {
	v, ok := tx.InstanceGet(startKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}
	status := "ok"
	if tx.Error != nil && tx.Error != gorm.ErrRecordNotFound {
		status = "error"
	}
	p.m.RecordDBQuery(op, tx.Statement.Table, status, time.Since(start))
}
