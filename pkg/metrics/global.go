package metrics

import (
	"sync"
	"time"
)

var (
	globalMetrics *Metrics
	once          sync.Once
	mu            sync.RWMutex
)

// Default 返回进程级指标实例，首次调用时创建
func Default() *Metrics {
	once.Do(func() {
		mu.Lock()
		if globalMetrics == nil {
			globalMetrics = NewMetrics()
		}
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return globalMetrics
}

// SetDefault 替换全局实例（测试中注入独立 registry）
func SetDefault(m *Metrics) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	globalMetrics = m
}

func ObserveGuidance(outcome string, d time.Duration) {
	if m := Default(); m != nil {
		m.RecordGuidance(outcome, d)
	}
}

func ObserveNotification(channel, outcome string) {
	if m := Default(); m != nil {
		m.RecordNotification(channel, outcome)
	}
}

func ObserveBroadcast(outcome string) {
	if m := Default(); m != nil {
		m.RecordBroadcast(outcome)
	}
}

func ObserveFanout(attempted int, d time.Duration) {
	if m := Default(); m != nil {
		m.RecordFanout(attempted, d)
	}
}

func ObserveAlertCreated(alertType string) {
	if m := Default(); m != nil {
		m.RecordAlertCreated(alertType)
	}
}

func ObserveCache(cacheType, operation string, hit bool) {
	m := Default()
	if m == nil {
		return
	}
	if hit {
		m.RecordCacheHit(cacheType, operation)
	} else {
		m.RecordCacheMiss(cacheType, operation)
	}
}
