package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats 主机与进程快照，/system/health 直接输出
type SystemStats struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryTotal       uint64    `json:"memory_total"`
	MemoryUsedPercent float64   `json:"memory_used_percent"`
	DiskUsedPercent   float64   `json:"disk_used_percent"`
	ProcessRSS        uint64    `json:"process_rss"`
	ProcessCPUPercent float64   `json:"process_cpu_percent"`
	Goroutines        int       `json:"goroutines"`
	HostUptime        uint64    `json:"host_uptime"`
}

// SystemMonitor 定时采样主机指标，写入 gauge 并保留最近一次快照
type SystemMonitor struct {
	interval time.Duration
	diskPath string
	proc     *process.Process

	mu     sync.RWMutex
	latest *SystemStats

	stopOnce sync.Once
	stopChan chan struct{}

	cpuPercent    prometheus.Gauge
	memoryPercent prometheus.Gauge
	diskPercent   prometheus.Gauge
	processRSS    prometheus.Gauge
	processCPU    prometheus.Gauge
}

// NewSystemMonitor reg 为空时只保留快照，不导出指标
func NewSystemMonitor(reg prometheus.Registerer, interval time.Duration) *SystemMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	sm := &SystemMonitor{
		interval: interval,
		diskPath: "/",
		stopChan: make(chan struct{}),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = p
	}

	f := promauto.With(reg)
	sm.cpuPercent = f.NewGauge(prometheus.GaugeOpts{Name: "resilix_host_cpu_percent", Help: "Host CPU usage percent"})
	sm.memoryPercent = f.NewGauge(prometheus.GaugeOpts{Name: "resilix_host_memory_used_percent", Help: "Host memory usage percent"})
	sm.diskPercent = f.NewGauge(prometheus.GaugeOpts{Name: "resilix_host_disk_used_percent", Help: "Disk usage percent of the data volume"})
	sm.processRSS = f.NewGauge(prometheus.GaugeOpts{Name: "resilix_process_rss_bytes", Help: "Resident memory of this process"})
	sm.processCPU = f.NewGauge(prometheus.GaugeOpts{Name: "resilix_process_cpu_percent", Help: "CPU usage percent of this process"})
	return sm
}

// Start 先同步采样一次，再按间隔后台采样
func (sm *SystemMonitor) Start() {
	sm.Collect()
	go sm.monitorLoop()
}

func (sm *SystemMonitor) Stop() {
	sm.stopOnce.Do(func() { close(sm.stopChan) })
}

func (sm *SystemMonitor) monitorLoop() {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.Collect()
		case <-sm.stopChan:
			return
		}
	}
}

// Collect 采样一次；单项失败时该项保持零值
func (sm *SystemMonitor) Collect() *SystemStats {
	stats := &SystemStats{
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryTotal = vm.Total
		stats.MemoryUsedPercent = vm.UsedPercent
	}
	if du, err := disk.Usage(sm.diskPath); err == nil {
		stats.DiskUsedPercent = du.UsedPercent
	}
	if up, err := host.Uptime(); err == nil {
		stats.HostUptime = up
	}
	if sm.proc != nil {
		if mi, err := sm.proc.MemoryInfo(); err == nil {
			stats.ProcessRSS = mi.RSS
		}
		if pct, err := sm.proc.CPUPercent(); err == nil {
			stats.ProcessCPUPercent = pct
		}
	}

	sm.cpuPercent.Set(stats.CPUPercent)
	sm.memoryPercent.Set(stats.MemoryUsedPercent)
	sm.diskPercent.Set(stats.DiskUsedPercent)
	sm.processRSS.Set(float64(stats.ProcessRSS))
	sm.processCPU.Set(stats.ProcessCPUPercent)

	sm.mu.Lock()
	sm.latest = stats
	sm.mu.Unlock()
	return stats
}

// Latest 返回最近一次快照，未采样时为 nil
func (sm *SystemMonitor) Latest() *SystemStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.latest
}
