// Package monitor samples process and host resource usage for the
// trainer's metric series. Everything is best effort: a reading that is
// unavailable on this platform reports zero rather than failing the loop.
package monitor

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const gpuBusyPath = "/sys/class/drm/card0/device/gpu_busy_percent"

type Collector struct {
	mu           sync.Mutex
	prevNetBytes uint64
	prevNetAt    time.Time
}

func NewCollector() *Collector {
	return &Collector{}
}

// MemoryUsage is the resident set size in bytes, falling back to the Go
// heap when /proc is unavailable.
func (c *Collector) MemoryUsage() float64 {
	if rss, ok := readProcSelfRSS(); ok {
		return float64(rss)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return float64(ms.HeapAlloc)
}

// GPUUtilization reads the amdgpu busy percentage when the sysfs node
// exists; other drivers report zero.
func (c *Collector) GPUUtilization() float64 {
	b, err := os.ReadFile(gpuBusyPath)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0
	}

	return v
}

// NetworkBandwidth is total bytes per second across all interfaces since
// the previous sample; the first call primes the counters and reports zero.
func (c *Collector) NetworkBandwidth() float64 {
	total, ok := readNetDevTotal()
	if !ok {
		return 0
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		c.prevNetBytes = total
		c.prevNetAt = now
	}()

	if c.prevNetAt.IsZero() || total < c.prevNetBytes {
		return 0
	}
	elapsed := now.Sub(c.prevNetAt).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return float64(total-c.prevNetBytes) / elapsed
}

func readProcSelfRSS() (uint64, bool) {
	b, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, false
	}
	s := string(b)
	rp := strings.LastIndexByte(s, ')')
	if rp < 0 {
		return 0, false
	}
	fields := strings.Fields(s[rp+2:])
	if len(fields) < 22 {
		return 0, false
	}

	rssPages, err := strconv.ParseInt(fields[21], 10, 64)
	if err != nil || rssPages < 0 {
		return 0, false
	}

	return uint64(rssPages) * uint64(os.Getpagesize()), true
}

func readNetDevTotal() (uint64, bool) {
	f, err := os.Open("/proc/net/dev")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var total uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		iface := strings.TrimSpace(line[:idx])
		if iface == "lo" {
			continue
		}

		fields := strings.Fields(line[idx+1:])
		if len(fields) < 9 {
			continue
		}
		rx, err1 := strconv.ParseUint(fields[0], 10, 64)
		tx, err2 := strconv.ParseUint(fields[8], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		total += rx + tx
	}

	return total, true
}
