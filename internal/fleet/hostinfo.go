package fleet

import (
	"bufio"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// HostInfo captures the facts an instance reports at registration.
type HostInfo struct {
	Hostname    string
	IP          string
	CPUCores    int
	CPUMHz      float64
	MemoryTotal uint64
	MemoryFree  uint64
}

// ProbeHost gathers host facts. Missing facts are left zero.
func ProbeHost() HostInfo {
	info := HostInfo{CPUCores: runtime.NumCPU()}
	if name, err := os.Hostname(); err == nil {
		info.Hostname = name
	}
	info.IP = primaryIPv4()
	info.CPUMHz = cpuMHz("/proc/cpuinfo")
	info.MemoryTotal, info.MemoryFree = memoryStats()
	return info
}

func primaryIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

// cpuMHz reads the first "cpu MHz" entry from a cpuinfo file.
func cpuMHz(path string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(key) != "cpu MHz" {
			continue
		}
		mhz, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0
		}
		return mhz
	}
	return 0
}
