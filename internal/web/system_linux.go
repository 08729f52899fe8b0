//go:build linux

package web

import (
	"net"
	"sort"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

func snapshotSystem(dir string) *SystemSnapshot {
	return &SystemSnapshot{
		Disk:       snapshotDisk(dir),
		LocalAddrs: localInterfaceAddrs(),
	}
}

func snapshotDisk(dir string) *DiskSnapshot {
	if dir == "" {
		dir = "/"
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return &DiskSnapshot{Path: dir, LastError: err.Error()}
	}
	bsize := uint64(st.Bsize)
	avail := st.Bavail * bsize
	return &DiskSnapshot{
		Path:       dir,
		TotalBytes: st.Blocks * bsize,
		AvailBytes: avail,
		Avail:      humanize.Bytes(avail),
	}
}

// localInterfaceAddrs lists the IPv4 addresses the UI is reachable on.
func localInterfaceAddrs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, iface.Name+": "+ip4.String())
		}
	}
	sort.Strings(out)
	return out
}
