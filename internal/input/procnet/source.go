package procnet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"

	"netmonitor/internal/logger"
	"netmonitor/pkg/models"
)

// Source lists sockets from /proc/net and maps them to their owning pid
// through the socket inodes found under /proc/<pid>/fd.
type Source struct {
	fs procfs.FS
}

// NewSource creates a Source reading from the procfs mounted at root.
func NewSource(root string) (*Source, error) {
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	pfs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", root, err)
	}
	return &Source{fs: pfs}, nil
}

type socketTable struct {
	protocol string
	read     func() (procfs.NetTCP, error)
}

// Connections returns every TCP and UDP socket currently known to the kernel.
func (s *Source) Connections(ctx context.Context) ([]models.Connection, error) {
	owners, err := s.socketOwners(ctx)
	if err != nil {
		return nil, err
	}

	tables := []socketTable{
		{protocol: "TCP", read: s.fs.NetTCP},
		{protocol: "TCP", read: s.fs.NetTCP6},
		{protocol: "UDP", read: func() (procfs.NetTCP, error) {
			lines, err := s.fs.NetUDP()
			return procfs.NetTCP(lines), err
		}},
		{protocol: "UDP", read: func() (procfs.NetTCP, error) {
			lines, err := s.fs.NetUDP6()
			return procfs.NetTCP(lines), err
		}},
	}

	var conns []models.Connection
	for _, table := range tables {
		lines, err := table.read()
		if err != nil {
			// tcp6/udp6 are absent when IPv6 is disabled
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s sockets: %w", table.protocol, err)
		}
		for _, line := range lines {
			conn := models.Connection{
				Protocol:   table.protocol,
				PID:        owners[line.Inode],
				LocalAddr:  ipString(line.LocalAddr),
				LocalPort:  int(line.LocalPort),
				RemoteAddr: remoteString(line.RemAddr, line.RemPort),
				RemotePort: int(line.RemPort),
				Inode:      line.Inode,
			}
			if table.protocol == "TCP" {
				conn.State = tcpState(line.St)
			}
			conns = append(conns, conn)
		}
	}
	return conns, nil
}

// socketOwners maps socket inodes to pids. Processes that vanish or deny
// access while being scanned are skipped.
func (s *Source) socketOwners(ctx context.Context) (map[uint64]int, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	owners := make(map[uint64]int)
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		targets, err := p.FileDescriptorTargets()
		if err != nil {
			continue
		}
		for _, target := range targets {
			inode, ok := socketInode(target)
			if !ok {
				continue
			}
			if _, seen := owners[inode]; !seen {
				owners[inode] = p.PID
			}
		}
	}
	logger.Debugf("Mapped %d socket inodes across %d processes", len(owners), len(procs))
	return owners, nil
}

func socketInode(target string) (uint64, bool) {
	if !strings.HasPrefix(target, "socket:[") || !strings.HasSuffix(target, "]") {
		return 0, false
	}
	inode, err := strconv.ParseUint(target[len("socket:["):len(target)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// remoteString treats an unspecified peer with port 0 as "no peer".
func remoteString(ip net.IP, port uint64) string {
	if ip == nil || (ip.IsUnspecified() && port == 0) {
		return ""
	}
	return ip.String()
}

var tcpStates = map[uint64]string{
	0x01: "ESTABLISHED",
	0x02: "SYN_SENT",
	0x03: "SYN_RECV",
	0x04: "FIN_WAIT1",
	0x05: "FIN_WAIT2",
	0x06: "TIME_WAIT",
	0x07: "CLOSE",
	0x08: "CLOSE_WAIT",
	0x09: "LAST_ACK",
	0x0A: "LISTEN",
	0x0B: "CLOSING",
	0x0C: "NEW_SYN_RECV",
}

func tcpState(st uint64) string {
	if s, ok := tcpStates[st]; ok {
		return s
	}
	return "UNKNOWN"
}
