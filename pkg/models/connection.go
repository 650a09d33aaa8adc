package models

import (
	"fmt"
	"strings"
)

// Connection is one socket observed during a sampling cycle.
// Empty address strings and a zero PID mean the value is unknown.
type Connection struct {
	Protocol   string `json:"protocol"`
	PID        int    `json:"pid,omitempty"`
	LocalAddr  string `json:"laddr,omitempty"`
	LocalPort  int    `json:"lport,omitempty"`
	RemoteAddr string `json:"raddr,omitempty"`
	RemotePort int    `json:"rport,omitempty"`
	State      string `json:"state,omitempty"`
	Inode      uint64 `json:"inode,omitempty"`
}

// HasPID reports whether the owning process is known.
func (c Connection) HasPID() bool {
	return c.PID > 0
}

// HasAddressPair reports whether both local and remote addresses are known.
func (c Connection) HasAddressPair() bool {
	return c.LocalAddr != "" && c.RemoteAddr != ""
}

// String renders the raw connection for the unrecognized-connection list.
func (c Connection) String() string {
	var b strings.Builder
	b.WriteString("conn(")
	fmt.Fprintf(&b, "proto=%s", orNone(c.Protocol))
	fmt.Fprintf(&b, ", laddr=%s", endpoint(c.LocalAddr, c.LocalPort))
	fmt.Fprintf(&b, ", raddr=%s", endpoint(c.RemoteAddr, c.RemotePort))
	fmt.Fprintf(&b, ", status=%s", orNone(c.State))
	if c.HasPID() {
		fmt.Fprintf(&b, ", pid=%d", c.PID)
	} else {
		b.WriteString(", pid=None")
	}
	if c.Inode != 0 {
		fmt.Fprintf(&b, ", inode=%d", c.Inode)
	}
	b.WriteString(")")
	return b.String()
}

func endpoint(addr string, port int) string {
	if addr == "" {
		return "()"
	}
	if strings.Contains(addr, ":") {
		return fmt.Sprintf("[%s]:%d", addr, port)
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

func orNone(v string) string {
	if v == "" {
		return "NONE"
	}
	return v
}
