package models

import (
	"strconv"
	"time"
)

// Flow is a (process, destination) pair seen for the first time.
type Flow struct {
	ObservedAt time.Time `json:"ts"`
	Process    string    `json:"process"`
	// Image is the executable path, the first token of the command line.
	Image           string `json:"image,omitempty"`
	CommandLine     string `json:"command_line,omitempty"`
	PID             int    `json:"pid,omitempty"`
	Protocol        string `json:"protocol,omitempty"`
	Source          string `json:"src,omitempty"`
	SourcePort      int    `json:"src_port,omitempty"`
	Destination     string `json:"dst"`
	DestinationPort int    `json:"dst_port,omitempty"`
	// Initiated is false for sockets accepted on a local listening port.
	Initiated bool `json:"initiated"`
}

// Fields flattens the flow into Sysmon network-connection style field names,
// which is what watch rules are written against.
func (f *Flow) Fields() map[string]interface{} {
	if f == nil {
		return nil
	}
	image := f.Image
	if image == "" {
		image = f.Process
	}
	out := map[string]interface{}{
		"Image":           image,
		"ProcessName":     f.Process,
		"CommandLine":     f.CommandLine,
		"SourceIp":        f.Source,
		"DestinationIp":   f.Destination,
		"Protocol":        f.Protocol,
		"SourcePort":      strconv.Itoa(f.SourcePort),
		"DestinationPort": strconv.Itoa(f.DestinationPort),
		"Initiated":       strconv.FormatBool(f.Initiated),
	}
	if f.PID > 0 {
		out["ProcessId"] = strconv.Itoa(f.PID)
	}
	return out
}
