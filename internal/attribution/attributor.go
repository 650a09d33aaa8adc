package attribution

import (
	"context"
	"strings"
	"time"

	"netmonitor/internal/logger"
	"netmonitor/internal/tracker"
	"netmonitor/pkg/models"
)

// Resolver returns the command line of a running process.
type Resolver interface {
	CommandLine(ctx context.Context, pid int) (string, error)
}

// FailureReason classifies why a connection could not be attributed.
type FailureReason string

const (
	FailureNoPID        FailureReason = "no_pid"
	FailureResolve      FailureReason = "resolve_error"
	FailureEmptyCommand FailureReason = "empty_command"
	FailureEmptyName    FailureReason = "empty_name"
)

// Config controls attribution behavior.
type Config struct {
	Namer Namer
	// Diagnostic records connections that have neither an owner nor an
	// address pair.
	Diagnostic bool
	// ResolveTimeout bounds a single resolver call when positive.
	ResolveTimeout time.Duration
}

// Result summarizes one attribution pass.
type Result struct {
	Sampled           int
	Attributed        int
	Resolved          int
	Failures          map[FailureReason]int
	UnnamedAdded      int
	UnrecognizedAdded int
	// Flows holds the (process, destination) pairs seen for the first time.
	Flows []*models.Flow
}

// Attributor maps connections to process names and merges them into a
// tracker.Model.
type Attributor struct {
	resolver Resolver
	cfg      Config
	now      func() time.Time
}

// New creates an Attributor.
func New(resolver Resolver, cfg Config) *Attributor {
	return &Attributor{resolver: resolver, cfg: cfg, now: time.Now}
}

type resolution struct {
	name    string
	image   string
	cmdline string
	reason  FailureReason
}

type listenKey struct {
	protocol string
	port     int
}

// listeningPorts collects the local TCP ports in LISTEN state. Connections
// sharing a protocol and local port with a listener were accepted, not
// initiated.
func listeningPorts(conns []models.Connection) map[listenKey]bool {
	out := make(map[listenKey]bool)
	for _, c := range conns {
		if c.State == "LISTEN" && c.LocalPort > 0 {
			out[listenKey{protocol: c.Protocol, port: c.LocalPort}] = true
		}
	}
	return out
}

// Attribute runs one pass over a connection snapshot. Attributed
// connections are tracked immediately; address pairs of unattributed
// connections are merged after the whole snapshot has been attributed so
// that owners found later in the same snapshot suppress them. The only
// error returned is ctx's, in which case unattributed entries are dropped.
func (a *Attributor) Attribute(ctx context.Context, conns []models.Connection, m *tracker.Model) (Result, error) {
	res := Result{
		Sampled:  len(conns),
		Failures: make(map[FailureReason]int),
	}
	cache := make(map[int]resolution)
	listening := listeningPorts(conns)
	now := a.now()

	var pairs [][2]string
	var unrecognized []models.Connection

	for _, conn := range conns {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		r := a.resolve(ctx, conn, cache, &res)
		if r.reason != "" {
			res.Failures[r.reason]++
			if logger.Enabled(logger.Debug) {
				logger.Debugf("Unattributed connection (%s): %s", r.reason, conn)
			}
			if conn.HasAddressPair() {
				pairs = append(pairs, [2]string{conn.LocalAddr, conn.RemoteAddr})
			} else if a.cfg.Diagnostic {
				unrecognized = append(unrecognized, conn)
			}
			continue
		}

		res.Attributed++
		tr := m.Track(r.name, conn.LocalAddr, conn.RemoteAddr)
		if tr.NewDestination {
			res.Flows = append(res.Flows, &models.Flow{
				ObservedAt:      now,
				Process:         r.name,
				Image:           r.image,
				CommandLine:     r.cmdline,
				PID:             conn.PID,
				Protocol:        conn.Protocol,
				Source:          conn.LocalAddr,
				SourcePort:      conn.LocalPort,
				Destination:     conn.RemoteAddr,
				DestinationPort: conn.RemotePort,
				Initiated:       !listening[listenKey{protocol: conn.Protocol, port: conn.LocalPort}],
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	for _, p := range pairs {
		if m.AddUnnamed(p[0], p[1]) {
			res.UnnamedAdded++
		}
	}
	for _, conn := range unrecognized {
		if m.AddUnrecognized(conn.String()) {
			res.UnrecognizedAdded++
		}
	}
	return res, nil
}

// resolve looks up each distinct pid once per pass.
func (a *Attributor) resolve(ctx context.Context, conn models.Connection, cache map[int]resolution, res *Result) resolution {
	if !conn.HasPID() {
		return resolution{reason: FailureNoPID}
	}
	if r, ok := cache[conn.PID]; ok {
		return r
	}

	r := a.lookup(ctx, conn.PID)
	res.Resolved++
	cache[conn.PID] = r
	return r
}

func (a *Attributor) lookup(ctx context.Context, pid int) resolution {
	if a.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ResolveTimeout)
		defer cancel()
	}

	cmdline, err := a.resolver.CommandLine(ctx, pid)
	if err != nil {
		if logger.Enabled(logger.Debug) {
			logger.Debugf("Resolve pid %d: %v", pid, err)
		}
		return resolution{reason: FailureResolve}
	}
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return resolution{reason: FailureEmptyCommand}
	}

	name := a.cfg.Namer.Derive(cmdline)
	if name == "" {
		return resolution{cmdline: cmdline, reason: FailureEmptyName}
	}
	return resolution{name: name, image: fields[0], cmdline: cmdline}
}
