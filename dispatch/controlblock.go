package dispatch

import (
	"strings"

	"github.com/wptagent/agent/types"
)

// rebootDirective is the literal body a coordinator sends to request a
// host reboot instead of handing out work.
const rebootDirective = "Reboot"

// ControlBlock is a parsed coordinator response that updates routing
// instead of carrying a job: `Servers:<csv>` and/or `Scheduler:<url> <salt>
// <node>` lines.
type ControlBlock struct {
	Servers   []string
	Scheduler *types.SchedulerNode
}

// Empty reports whether the control block carried no routing updates.
func (c ControlBlock) Empty() bool {
	return len(c.Servers) == 0 && c.Scheduler == nil
}

// isControlBlock reports whether body looks like a routing control block
// rather than a job document or the reboot directive.
func isControlBlock(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Servers:") || strings.HasPrefix(line, "Scheduler:") {
			return true
		}
	}
	return false
}

// parseControlBlock tokenizes `Servers:`/`Scheduler:` lines out of body.
// Lines it does not recognize are ignored.
func parseControlBlock(body string) ControlBlock {
	var cb ControlBlock
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Servers:"):
			csv := strings.TrimPrefix(line, "Servers:")
			for _, s := range strings.Split(csv, ",") {
				s = strings.TrimSpace(s)
				if s != "" {
					cb.Servers = append(cb.Servers, s)
				}
			}
		case strings.HasPrefix(line, "Scheduler:"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "Scheduler:"))
			fields := strings.Fields(rest)
			if len(fields) >= 3 {
				cb.Scheduler = &types.SchedulerNode{URL: fields[0], Salt: fields[1], Node: fields[2]}
			}
		}
	}
	return cb
}

// applyControlBlock folds a parsed control block into a routing table,
// replacing the server list and/or scheduler when present.
func applyControlBlock(table types.RoutingTable, cb ControlBlock, location string) types.RoutingTable {
	if len(cb.Servers) > 0 {
		servers := make([]types.WorkServer, 0, len(cb.Servers))
		for _, origin := range cb.Servers {
			servers = append(servers, types.WorkServer{OriginURL: origin, Location: location})
		}
		table.Servers = servers
	}
	if cb.Scheduler != nil {
		table.Scheduler = cb.Scheduler
	}
	return table
}
