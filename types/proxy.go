package types

import "fmt"

// ShaperProfile is the network-shaping configuration TrafficShaper installs
// per job: {in_kbps, out_kbps, rtt_ms, loss_pct, queue_limit}.
type ShaperProfile struct {
	InKbps      int     `json:"in_kbps"`
	OutKbps     int     `json:"out_kbps"`
	RTTMs       int     `json:"rtt_ms"`
	LossPct     float64 `json:"loss_pct"`
	QueueLimit  int     `json:"queue_limit"`
}

// Validate rejects shaping parameters a TrafficShaper backend cannot honor.
func (s ShaperProfile) Validate() error {
	if s.InKbps < 0 || s.OutKbps < 0 {
		return fmt.Errorf("shaper: in/out kbps must be >= 0")
	}
	if s.LossPct < 0 || s.LossPct > 100 {
		return fmt.Errorf("shaper: loss_pct must be in [0,100], got %v", s.LossPct)
	}
	return nil
}

// WorkServer is one coordinator candidate the Dispatcher rotates across:
// a (server, location) pair polled once per acquire.
type WorkServer struct {
	OriginURL string `json:"origin_url"`
	Location  string `json:"location"`
}

// SchedulerNode is an alternative orchestrator endpoint, authenticated with
// the salted node token instead of a plain API key.
type SchedulerNode struct {
	URL  string `json:"url"`
	Salt string `json:"salt"`
	Node string `json:"node"`
}

// RoutingTable is the Dispatcher's current candidate set, updated live by
// control-block responses (`Servers:` / `Scheduler:` lines).
type RoutingTable struct {
	Servers   []WorkServer
	Scheduler *SchedulerNode
}

// HasScheduler reports whether a scheduler is configured; when true, the
// Dispatcher polls scheduler nodes instead of work servers.
func (t RoutingTable) HasScheduler() bool {
	return t.Scheduler != nil
}
