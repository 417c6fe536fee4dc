//go:build linux

package shaper

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/wptagent/agent/types"
)

// NetEmShaper shapes traffic on one Linux network interface via tc/netem,
// following internal/traffic_shaping.py's NetEm backend: inbound shaping
// goes on an ifb redirect interface (egress-side netem can't see inbound
// packets), outbound shaping goes directly on the real interface.
type NetEmShaper struct {
	iface   string // outbound interface, auto-detected from the default route if empty
	inIface string // inbound (ifb) interface
	runner  commandRunner
}

// commandRunner abstracts process execution for testability.
type commandRunner func(name string, args ...string) error

func runTC(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// NewNetEmShaper creates a shaper for iface (auto-detected via the default
// route if empty) with inIface as its paired ifb redirect device.
func NewNetEmShaper(iface, inIface string) *NetEmShaper {
	if inIface == "" {
		inIface = "ifb0"
	}
	return &NetEmShaper{iface: iface, inIface: inIface, runner: runTC}
}

// Install sets up the ifb redirect interface and clears any prior shaping.
// Must be called once before the first Apply.
func (s *NetEmShaper) Install(ctx context.Context) error {
	if s.iface == "" {
		iface, err := defaultRouteInterface()
		if err != nil {
			return fmt.Errorf("shaper: detect default interface: %w", err)
		}
		s.iface = iface
	}

	_ = s.runner("sudo", "modprobe", "ifb")
	_ = s.runner("sudo", "ip", "link", "set", "dev", s.inIface, "up")
	_ = s.runner("sudo", "tc", "qdisc", "add", "dev", s.iface, "ingress")
	_ = s.runner("sudo", "tc", "filter", "add", "dev", s.iface, "parent", "ffff:",
		"protocol", "ip", "u32", "match", "u32", "0", "0",
		"flowid", "1:1", "action", "mirred", "egress", "redirect", "dev", s.inIface)

	return s.Clear(ctx)
}

// Remove tears down the ifb redirect, reversing Install.
func (s *NetEmShaper) Remove(context.Context) error {
	_ = s.runner("sudo", "tc", "qdisc", "del", "dev", s.iface, "ingress")
	_ = s.runner("sudo", "ip", "link", "set", "dev", s.inIface, "down")
	return nil
}

// Apply implements TrafficShaper by adding matching netem qdiscs on both
// the inbound (ifb) and outbound interfaces. RTT is split so each
// direction's netem delay contributes half, rounding the odd millisecond
// onto the inbound leg to match the original's split.
func (s *NetEmShaper) Apply(ctx context.Context, profile types.ShaperProfile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("shaper: %w", err)
	}
	if profile == (types.ShaperProfile{}) {
		return s.Clear(ctx)
	}

	inLatency := profile.RTTMs / 2
	if profile.RTTMs%2 != 0 {
		inLatency++
	}
	outLatency := profile.RTTMs / 2

	if err := s.configureInterface(s.inIface, profile.InKbps, inLatency, profile.LossPct, profile.QueueLimit); err != nil {
		return err
	}
	return s.configureInterface(s.iface, profile.OutKbps, outLatency, profile.LossPct, profile.QueueLimit)
}

// Clear implements TrafficShaper by dropping the root qdisc on both
// interfaces, restoring unconstrained traffic.
func (s *NetEmShaper) Clear(context.Context) error {
	_ = s.runner("sudo", "tc", "qdisc", "del", "dev", s.inIface, "root")
	_ = s.runner("sudo", "tc", "qdisc", "del", "dev", s.iface, "root")
	return nil
}

func (s *NetEmShaper) configureInterface(iface string, kbps, latencyMs int, lossPct float64, queueLimit int) error {
	args := buildNetemArgs(iface, kbps, latencyMs, lossPct, queueLimit)
	if err := s.runner(args[0], args[1:]...); err != nil {
		return fmt.Errorf("shaper: configure %s: %w", iface, err)
	}
	return nil
}

// buildNetemArgs builds the `tc qdisc replace ... netem` command line for one
// interface, mirroring build_command_args in internal/traffic_shaping.py.
// replace installs the root qdisc whether or not one is already present.
func buildNetemArgs(iface string, kbps, latencyMs int, lossPct float64, queueLimit int) []string {
	args := []string{"sudo", "tc", "qdisc", "replace", "dev", iface, "root",
		"netem", "delay", fmt.Sprintf("%dms", latencyMs)}
	if kbps > 0 {
		args = append(args, "rate", fmt.Sprintf("%dkbit", kbps))
	}
	if lossPct > 0 {
		args = append(args, "loss", fmt.Sprintf("%.2f%%", lossPct))
	}
	if queueLimit > 0 {
		args = append(args, "limit", fmt.Sprintf("%d", queueLimit))
	}
	return args
}

var defaultRouteRe = regexp.MustCompile(`^default\s+\S+\s+\S+\s+\S+\s+(\S+)`)

// defaultRouteInterface parses `ip route` output for the default route's
// outbound device.
func defaultRouteInterface() (string, error) {
	out, err := exec.Command("ip", "route").Output()
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if m := defaultRouteRe.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no default route found")
}

var _ TrafficShaper = (*NetEmShaper)(nil)
