//go:build !linux

package shaper

import (
	"context"
	"errors"

	"github.com/wptagent/agent/types"
)

var errNetEmUnsupported = errors.New("shaper: netem backend requires linux")

// NetEmShaper is unavailable outside Linux in this build; callers should
// fall back to NoopShaper.
type NetEmShaper struct{}

// NewNetEmShaper returns a shaper that errors on every call outside Linux.
func NewNetEmShaper(iface, inIface string) *NetEmShaper { return &NetEmShaper{} }

// Install always fails outside Linux.
func (s *NetEmShaper) Install(context.Context) error { return errNetEmUnsupported }

// Remove always fails outside Linux.
func (s *NetEmShaper) Remove(context.Context) error { return errNetEmUnsupported }

// Apply always fails outside Linux.
func (s *NetEmShaper) Apply(context.Context, types.ShaperProfile) error { return errNetEmUnsupported }

// Clear always fails outside Linux.
func (s *NetEmShaper) Clear(context.Context) error { return errNetEmUnsupported }

var _ TrafficShaper = (*NetEmShaper)(nil)
