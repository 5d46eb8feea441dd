package util

import (
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

var defaultDst = &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}

// routeKey identifies a route, only one route allowed with the same key
type routeKey struct {
	dst      string
	table    int
	priority int
}

func normalizeRoute(r *netlink.Route) {
	if r.Table == unix.RT_TABLE_UNSPEC {
		r.Table = unix.RT_TABLE_MAIN
	}
}

func keyFromRoute(r *netlink.Route) routeKey {
	dst := r.Dst
	if dst == nil {
		dst = defaultDst
	}
	return routeKey{
		dst:      dst.String(),
		table:    r.Table,
		priority: r.Priority,
	}
}

func equalOrLeftZero[T comparable](l, r, z T) bool {
	return l == z || l == r
}

func equalOrLeftZeroFunc[T any](eq func(l, r T) bool, l, r, z T) bool {
	return eq(l, z) || eq(l, r)
}

// RoutePartiallyEqualWantedToExisting compares the non zero values of the
// wanted route with the existing one. Routes read back from the kernel carry
// defaulted fields the agent never sets, so netlink.Route.Equal can't be used.
func RoutePartiallyEqualWantedToExisting(w, e *netlink.Route) bool {
	if (w == nil) != (e == nil) {
		return false
	}
	if w == e {
		return true
	}
	// dst, table and priority must be equal
	if keyFromRoute(w) != keyFromRoute(e) {
		return false
	}
	var z netlink.Route
	ipEqual := func(l, r net.IP) bool { return l.Equal(r) }
	return equalOrLeftZero(w.LinkIndex, e.LinkIndex, z.LinkIndex) &&
		equalOrLeftZero(w.Scope, e.Scope, z.Scope) &&
		equalOrLeftZeroFunc(ipEqual, w.Src, e.Src, z.Src) &&
		equalOrLeftZeroFunc(ipEqual, w.Gw, e.Gw, z.Gw) &&
		equalOrLeftZero(w.Protocol, e.Protocol, z.Protocol) &&
		equalOrLeftZero(w.Family, e.Family, z.Family) &&
		equalOrLeftZero(w.Type, e.Type, z.Type) &&
		equalOrLeftZero(w.Flags, e.Flags, z.Flags) &&
		equalOrLeftZero(w.MTU, e.MTU, z.MTU)
}
