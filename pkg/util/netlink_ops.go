package util

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// NetLinkOps is the subset of netlink the agent needs. Every call takes the
// name of the network namespace it operates in; the empty string is the
// default namespace.
type NetLinkOps interface {
	LinkList(ns string) ([]netlink.Link, error)
	LinkByName(ns, name string) (netlink.Link, error)
	LinkByHardwareAddr(ns string, mac net.HardwareAddr) (netlink.Link, error)
	LinkSetUp(ns, name string) error
	LinkSetMTU(ns, name string, mtu int) error
	LinkAddMacvlan(ns, parent, name string, mac net.HardwareAddr) error
	LinkAddVlan(parent, name string, vlanID int) error
	LinkDelete(ns, name string) error
	LinkSetNs(fromNs, name, toNs string) error
	AddrList(ns string, link netlink.Link) ([]netlink.Addr, error)
	AddrAdd(ns, dev string, addr *net.IPNet) error
	AddrDel(ns, dev string, addr *net.IPNet) error
	RouteReplaceDefault(ns, dev string, gw net.IP, table int) error
	RouteFlushTable(table int) error
	RuleAdd(src net.IP, table int) error
	RuleDelBySrc(src net.IP) ([]int, error)
	RuleDelByTable(table int) error
	LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error
	IsLinkNotFoundError(err error) bool
}

// ErrLinkNotFound is returned when no link matches a lookup done outside the
// kernel, such as by hardware address
var ErrLinkNotFound = errors.New("link not found")

type defaultNetLinkOps struct{}

var netLinkOps NetLinkOps = &defaultNetLinkOps{}

// SetNetLinkOpMockInst method would be used by unit tests in other packages
func SetNetLinkOpMockInst(mockInst NetLinkOps) {
	netLinkOps = mockInst
}

// ResetNetLinkOpMockInst resets the mock instance for netlink to the defaultNetLinkOps
func ResetNetLinkOpMockInst() {
	netLinkOps = &defaultNetLinkOps{}
}

// GetNetLinkOps will be invoked by functions in other packages that would need access to the netlink library methods.
func GetNetLinkOps() NetLinkOps {
	return netLinkOps
}

// handle returns a netlink handle bound to ns and the function releasing it
func handle(ns string) (*netlink.Handle, func(), error) {
	if ns == "" {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open netlink handle: %w", err)
		}
		return h, h.Close, nil
	}
	nsh, err := netns.GetFromName(ns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open namespace %s: %w", ns, err)
	}
	h, err := netlink.NewHandleAt(nsh)
	if err != nil {
		nsh.Close()
		return nil, nil, fmt.Errorf("failed to open netlink handle in namespace %s: %w", ns, err)
	}
	return h, func() {
		h.Close()
		nsh.Close()
	}, nil
}

func (defaultNetLinkOps) LinkList(ns string) ([]netlink.Link, error) {
	h, done, err := handle(ns)
	if err != nil {
		return nil, err
	}
	defer done()
	return h.LinkList()
}

func (defaultNetLinkOps) LinkByName(ns, name string) (netlink.Link, error) {
	h, done, err := handle(ns)
	if err != nil {
		return nil, err
	}
	defer done()
	return h.LinkByName(name)
}

func (n defaultNetLinkOps) LinkByHardwareAddr(ns string, mac net.HardwareAddr) (netlink.Link, error) {
	links, err := n.LinkList(ns)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		// vlans and macvlans share the MAC of what they are stacked on
		switch link.Type() {
		case "vlan", "macvlan", "macvtap":
			continue
		}
		if strings.EqualFold(link.Attrs().HardwareAddr.String(), mac.String()) {
			return link, nil
		}
	}
	return nil, fmt.Errorf("no device with hardware address %s: %w", mac, ErrLinkNotFound)
}

func (defaultNetLinkOps) LinkSetUp(ns, name string) error {
	h, done, err := handle(ns)
	if err != nil {
		return err
	}
	defer done()
	link, err := h.LinkByName(name)
	if err != nil {
		return err
	}
	return h.LinkSetUp(link)
}

func (defaultNetLinkOps) LinkSetMTU(ns, name string, mtu int) error {
	h, done, err := handle(ns)
	if err != nil {
		return err
	}
	defer done()
	link, err := h.LinkByName(name)
	if err != nil {
		return err
	}
	if link.Attrs().MTU == mtu {
		return nil
	}
	return h.LinkSetMTU(link, mtu)
}

// LinkAddMacvlan creates a macvlan on top of parent, in the namespace of parent
func (defaultNetLinkOps) LinkAddMacvlan(ns, parent, name string, mac net.HardwareAddr) error {
	h, done, err := handle(ns)
	if err != nil {
		return err
	}
	defer done()
	p, err := h.LinkByName(parent)
	if err != nil {
		return err
	}
	link := &netlink.Macvlan{
		LinkAttrs: netlink.LinkAttrs{
			Name:         name,
			ParentIndex:  p.Attrs().Index,
			HardwareAddr: mac,
		},
	}
	if err := h.LinkAdd(link); err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}
	return nil
}

func (defaultNetLinkOps) LinkAddVlan(parent, name string, vlanID int) error {
	p, err := netlink.LinkByName(parent)
	if err != nil {
		return err
	}
	link := &netlink.Vlan{
		LinkAttrs: netlink.LinkAttrs{
			Name:        name,
			ParentIndex: p.Attrs().Index,
		},
		VlanId: vlanID,
	}
	if err := netlink.LinkAdd(link); err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}
	return nil
}

func (n defaultNetLinkOps) LinkDelete(ns, name string) error {
	h, done, err := handle(ns)
	if err != nil {
		return err
	}
	defer done()
	link, err := h.LinkByName(name)
	if n.IsLinkNotFoundError(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return h.LinkDel(link)
}

// LinkSetNs moves a link from fromNs to toNs. An empty toNs moves the link
// back to the namespace of pid 1.
func (defaultNetLinkOps) LinkSetNs(fromNs, name, toNs string) error {
	h, done, err := handle(fromNs)
	if err != nil {
		return err
	}
	defer done()
	link, err := h.LinkByName(name)
	if err != nil {
		return err
	}
	if toNs == "" {
		return h.LinkSetNsPid(link, 1)
	}
	target, err := netns.GetFromName(toNs)
	if err != nil {
		return fmt.Errorf("failed to open namespace %s: %w", toNs, err)
	}
	defer target.Close()
	return h.LinkSetNsFd(link, int(target))
}

func (defaultNetLinkOps) AddrList(ns string, link netlink.Link) ([]netlink.Addr, error) {
	h, done, err := handle(ns)
	if err != nil {
		return nil, err
	}
	defer done()
	return h.AddrList(link, netlink.FAMILY_V4)
}

func (defaultNetLinkOps) AddrAdd(ns, dev string, addr *net.IPNet) error {
	h, done, err := handle(ns)
	if err != nil {
		return err
	}
	defer done()
	link, err := h.LinkByName(dev)
	if err != nil {
		return err
	}
	if err := h.AddrAdd(link, &netlink.Addr{IPNet: addr}); err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}
	return nil
}

func (defaultNetLinkOps) AddrDel(ns, dev string, addr *net.IPNet) error {
	h, done, err := handle(ns)
	if err != nil {
		return err
	}
	defer done()
	link, err := h.LinkByName(dev)
	if err != nil {
		return err
	}
	if err := h.AddrDel(link, &netlink.Addr{IPNet: addr}); err != nil && !errors.Is(err, unix.EADDRNOTAVAIL) {
		return err
	}
	return nil
}

// RouteReplaceDefault installs a default route via gw on dev in the given
// table. A table of 0 is the main table. Nothing is done when an equivalent
// route already exists.
func (defaultNetLinkOps) RouteReplaceDefault(ns, dev string, gw net.IP, table int) error {
	h, done, err := handle(ns)
	if err != nil {
		return err
	}
	defer done()
	link, err := h.LinkByName(dev)
	if err != nil {
		return err
	}
	wanted := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Gw:        gw,
		Table:     table,
	}
	normalizeRoute(wanted)
	existing, err := h.RouteListFiltered(netlink.FAMILY_V4, &netlink.Route{Table: wanted.Table}, netlink.RT_FILTER_TABLE)
	if err != nil {
		return err
	}
	for i := range existing {
		if RoutePartiallyEqualWantedToExisting(wanted, &existing[i]) {
			klog.V(5).Infof("Route already present: %s", wanted)
			return nil
		}
	}
	return h.RouteReplace(wanted)
}

// RouteFlushTable deletes every route of table in the default namespace
func (defaultNetLinkOps) RouteFlushTable(table int) error {
	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4, &netlink.Route{Table: table}, netlink.RT_FILTER_TABLE)
	if err != nil {
		return err
	}
	var errs []error
	for i := range routes {
		if err := netlink.RouteDel(&routes[i]); err != nil && !IsRouteNotFoundError(err) {
			errs = append(errs, fmt.Errorf("failed to delete route %s: %w", routes[i], err))
		}
	}
	return errors.Join(errs...)
}

func srcRuleFilter(src net.IP) (*netlink.Rule, uint64) {
	rule := netlink.NewRule()
	rule.Src = &net.IPNet{IP: src, Mask: net.CIDRMask(32, 32)}
	return rule, netlink.RT_FILTER_SRC
}

// RuleAdd adds a "from src lookup table" policy rule unless it exists
func (defaultNetLinkOps) RuleAdd(src net.IP, table int) error {
	filter, mask := srcRuleFilter(src)
	rules, err := netlink.RuleListFiltered(netlink.FAMILY_V4, filter, mask)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.Table == table {
			return nil
		}
	}
	rule := netlink.NewRule()
	rule.Family = netlink.FAMILY_V4
	rule.Src = filter.Src
	rule.Table = table
	if err := netlink.RuleAdd(rule); err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}
	return nil
}

// RuleDelBySrc deletes every rule matching from src and returns the tables
// they pointed to
func (defaultNetLinkOps) RuleDelBySrc(src net.IP) ([]int, error) {
	filter, mask := srcRuleFilter(src)
	rules, err := netlink.RuleListFiltered(netlink.FAMILY_V4, filter, mask)
	if err != nil {
		return nil, err
	}
	var tables []int
	var errs []error
	for i := range rules {
		tables = append(tables, rules[i].Table)
		if err := netlink.RuleDel(&rules[i]); err != nil && !errors.Is(err, unix.ENOENT) {
			errs = append(errs, fmt.Errorf("failed to delete rule %s: %w", rules[i], err))
		}
	}
	return tables, errors.Join(errs...)
}

// RuleDelByTable deletes every rule looking up table
func (defaultNetLinkOps) RuleDelByTable(table int) error {
	filter := netlink.NewRule()
	filter.Table = table
	rules, err := netlink.RuleListFiltered(netlink.FAMILY_V4, filter, netlink.RT_FILTER_TABLE)
	if err != nil {
		return err
	}
	var errs []error
	for i := range rules {
		if err := netlink.RuleDel(&rules[i]); err != nil && !errors.Is(err, unix.ENOENT) {
			errs = append(errs, fmt.Errorf("failed to delete rule %s: %w", rules[i], err))
		}
	}
	return errors.Join(errs...)
}

func (defaultNetLinkOps) LinkSubscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error {
	return netlink.LinkSubscribe(ch, done)
}

func (defaultNetLinkOps) IsLinkNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var lnf netlink.LinkNotFoundError
	return errors.As(err, &lnf) || errors.Is(err, ErrLinkNotFound)
}

// IsRouteNotFoundError reports whether err is the kernel's ESRCH returned
// when deleting an absent route
func IsRouteNotFoundError(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
