package vnic

import (
	"errors"
	"fmt"
	"net"

	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/metadata"
	"github.com/oci-utils/vnic-agent/pkg/types"
	"github.com/oci-utils/vnic-agent/pkg/util"
)

// errNoTableKey means the record lacks the field its table name derives from
var errNoTableKey = errors.New("routing table name can't be derived")

// RoutingTableName returns the name of the per interface policy routing
// table: ort<nic-index>vl<vlan-tag> on bare metal shapes, ort<ifindex>
// otherwise
func RoutingTableName(snap *metadata.Snapshot, r *InterfaceRecord) (string, error) {
	if snap == nil || snap.Shape == "" {
		return "", ErrNoMetadata
	}
	if snap.IsBareMetal() {
		if r.NICIndex == nil {
			return "", fmt.Errorf("%w: %s has no NIC index", errNoTableKey, r)
		}
		return fmt.Sprintf("%s%dvl%d", types.RouteTablePrefix, *r.NICIndex, r.VLANTag), nil
	}
	if r.Index == 0 {
		return "", fmt.Errorf("%w: %s has no interface index", errNoTableKey, r)
	}
	return fmt.Sprintf("%s%d", types.RouteTablePrefix, r.Index), nil
}

// configureRouting installs the default route of a configured interface.
// Inside a namespace that is all it needs. In the default namespace the route
// goes into the interface's own table, selected by a rule on its address.
func (e *Engine) configureRouting(p *pass, r *InterfaceRecord, place *placement) error {
	nlOps := util.GetNetLinkOps()
	gw := net.ParseIP(r.VirtualRouter).To4()
	if gw == nil {
		return fmt.Errorf("invalid virtual router IP %q for %s", r.VirtualRouter, r)
	}

	if place.namespace != "" {
		if err := nlOps.RouteReplaceDefault(place.namespace, place.device, gw, 0); err != nil {
			return fmt.Errorf("failed to add default route via %s in namespace %s: %w", gw, place.namespace, err)
		}
		klog.V(4).Infof("Added default route via %s in namespace %s", gw, place.namespace)
		if place.namespaced && e.prefs.StartSSHD() {
			return e.nsOps.StartSSHD(place.namespace)
		}
		return nil
	}

	name, err := RoutingTableName(p.snap, r)
	if err != nil {
		return err
	}
	table, err := e.tables.Ensure(name)
	if err != nil {
		return err
	}
	if err := nlOps.RouteReplaceDefault("", place.device, gw, table); err != nil {
		return fmt.Errorf("failed to add default route via %s on %s to table %s: %w", gw, place.device, name, err)
	}
	src := net.ParseIP(r.Addr).To4()
	if src == nil {
		return fmt.Errorf("invalid address %q for %s", r.Addr, r)
	}
	if err := nlOps.RuleAdd(src, table); err != nil {
		return fmt.Errorf("failed to add rule from %s lookup %s: %w", src, name, err)
	}
	klog.V(4).Infof("Added rule from %s lookup %s with default via %s", src, name, gw)
	return nil
}

// configureSecondary adds the missing secondary addresses of r to its outer
// device. In the default namespace each one gets a rule to the interface's
// table.
func (e *Engine) configureSecondary(p *pass, r *InterfaceRecord) error {
	nlOps := util.GetNetLinkOps()
	dev := r.OuterDevice()

	var table int
	var name string
	if r.Namespace == "" {
		var err error
		if name, err = RoutingTableName(p.snap, r); err != nil {
			return err
		}
		if table, err = e.tables.Ensure(name); err != nil {
			return err
		}
	}

	for len(r.MissingSecondaryIPs) > 0 {
		ip := r.MissingSecondaryIPs[0]
		addr, err := hostNet(ip)
		if err != nil {
			return err
		}
		klog.V(4).Infof("Adding secondary address %s to %s", addr, dev)
		if err := nlOps.AddrAdd(r.Namespace, dev, addr); err != nil {
			return fmt.Errorf("failed to add secondary address %s to %s: %w", addr, dev, err)
		}
		if r.Namespace == "" {
			if err := nlOps.RuleAdd(addr.IP, table); err != nil {
				return fmt.Errorf("failed to add rule from %s lookup %s: %w", ip, name, err)
			}
		}
		r.SecondaryAddrs = append(r.SecondaryAddrs, ip)
		r.MissingSecondaryIPs = r.MissingSecondaryIPs[1:]
	}
	return nil
}

// removeRouting deletes the rules and routes of the interface's table and
// unregisters it. Records whose table name can't be derived have nothing to
// remove.
func (e *Engine) removeRouting(p *pass, r *InterfaceRecord) error {
	nlOps := util.GetNetLinkOps()
	name, err := RoutingTableName(p.snap, r)
	if errors.Is(err, errNoTableKey) {
		klog.V(5).Infof("No routing table to remove for %s: %v", r, err)
		return nil
	}
	if err != nil {
		return err
	}
	table, ok, err := e.tables.Lookup(name)
	if err != nil || !ok {
		return err
	}
	if err := nlOps.RuleDelByTable(table); err != nil {
		return fmt.Errorf("failed to remove rules of table %s: %w", name, err)
	}
	if err := nlOps.RouteFlushTable(table); err != nil {
		return fmt.Errorf("failed to flush table %s: %w", name, err)
	}
	klog.V(4).Infof("Removed routing table %s (%d)", name, table)
	return e.tables.Remove(name)
}
