package vnic

import (
	"fmt"
	"net"
	"strings"

	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/types"
	"github.com/oci-utils/vnic-agent/pkg/util"
)

// deconfigure reverses setup. Routing goes first, then addresses and devices,
// then the namespace. Inside a namespace, deleting the namespace takes the
// routes along. A namespace other interfaces still live in is kept and the
// device handed back to the default namespace instead.
func (e *Engine) deconfigure(p *pass, r *InterfaceRecord) error {
	nlOps := util.GetNetLinkOps()
	ns := r.Namespace
	shared := ns != "" && p.namespaceInUse(ns, r)

	switch {
	case ns == "":
		if err := e.removeRouting(p, r); err != nil {
			return err
		}
	case !shared:
		if err := e.nsOps.KillProcesses(ns); err != nil {
			return err
		}
	default:
		klog.V(4).Infof("Keeping namespace %s, other interfaces live in it", ns)
	}

	var addr *net.IPNet
	if r.Addr != "" {
		var err error
		if addr, err = r.AddrNet(); err != nil {
			return err
		}
	}

	if r.VLAN != "" {
		// rules of a stack no VNIC claims anymore point to a table whose
		// name can't be derived
		if addr != nil {
			if err := e.removeSourceRules(addr.IP); err != nil {
				return err
			}
		}
		macvlan := r.Macvlan
		if macvlan == "" {
			macvlan = fmt.Sprintf("%s.%d", r.Iface, r.VLANTag)
		}
		// deleting the devices drops their addresses
		for _, dev := range []string{r.VLAN, macvlan} {
			klog.V(4).Infof("Deleting %s", dev)
			if err := nlOps.LinkDelete(ns, dev); err != nil {
				return fmt.Errorf("failed to delete %s: %w", dev, err)
			}
		}
	} else {
		if addr != nil {
			klog.V(4).Infof("Removing %s from %s", addr, r.Iface)
			if err := nlOps.AddrDel(ns, r.Iface, addr); err != nil {
				return fmt.Errorf("failed to remove %s from %s: %w", addr, r.Iface, err)
			}
			if err := e.removeSourceRules(addr.IP); err != nil {
				return err
			}
		}
		if shared {
			if err := nlOps.LinkSetNs(ns, r.Iface, ""); err != nil {
				return fmt.Errorf("failed to move %s out of namespace %s: %w", r.Iface, ns, err)
			}
		}
	}

	if ns != "" && !shared {
		if err := e.nsOps.Delete(ns); err != nil {
			return err
		}
	}
	p.removed[r] = true
	return e.nm.Manage(r.MAC)
}

// removeSourceRules deletes the rules selecting a table for traffic from ip
// and the ort tables left without a rule
func (e *Engine) removeSourceRules(ip net.IP) error {
	tables, err := util.GetNetLinkOps().RuleDelBySrc(ip)
	if err != nil {
		return fmt.Errorf("failed to remove rules from %s: %w", ip, err)
	}
	return e.dropOrphanTables(tables)
}

// dropOrphanTables removes the ort tables the deleted rules pointed to. Other
// tables are left alone.
func (e *Engine) dropOrphanTables(ids []int) error {
	nlOps := util.GetNetLinkOps()
	for _, id := range ids {
		name, ok, err := e.tables.NameOf(id)
		if err != nil {
			return err
		}
		if !ok || !strings.HasPrefix(name, types.RouteTablePrefix) {
			continue
		}
		if err := nlOps.RuleDelByTable(id); err != nil {
			return fmt.Errorf("failed to remove rules of table %s: %w", name, err)
		}
		if err := nlOps.RouteFlushTable(id); err != nil {
			return fmt.Errorf("failed to flush table %s: %w", name, err)
		}
		klog.V(4).Infof("Removed orphaned routing table %s (%d)", name, id)
		if err := e.tables.RemoveID(id); err != nil {
			return err
		}
	}
	return nil
}

// removeSecondaryAddr removes one address from the outer device of r along
// with its rules
func (e *Engine) removeSecondaryAddr(r *InterfaceRecord, ip string) error {
	nlOps := util.GetNetLinkOps()
	addr, err := hostNet(ip)
	if err != nil {
		return err
	}
	if ip == r.Addr {
		if addr, err = r.AddrNet(); err != nil {
			return err
		}
	}
	dev := r.OuterDevice()
	klog.V(4).Infof("Removing %s from %s", addr, dev)
	if _, err := nlOps.RuleDelBySrc(addr.IP); err != nil {
		return fmt.Errorf("failed to remove rules from %s: %w", ip, err)
	}
	if err := nlOps.AddrDel(r.Namespace, dev, addr); err != nil {
		return fmt.Errorf("failed to remove %s from %s: %w", addr, dev, err)
	}
	return nil
}
