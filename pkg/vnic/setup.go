package vnic

import (
	"errors"
	"fmt"
	"net"

	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/util"
)

const operStateUp = "up"

// placement is where the outer device of a configured interface ended up
type placement struct {
	namespace string
	device    string
	// namespaced is true when the namespace preference asked for it
	namespaced bool
}

// resolveDevice fills in the device of a VNIC the host doesn't report under
// its MAC. On bare metal shapes that is the physical device of the NIC the
// VNIC lives on.
func (e *Engine) resolveDevice(p *pass, r *InterfaceRecord, nicIndex map[int]nicDevice) error {
	if r.Iface != "" {
		return nil
	}
	if p.snap.IsBareMetal() && r.NICIndex != nil {
		if dev, ok := nicIndex[*r.NICIndex]; ok {
			klog.V(4).Infof("Using %s of NIC %d for VNIC %s", dev.name, *r.NICIndex, r.VNICID)
			r.Iface = dev.name
			r.IfaceNamespace = dev.namespace
			r.State = operStateUp
			return nil
		}
	}
	mac, err := net.ParseMAC(r.MAC)
	if err != nil {
		return fmt.Errorf("invalid MAC address %s: %w", r.MAC, err)
	}
	link, err := util.GetNetLinkOps().LinkByHardwareAddr("", mac)
	if err != nil {
		if errors.Is(err, util.ErrLinkNotFound) {
			return &NoDeviceError{MAC: r.MAC, VNICID: r.VNICID}
		}
		return err
	}
	attrs := link.Attrs()
	r.Iface = attrs.Name
	r.Index = attrs.Index
	r.State = attrs.OperState.String()
	return nil
}

// setup brings the device of r up, builds the macvlan/vlan stack bare metal
// shapes need for tagged VNICs, moves the result into the wanted namespace
// and assigns the primary address
func (e *Engine) setup(p *pass, r *InterfaceRecord) (*placement, error) {
	nlOps := util.GetNetLinkOps()

	if r.State != operStateUp {
		klog.V(4).Infof("Bringing %s up", r.Iface)
		if err := nlOps.LinkSetUp(r.IfaceNamespace, r.Iface); err != nil {
			return nil, fmt.Errorf("failed to bring %s up: %w", r.Iface, err)
		}
	}

	stacked := p.snap.IsBareMetal() && r.VLANTag != 0
	macvlan, vlan := r.Macvlan, r.VLAN
	outer := r.Iface
	if stacked {
		if macvlan == "" {
			macvlan = fmt.Sprintf("%s.%d", r.Iface, r.VLANTag)
		}
		if vlan == "" {
			vlan = fmt.Sprintf("%sv%d", r.Iface, r.VLANTag)
		}
		if err := validateInterfaceName(macvlan, "macvlan"); err != nil {
			return nil, err
		}
		if err := validateInterfaceName(vlan, "vlan"); err != nil {
			return nil, err
		}
		outer = vlan
	}

	targetNs, namespaced := e.targetNamespace(outer)
	if namespaced && !e.nsOps.Exists(targetNs) {
		if err := e.nsOps.Add(targetNs); err != nil {
			return nil, err
		}
	}

	place := &placement{namespace: r.Namespace, device: r.Iface, namespaced: namespaced}
	devices := []string{r.Iface}
	switch {
	case stacked && r.VLAN != "":
		// the stack exists but lacks its address
		klog.V(4).Infof("Reusing %s on %s in namespace %q", vlan, macvlan, r.Namespace)
		place.device = vlan
		devices = []string{macvlan, vlan}
		if namespaced && r.Namespace != targetNs {
			if err := moveLinks(r.Namespace, targetNs, devices); err != nil {
				return nil, err
			}
			place.namespace = targetNs
		}
	case stacked:
		mac, err := net.ParseMAC(r.MAC)
		if err != nil {
			return nil, fmt.Errorf("invalid MAC address %s: %w", r.MAC, err)
		}

		klog.V(4).Infof("Creating macvlan %s on %s with MAC %s", macvlan, r.Iface, r.MAC)
		if err := nlOps.LinkAddMacvlan(r.IfaceNamespace, r.Iface, macvlan, mac); err != nil {
			return nil, fmt.Errorf("failed to create macvlan %s for MAC %s: %w", macvlan, r.MAC, err)
		}
		// vlans can only be stacked in the default namespace
		if r.IfaceNamespace != "" {
			if err := nlOps.LinkSetNs(r.IfaceNamespace, macvlan, ""); err != nil {
				return nil, fmt.Errorf("failed to pull macvlan %s out of namespace %s: %w", macvlan, r.IfaceNamespace, err)
			}
		}
		klog.V(4).Infof("Creating vlan %s with tag %d on %s", vlan, r.VLANTag, macvlan)
		if err := nlOps.LinkAddVlan(macvlan, vlan, r.VLANTag); err != nil {
			return nil, fmt.Errorf("failed to create vlan %s on macvlan %s: %w", vlan, macvlan, err)
		}
		place.namespace, place.device = "", vlan
		devices = []string{macvlan, vlan}

		if namespaced {
			if err := moveLinks("", targetNs, devices); err != nil {
				return nil, err
			}
			place.namespace = targetNs
		}
	case namespaced && r.Namespace != targetNs:
		if err := nlOps.LinkSetNs(r.Namespace, r.Iface, targetNs); err != nil {
			return nil, fmt.Errorf("failed to move %s into namespace %s: %w", r.Iface, targetNs, err)
		}
		place.namespace = targetNs
	}
	if stacked {
		r.Macvlan, r.VLAN = macvlan, vlan
	}

	addr, err := r.AddrNet()
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("Adding %s to %s in namespace %q", addr, place.device, place.namespace)
	if err := nlOps.AddrAdd(place.namespace, place.device, addr); err != nil {
		return nil, fmt.Errorf("failed to add %s to %s: %w", addr, place.device, err)
	}

	for _, dev := range devices {
		if err := nlOps.LinkSetMTU(place.namespace, dev, e.cfg.Default.MTU); err != nil {
			return nil, fmt.Errorf("failed to set MTU of %s: %w", dev, err)
		}
		if err := nlOps.LinkSetUp(place.namespace, dev); err != nil {
			return nil, fmt.Errorf("failed to bring %s up: %w", dev, err)
		}
	}

	if err := e.nm.Unmanage(r.MAC); err != nil {
		return nil, err
	}

	r.Namespace = place.namespace
	if !stacked {
		r.IfaceNamespace = place.namespace
	}
	r.State = operStateUp
	return place, nil
}

func moveLinks(fromNs, toNs string, names []string) error {
	for _, name := range names {
		if err := util.GetNetLinkOps().LinkSetNs(fromNs, name, toNs); err != nil {
			return fmt.Errorf("failed to move %s into namespace %s: %w", name, toNs, err)
		}
	}
	return nil
}
