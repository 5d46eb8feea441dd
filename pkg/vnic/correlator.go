package vnic

import (
	"slices"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/inventory"
	"github.com/oci-utils/vnic-agent/pkg/metadata"
)

// Correlate merges the desired VNICs of snap with the devices of inv into one
// record per MAC address. Desired records come first, in metadata order,
// followed by the host devices no VNIC claims.
func Correlate(snap *metadata.Snapshot, inv inventory.Inventory, excluded sets.Set[string]) []*InterfaceRecord {
	pool := observedRecords(inv)
	isBM := snap.IsBareMetal()

	var records []*InterfaceRecord
	for _, desired := range desiredRecords(snap) {
		records = append(records, desired)
		if desired.Err != nil {
			continue
		}
		var candidates []*InterfaceRecord
		pool = slices.DeleteFunc(pool, func(o *InterfaceRecord) bool {
			if o.MAC == desired.MAC {
				candidates = append(candidates, o)
				return true
			}
			return false
		})

		var observed *InterfaceRecord
		switch len(candidates) {
		case 0:
			desired.ConfState = StateAdd
			desired.MissingSecondaryIPs = slices.Clone(desired.DesiredSecondaryIPs)
			continue
		case 1:
			observed = candidates[0]
		default:
			merged, err := mergeStackedCandidates(candidates, isBM)
			if err != nil {
				klog.Warningf("Cannot correlate VNIC %s: %v", desired.VNICID, err)
				desired.Err = err
				desired.ConfState = StateOK
				continue
			}
			observed = merged
		}
		desired.absorb(observed)
		if observed.Addr != "" {
			desired.ConfState = StateOK
		} else {
			desired.ConfState = StateAdd
		}
		onDevice := sets.New(observed.ObservedAddrs()...)
		for _, ip := range desired.DesiredSecondaryIPs {
			if !onDevice.Has(ip) {
				desired.MissingSecondaryIPs = append(desired.MissingSecondaryIPs, ip)
			}
		}
	}

	for _, group := range groupByMAC(pool) {
		r := group[0]
		if len(group) > 1 {
			merged, err := mergeStackedCandidates(group, isBM)
			if err != nil {
				klog.Warningf("Leaving devices with MAC %s alone: %v", r.MAC, err)
				r = &InterfaceRecord{MAC: r.MAC, Iface: r.Iface, Namespace: r.Namespace, ConfState: StateOK, Err: err}
				records = append(records, r)
				continue
			}
			r = merged
		}
		r.ConfState = StateDelete
		records = append(records, r)
	}

	for _, r := range records {
		if !r.IsPrimary && isExcluded(excluded, r) {
			r.ConfState = StateExcluded
		}
		if r.IsVF && r.ConfState == StateDelete {
			r.ConfState = StateOK
		}
	}
	return records
}

func isExcluded(excluded sets.Set[string], r *InterfaceRecord) bool {
	for _, item := range []string{r.Iface, r.VNICID, r.Addr} {
		if item != "" && excluded.Has(item) {
			return true
		}
	}
	return false
}

// observedRecords turns the Ethernet devices of inv into records. Devices
// without addresses are pre-tagged DELETE unless they are virtual functions.
func observedRecords(inv inventory.Inventory) []*InterfaceRecord {
	var records []*InterfaceRecord
	for _, ns := range inv.Namespaces() {
		for _, d := range inv[ns] {
			if d.Flags.Has(inventory.FlagNoCarrier) || d.Flags.Has(inventory.FlagLoopback) {
				continue
			}
			if d.Type != inventory.TypeEther {
				continue
			}
			r := &InterfaceRecord{
				MAC:       strings.ToUpper(d.MAC),
				Iface:     d.Name,
				Link:      d.Link,
				LinkType:  LinkTypeEther,
				State:     d.OperState,
				Index:          d.Index,
				Namespace:      ns,
				IfaceNamespace: ns,
				linkNamespace:  d.LinkNamespace,
				IsVF:           d.IsVF,
			}
			if d.Subtype != "" {
				r.LinkType = d.Subtype
			}
			if d.Subtype == inventory.SubtypeVLAN {
				r.VLANTag = d.VlanID
			}
			if len(d.Addresses) > 0 {
				r.ConfState = StateOK
				r.Addr = d.Addresses[0].IP
				r.SubnetBits = d.Addresses[0].PrefixLen
				for _, a := range d.Addresses[1:] {
					r.SecondaryAddrs = append(r.SecondaryAddrs, a.IP)
				}
			} else if !d.IsVF {
				r.ConfState = StateDelete
			}
			records = append(records, r)
		}
	}
	return records
}

// desiredRecords builds one record per VNIC, the first one being the primary
func desiredRecords(snap *metadata.Snapshot) []*InterfaceRecord {
	records := make([]*InterfaceRecord, 0, len(snap.VNICs))
	for i := range snap.VNICs {
		v := &snap.VNICs[i]
		r := &InterfaceRecord{
			MAC:           strings.ToUpper(v.MACAddr),
			Addr:          v.PrivateIP,
			VirtualRouter: v.VirtualRouterIP,
			VLANTag:       v.VLANTag,
			NICIndex:      v.NICIndex,
			VNICID:        v.VNICID,
			IsPrimary:     i == 0,
		}
		if err := v.Validate(); err != nil {
			r.Err = err
			r.ConfState = StateOK
			records = append(records, r)
			continue
		}
		prefix, bits, _ := strings.Cut(v.SubnetCIDRBlock, "/")
		r.SubnetPrefix = prefix
		r.SubnetBits, _ = strconv.Atoi(bits)
		for _, ip := range snap.AllPrivateIPs(v.VNICID) {
			if ip != v.PrivateIP && !slices.Contains(r.DesiredSecondaryIPs, ip) {
				r.DesiredSecondaryIPs = append(r.DesiredSecondaryIPs, ip)
			}
		}
		records = append(records, r)
	}
	return records
}

// absorb merges the host side fields of an observed record. What the host
// reports wins over metadata, except for the subnet.
func (r *InterfaceRecord) absorb(o *InterfaceRecord) {
	r.Iface = o.Iface
	r.Link = o.Link
	r.LinkType = o.LinkType
	r.State = o.State
	r.Index = o.Index
	r.Namespace = o.Namespace
	r.IfaceNamespace = o.IfaceNamespace
	r.IsVF = o.IsVF
	r.VLAN = o.VLAN
	r.Macvlan = o.Macvlan
	if r.VLANTag == 0 {
		r.VLANTag = o.VLANTag
	}
	if o.Addr != "" {
		r.Addr = o.Addr
		if r.SubnetBits == 0 {
			r.SubnetBits = o.SubnetBits
		}
	}
	r.SecondaryAddrs = slices.Clone(o.SecondaryAddrs)
}

// mergeStackedCandidates resolves several devices sharing one MAC. The only
// supported case is the bare metal macvlan + vlan stack: the macvlan gives
// the physical device and the vlan gives the visible device and addresses.
func mergeStackedCandidates(candidates []*InterfaceRecord, isBM bool) (*InterfaceRecord, error) {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Iface)
	}
	ambiguous := func(reason string) error {
		return &AmbiguousCorrelationError{MAC: candidates[0].MAC, Candidates: names, Reason: reason}
	}
	if len(candidates) > 2 {
		return nil, ambiguous("more than two devices")
	}
	if !isBM {
		return nil, ambiguous("stacked devices are only expected on bare metal shapes")
	}
	var macvlan, vlan *InterfaceRecord
	for _, c := range candidates {
		switch c.LinkType {
		case LinkTypeMacvlan:
			macvlan = c
		case LinkTypeVLAN:
			vlan = c
		}
	}
	if macvlan == nil || vlan == nil {
		return nil, ambiguous("expected one macvlan and one vlan device")
	}

	merged := *macvlan
	merged.Iface = macvlan.Link
	merged.IfaceNamespace = macvlan.linkNamespace
	merged.Namespace = vlan.Namespace
	merged.Macvlan = macvlan.Iface
	merged.VLAN = vlan.Iface
	merged.VLANTag = vlan.VLANTag
	merged.Addr = vlan.Addr
	merged.SubnetBits = vlan.SubnetBits
	merged.SecondaryAddrs = slices.Clone(vlan.SecondaryAddrs)
	merged.ConfState = vlan.ConfState
	return &merged, nil
}

func groupByMAC(records []*InterfaceRecord) [][]*InterfaceRecord {
	index := map[string]int{}
	var groups [][]*InterfaceRecord
	for _, r := range records {
		i, ok := index[r.MAC]
		if !ok {
			index[r.MAC] = len(groups)
			groups = append(groups, []*InterfaceRecord{r})
			continue
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}
