package vnic

import (
	"fmt"
	"net"
	"strconv"

	"github.com/oci-utils/vnic-agent/pkg/types"
)

// ConfState is the reconciliation tag of an interface
type ConfState string

const (
	// StateOK means the host already matches the desired state
	StateOK ConfState = "-"
	// StateAdd means the VNIC is desired but not configured on the host
	StateAdd ConfState = "ADD"
	// StateDelete means the host carries configuration nothing claims anymore
	StateDelete ConfState = "DELETE"
	// StateExcluded freezes the interface regardless of any other tag
	StateExcluded ConfState = "EXCL"
)

// Link types of an InterfaceRecord
const (
	LinkTypeEther   = "ether"
	LinkTypeVLAN    = "vlan"
	LinkTypeMacvlan = "macvlan"
	LinkTypeMacvtap = "macvtap"
)

// InterfaceRecord is the correlated view of one VNIC or one host device.
// Empty strings and nil pointers mean the field is absent.
type InterfaceRecord struct {
	// MAC in canonical uppercase form
	MAC string
	// Iface is the device carrying the VNIC. On a macvlan/vlan stack it is
	// the physical device the macvlan is cloned from.
	Iface    string
	Link     string
	LinkType string
	State    string
	// Index is the kernel ifindex, 0 when unknown
	Index int
	// Namespace is empty for the default namespace. On a stack it is where
	// the vlan device lives.
	Namespace string
	// IfaceNamespace is the namespace of Iface
	IfaceNamespace string
	// linkNamespace is the namespace of Link
	linkNamespace string

	Addr          string
	SubnetPrefix  string
	SubnetBits    int
	VirtualRouter string
	// VLAN is the vlan device name of a macvlan/vlan stack
	VLAN string
	// Macvlan is the macvlan device name of a macvlan/vlan stack
	Macvlan string
	// VLANTag is 0 when untagged
	VLANTag  int
	NICIndex *int
	VNICID   string

	IsPrimary bool
	IsVF      bool

	// SecondaryAddrs are the addresses found on the device besides Addr
	SecondaryAddrs []string
	// DesiredSecondaryIPs are the secondary private IPs of the VNIC
	DesiredSecondaryIPs []string
	// MissingSecondaryIPs are the desired secondary IPs not on the device
	MissingSecondaryIPs []string

	ConfState ConfState
	// Err is set when the record could not be correlated, the engine never
	// acts on such a record
	Err error
}

// FromMetadata tells whether the record was built or correlated from a VNIC
func (r *InterfaceRecord) FromMetadata() bool {
	return r.VNICID != ""
}

// OuterDevice is the device addresses are assigned to: the vlan device of a
// stack, else the device itself
func (r *InterfaceRecord) OuterDevice() string {
	if r.VLAN != "" {
		return r.VLAN
	}
	return r.Iface
}

// AddrNet returns the primary address with its subnet mask
func (r *InterfaceRecord) AddrNet() (*net.IPNet, error) {
	return ipNet(r.Addr, r.SubnetBits)
}

// ObservedAddrs returns every address found on the device
func (r *InterfaceRecord) ObservedAddrs() []string {
	if r.Addr == "" {
		return r.SecondaryAddrs
	}
	return append([]string{r.Addr}, r.SecondaryAddrs...)
}

// DisplayFields returns the record in presentation form, absent fields
// replaced by the "-" sentinel
func (r *InterfaceRecord) DisplayFields() map[string]string {
	orAbsent := func(s string) string {
		if s == "" {
			return types.AbsentField
		}
		return s
	}
	intOrAbsent := func(i int) string {
		if i == 0 {
			return types.AbsentField
		}
		return strconv.Itoa(i)
	}
	fields := map[string]string{
		"CONFSTATE": string(r.ConfState),
		"ADDR":      orAbsent(r.Addr),
		"SPREFIX":   orAbsent(r.SubnetPrefix),
		"SBITS":     intOrAbsent(r.SubnetBits),
		"VIRTRT":    orAbsent(r.VirtualRouter),
		"NS":        orAbsent(r.Namespace),
		"IND":       intOrAbsent(r.Index),
		"IFACE":     orAbsent(r.Iface),
		"VLTAG":     types.AbsentField,
		"VLAN":      orAbsent(r.VLAN),
		"STATE":     orAbsent(r.State),
		"MAC":       orAbsent(r.MAC),
		"NIC_I":     types.AbsentField,
		"VNIC":      orAbsent(r.VNICID),
	}
	if r.FromMetadata() || r.VLANTag != 0 {
		fields["VLTAG"] = strconv.Itoa(r.VLANTag)
	}
	if r.NICIndex != nil {
		fields["NIC_I"] = strconv.Itoa(*r.NICIndex)
	}
	if r.ConfState == "" {
		fields["CONFSTATE"] = types.AbsentField
	}
	return fields
}

func ipNet(ip string, bits int) (*net.IPNet, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", ip)
	}
	if bits <= 0 || bits > 32 {
		return nil, fmt.Errorf("invalid prefix length %d for %s", bits, ip)
	}
	return &net.IPNet{IP: parsed.To4(), Mask: net.CIDRMask(bits, 32)}, nil
}

func hostNet(ip string) (*net.IPNet, error) {
	return ipNet(ip, 32)
}

func (r *InterfaceRecord) String() string {
	name := r.OuterDevice()
	if name == "" {
		name = "<unplumbed>"
	}
	if r.VNICID != "" {
		return fmt.Sprintf("%s (%s, VNIC %s)", name, r.MAC, r.VNICID)
	}
	return fmt.Sprintf("%s (%s)", name, r.MAC)
}
