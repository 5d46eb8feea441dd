package inventory

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/k8snetworkplumbingwg/sriovnet"
	"github.com/spf13/afero"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/pkg/util"
)

// Device flags
const (
	FlagUp        = "UP"
	FlagLowerUp   = "LOWER_UP"
	FlagNoCarrier = "NO-CARRIER"
	FlagLoopback  = "LOOPBACK"
)

// Link encapsulation types
const (
	TypeEther    = "ether"
	TypeLoopback = "loopback"
)

// Subtypes of stacked devices
const (
	SubtypeVLAN    = "vlan"
	SubtypeMacvlan = "macvlan"
	SubtypeMacvtap = "macvtap"
)

// DefaultLinkKinds are the netlink link kinds collected by default: physical
// or virtio devices and the stacked devices the agent creates
var DefaultLinkKinds = sets.New("device", SubtypeVLAN, SubtypeMacvlan, SubtypeMacvtap)

// Address is an IPv4 address assigned to a device
type Address struct {
	IP        string
	PrefixLen int
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%d", a.IP, a.PrefixLen)
}

// Device is one kernel network device
type Device struct {
	Name string
	// MAC in canonical uppercase form
	MAC   string
	Index int
	// Link is the parent device name
	Link string
	// LinkNamespace is the namespace of the parent device
	LinkNamespace string
	LinkIndex     int
	// Subtype is empty for plain devices
	Subtype   string
	Type      string
	OperState string
	Flags     sets.Set[string]
	VlanID    int
	Addresses []Address
	IsVF      bool
}

// Inventory maps a namespace name to its devices. The default namespace is
// the empty string.
type Inventory map[string][]Device

// Namespaces returns the namespace names, default namespace first
func (inv Inventory) Namespaces() []string {
	names := make([]string, 0, len(inv))
	for ns := range inv {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// VFDetector tells whether a device of the default namespace is an SR-IOV
// virtual function
type VFDetector func(name string) bool

// SriovVFDetector detects virtual functions through sysfs
func SriovVFDetector(name string) bool {
	pci, err := sriovnet.GetPciFromNetDevice(name)
	if err != nil {
		return false
	}
	_, err = sriovnet.GetPfPciFromVfPci(pci)
	return err == nil
}

// Collector enumerates devices across the default and named namespaces
type Collector struct {
	netnsDir  string
	linkKinds sets.Set[string]
	isVF      VFDetector
}

// NewCollector returns a Collector for the namespaces mounted in netnsDir
func NewCollector(netnsDir string, linkKinds sets.Set[string], isVF VFDetector) *Collector {
	if linkKinds == nil {
		linkKinds = DefaultLinkKinds
	}
	if isVF == nil {
		isVF = SriovVFDetector
	}
	return &Collector{netnsDir: netnsDir, linkKinds: linkKinds, isVF: isVF}
}

func (c *Collector) namespaces() ([]string, error) {
	names := []string{""}
	entries, err := afero.ReadDir(util.AppFs, c.netnsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return nil, fmt.Errorf("failed to list namespaces in %s: %w", c.netnsDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Collect returns the current inventory. A namespace that vanished or can't
// be read is logged and skipped.
func (c *Collector) Collect() (Inventory, error) {
	names, err := c.namespaces()
	if err != nil {
		return nil, err
	}
	inv := make(Inventory, len(names))
	// names[0] is the default namespace, where moved devices' parents live
	var hostNames map[int]string
	for _, ns := range names {
		devices, linkNames, err := c.collectNamespace(ns, hostNames)
		if err != nil {
			if ns == "" {
				return nil, err
			}
			klog.Warningf("Skipping namespace %s: %v", ns, err)
			continue
		}
		if ns == "" {
			hostNames = linkNames
		}
		inv[ns] = devices
	}
	return inv, nil
}

// collectNamespace returns the devices of ns and the names of all its links
// by index. Parents living in a peer namespace are looked up in hostNames.
func (c *Collector) collectNamespace(ns string, hostNames map[int]string) ([]Device, map[int]string, error) {
	nlOps := util.GetNetLinkOps()
	links, err := nlOps.LinkList(ns)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list links: %w", err)
	}
	names := make(map[int]string, len(links))
	for _, l := range links {
		names[l.Attrs().Index] = l.Attrs().Name
	}

	var devices []Device
	for _, l := range links {
		attrs := l.Attrs()
		if !c.linkKinds.Has(l.Type()) {
			klog.V(5).Infof("Ignoring %s device %s", l.Type(), attrs.Name)
			continue
		}
		if len(attrs.HardwareAddr) == 0 {
			continue
		}
		d := Device{
			Name:      attrs.Name,
			MAC:       strings.ToUpper(attrs.HardwareAddr.String()),
			Index:     attrs.Index,
			LinkIndex: attrs.ParentIndex,
			Type:      attrs.EncapType,
			OperState: attrs.OperState.String(),
			Flags:     flagsOf(attrs.RawFlags),
		}
		d.Link, d.LinkNamespace = parent(ns, attrs, names, hostNames)
		switch link := l.(type) {
		case *netlink.Vlan:
			d.Subtype = SubtypeVLAN
			d.VlanID = link.VlanId
		case *netlink.Macvtap:
			d.Subtype = SubtypeMacvtap
		case *netlink.Macvlan:
			d.Subtype = SubtypeMacvlan
		}
		addrs, err := nlOps.AddrList(ns, l)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list addresses of %s: %w", attrs.Name, err)
		}
		for _, a := range addrs {
			if a.IPNet == nil || a.IP.To4() == nil {
				continue
			}
			ones, _ := a.Mask.Size()
			d.Addresses = append(d.Addresses, Address{IP: a.IP.String(), PrefixLen: ones})
		}
		// sysfs only reflects the default namespace
		if ns == "" && d.Subtype == "" {
			d.IsVF = c.isVF(d.Name)
		}
		devices = append(devices, d)
	}
	return devices, names, nil
}

// parent resolves the name and namespace of the link attrs is stacked on. A
// macvlan moved out of the namespace of its parent carries a link netnsid.
func parent(ns string, attrs *netlink.LinkAttrs, local, host map[int]string) (string, string) {
	if attrs.ParentIndex == 0 {
		return "", ""
	}
	if ns != "" && attrs.NetNsID >= 0 && host != nil {
		return host[attrs.ParentIndex], ""
	}
	return local[attrs.ParentIndex], ns
}
