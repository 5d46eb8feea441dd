package vnic

import (
	"context"
	"net"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"

	"github.com/oci-utils/vnic-agent/pkg/inventory"
	"github.com/oci-utils/vnic-agent/pkg/metadata"
)

const (
	vmShape = "VM.Standard2.1"
	bmShape = "BM.Standard2.52"
)

type fakeSource struct {
	snap *metadata.Snapshot
	err  error
}

func (f *fakeSource) Fetch(context.Context) (*metadata.Snapshot, error) {
	return f.snap, f.err
}

type fakeInventory struct {
	inv inventory.Inventory
}

func (f *fakeInventory) Collect() (inventory.Inventory, error) {
	return f.inv, nil
}

type fakeReloader struct {
	calls int
}

func (f *fakeReloader) Reload() error {
	f.calls++
	return nil
}

func vnicOf(id, mac, ip, cidr, gw string) metadata.VNIC {
	return metadata.VNIC{
		VNICID:          id,
		MACAddr:         mac,
		PrivateIP:       ip,
		SubnetCIDRBlock: cidr,
		VirtualRouterIP: gw,
	}
}

func onNIC(v metadata.VNIC, nic, vlanTag int) metadata.VNIC {
	v.NICIndex = ptr.To(nic)
	v.VLANTag = vlanTag
	return v
}

func snapshotOf(shape string, vnics ...metadata.VNIC) *metadata.Snapshot {
	return &metadata.Snapshot{Shape: shape, VNICs: vnics, PrivateIPs: map[string][]string{}}
}

// device returns an up Ethernet device carrying addrs, given as ip/len
func device(name, mac string, index int, addrs ...string) inventory.Device {
	d := inventory.Device{
		Name:      name,
		MAC:       strings.ToUpper(mac),
		Index:     index,
		Type:      inventory.TypeEther,
		OperState: "up",
		Flags:     sets.New(inventory.FlagUp, inventory.FlagLowerUp),
	}
	for _, a := range addrs {
		ip, bits, _ := strings.Cut(a, "/")
		prefixLen, _ := strconv.Atoi(bits)
		d.Addresses = append(d.Addresses, inventory.Address{IP: ip, PrefixLen: prefixLen})
	}
	return d
}

func stacked(d inventory.Device, subtype, link string, vlanID int) inventory.Device {
	d.Subtype = subtype
	d.Link = link
	d.VlanID = vlanID
	return d
}

func ip4(s string) net.IP {
	return net.ParseIP(s).To4()
}

func ipNet4(s string, bits int) *net.IPNet {
	return &net.IPNet{IP: ip4(s), Mask: net.CIDRMask(bits, 32)}
}

func byMAC(records []*InterfaceRecord, mac string) *InterfaceRecord {
	for _, r := range records {
		if r.MAC == mac {
			return r
		}
	}
	return nil
}
