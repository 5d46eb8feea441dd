package testing

import (
	"net"
	"os"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/vishvananda/netlink"
)

// NoRoot is true when the tests don't run with root privileges
func NoRoot() bool {
	return os.Getuid() != 0
}

func MustParseIP(ip string) net.IP {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		panic("failed to parse IP " + ip)
	}
	return parsed
}

func MustParseIPNet(cidr string) *net.IPNet {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	ipNet.IP = ip
	return ipNet
}

func MustParseMAC(mac string) net.HardwareAddr {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(err)
	}
	return hw
}

// AddLink sets up a dummy link with the given hardware address, standing in
// for a VNIC backed device
func AddLink(name, mac string) netlink.Link {
	ginkgo.GinkgoHelper()
	attrs := netlink.LinkAttrs{Name: name}
	if mac != "" {
		attrs.HardwareAddr = MustParseMAC(mac)
	}
	err := netlink.LinkAdd(&netlink.Dummy{LinkAttrs: attrs})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	origLink, err := netlink.LinkByName(name)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	err = netlink.LinkSetUp(origLink)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return origLink
}

func DelLink(name string) {
	ginkgo.GinkgoHelper()
	origLink, err := netlink.LinkByName(name)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	err = netlink.LinkDel(origLink)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
}

// AddrAdd assigns cidr to the named link
func AddrAdd(name, cidr string) {
	ginkgo.GinkgoHelper()
	link, err := netlink.LinkByName(name)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	err = netlink.AddrAdd(link, &netlink.Addr{IPNet: MustParseIPNet(cidr)})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
}
