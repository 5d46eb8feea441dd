package metadata

import (
	"context"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"k8s.io/utils/ptr"

	"github.com/oci-utils/vnic-agent/pkg/preferences"
)

const vnicsJSON = `[
  {
    "vnicId": "ocid1.vnic.oc1..primary",
    "privateIp": "10.0.0.5",
    "vlanTag": 0,
    "macAddr": "aa:bb:cc:00:00:01",
    "virtualRouterIp": "10.0.0.1",
    "subnetCidrBlock": "10.0.0.0/24"
  },
  {
    "vnicId": "ocid1.vnic.oc1..second",
    "privateIp": "10.0.1.9",
    "vlanTag": 5,
    "macAddr": "aa:bb:cc:00:00:02",
    "virtualRouterIp": "10.0.1.1",
    "subnetCidrBlock": "10.0.1.0/24",
    "nicIndex": 1
  }
]`

type fakeLister struct {
	ips map[string][]string
	err error
}

func (f *fakeLister) PrivateIPs(_ context.Context, vnicID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ips[vnicID], nil
}

type fakeStore struct {
	recorded []preferences.SecondaryIP
	sets     int
}

func (f *fakeStore) SecondaryIPsOf(vnicID string) []string {
	var ips []string
	for _, s := range f.recorded {
		if s.VNICID == vnicID {
			ips = append(ips, s.IP)
		}
	}
	return ips
}

func (f *fakeStore) SetSecondaryIPs(ips []preferences.SecondaryIP) error {
	f.sets++
	f.recorded = ips
	return nil
}

type fakePrivateIPClient struct {
	pages []core.ListPrivateIpsResponse
	reqs  []core.ListPrivateIpsRequest
}

func (f *fakePrivateIPClient) ListPrivateIps(_ context.Context, req core.ListPrivateIpsRequest) (core.ListPrivateIpsResponse, error) {
	f.reqs = append(f.reqs, req)
	if len(f.pages) == 0 {
		return core.ListPrivateIpsResponse{}, fmt.Errorf("unexpected call")
	}
	resp := f.pages[0]
	f.pages = f.pages[1:]
	return resp, nil
}

var _ = Describe("Metadata", func() {
	var server *ghttp.Server
	var client *Client

	BeforeEach(func() {
		server = ghttp.NewServer()
		client = NewClient(server.URL()+"/opc/v2/", time.Second, 2)
		client.initialInterval = time.Millisecond
	})

	AfterEach(func() {
		server.Close()
	})

	instanceHandler := func() http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/opc/v2/instance/"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer Oracle"),
			ghttp.RespondWith(http.StatusOK, `{"id": "ocid1.instance.oc1..i", "shape": "BM.Standard2.52", "region": "phx"}`),
		)
	}
	vnicsHandler := func() http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/opc/v2/vnics/"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer Oracle"),
			ghttp.RespondWith(http.StatusOK, vnicsJSON),
		)
	}

	Context("client", func() {
		It("decodes the vnics document", func() {
			server.AppendHandlers(vnicsHandler())
			vnics, err := client.VNICs(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(vnics).To(HaveLen(2))
			Expect(vnics[0]).To(Equal(VNIC{
				VNICID:          "ocid1.vnic.oc1..primary",
				PrivateIP:       "10.0.0.5",
				MACAddr:         "aa:bb:cc:00:00:01",
				VirtualRouterIP: "10.0.0.1",
				SubnetCIDRBlock: "10.0.0.0/24",
			}))
			Expect(vnics[1].VLANTag).To(Equal(5))
			Expect(vnics[1].NICIndex).To(Equal(ptr.To(1)))
		})

		It("retries server errors", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusServiceUnavailable, ""),
				instanceHandler(),
			)
			instance, err := client.Instance(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(instance.Shape).To(Equal("BM.Standard2.52"))
			Expect(server.ReceivedRequests()).To(HaveLen(2))
		})

		It("gives up after the configured retries", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusInternalServerError, ""),
				ghttp.RespondWith(http.StatusInternalServerError, ""),
				ghttp.RespondWith(http.StatusInternalServerError, ""),
			)
			_, err := client.Instance(context.Background())
			Expect(err).To(MatchError(ErrUnavailable))
			Expect(server.ReceivedRequests()).To(HaveLen(3))
		})

		It("does not retry client errors", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, ""))
			_, err := client.VNICs(context.Background())
			Expect(err).To(MatchError(ErrUnavailable))
			Expect(err).To(MatchError(ContainSubstring("404")))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Context("fetcher", func() {
		BeforeEach(func() {
			server.AppendHandlers(instanceHandler(), vnicsHandler())
		})

		It("uses the API listing and records the secondary IPs", func() {
			lister := &fakeLister{ips: map[string][]string{
				"ocid1.vnic.oc1..primary": {"10.0.0.5", "10.0.0.6"},
				"ocid1.vnic.oc1..second":  {"10.0.1.9"},
			}}
			store := &fakeStore{}
			snap, err := NewFetcher(client, lister, store).Fetch(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.IsBareMetal()).To(BeTrue())
			Expect(snap.VNICs).To(HaveLen(2))
			Expect(snap.AllPrivateIPs("ocid1.vnic.oc1..primary")).To(Equal([]string{"10.0.0.5", "10.0.0.6"}))
			Expect(store.recorded).To(Equal([]preferences.SecondaryIP{{IP: "10.0.0.6", VNICID: "ocid1.vnic.oc1..primary"}}))
			v, ok := snap.VNIC("ocid1.vnic.oc1..second")
			Expect(ok).To(BeTrue())
			Expect(v.PrivateIP).To(Equal("10.0.1.9"))
		})

		It("falls back to the recorded secondary IPs", func() {
			lister := &fakeLister{err: fmt.Errorf("not authorized")}
			store := &fakeStore{recorded: []preferences.SecondaryIP{{IP: "10.0.1.10", VNICID: "ocid1.vnic.oc1..second"}}}
			snap, err := NewFetcher(client, lister, store).Fetch(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.AllPrivateIPs("ocid1.vnic.oc1..second")).To(Equal([]string{"10.0.1.10"}))
			Expect(snap.AllPrivateIPs("ocid1.vnic.oc1..primary")).To(BeEmpty())
			Expect(store.sets).To(BeZero())
		})

		It("works without any private IP source", func() {
			snap, err := NewFetcher(client, nil, nil).Fetch(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.PrivateIPs).To(BeEmpty())
		})
	})

	It("pages through the private IP API", func() {
		fake := &fakePrivateIPClient{pages: []core.ListPrivateIpsResponse{
			{
				Items:       []core.PrivateIp{{IpAddress: common.String("10.0.0.5")}, {IpAddress: common.String("10.0.0.6")}},
				OpcNextPage: common.String("page2"),
			},
			{
				Items: []core.PrivateIp{{IpAddress: common.String("10.0.0.7")}, {}},
			},
		}}
		lister := &APIPrivateIPLister{client: fake}
		ips, err := lister.PrivateIPs(context.Background(), "ocid1.vnic.oc1..primary")
		Expect(err).NotTo(HaveOccurred())
		Expect(ips).To(Equal([]string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}))
		Expect(fake.reqs).To(HaveLen(2))
		Expect(*fake.reqs[0].VnicId).To(Equal("ocid1.vnic.oc1..primary"))
		Expect(fake.reqs[0].Page).To(BeNil())
		Expect(*fake.reqs[1].Page).To(Equal("page2"))
	})

	DescribeTable("VNIC validation",
		func(v VNIC, errSubstring string) {
			err := v.Validate()
			if errSubstring == "" {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(ContainSubstring(errSubstring)))
			}
		},
		Entry("valid", VNIC{MACAddr: "aa:bb:cc:00:00:01", SubnetCIDRBlock: "10.0.0.0/24"}, ""),
		Entry("no mac", VNIC{VNICID: "v", SubnetCIDRBlock: "10.0.0.0/24"}, "has no MAC address"),
		Entry("bad subnet", VNIC{VNICID: "v", MACAddr: "aa:bb:cc:00:00:01", SubnetCIDRBlock: "10.0.0.0"}, "invalid subnet"),
	)
})
