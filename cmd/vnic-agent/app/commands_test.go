package app

import (
	"bytes"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/oci-utils/vnic-agent/pkg/preferences"
	"github.com/oci-utils/vnic-agent/pkg/vnic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("commands", func() {
	DescribeTable("parseSecondaryIP",
		func(in string, want preferences.SecondaryIP, wantErr string) {
			got, err := parseSecondaryIP(in)
			if wantErr != "" {
				Expect(err).To(MatchError(ContainSubstring(wantErr)))
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("pair", "10.0.0.10,ocid1.vnic.a", preferences.SecondaryIP{IP: "10.0.0.10", VNICID: "ocid1.vnic.a"}, ""),
		Entry("spaces", " 10.0.0.10 , ocid1.vnic.a ", preferences.SecondaryIP{IP: "10.0.0.10", VNICID: "ocid1.vnic.a"}, ""),
		Entry("no VNIC", "10.0.0.10", preferences.SecondaryIP{}, "expected IP,VNIC-OCID"),
		Entry("empty VNIC", "10.0.0.10,", preferences.SecondaryIP{}, "expected IP,VNIC-OCID"),
		Entry("IPv6", "fd00::1,ocid1.vnic.a", preferences.SecondaryIP{}, "invalid IPv4 address"),
		Entry("garbage", "ens3,ocid1.vnic.a", preferences.SecondaryIP{}, "invalid IPv4 address"),
	)

	It("reports every outcome and fails on interface failures", func() {
		res := &vnic.Result{Outcomes: []vnic.Outcome{
			{Action: vnic.ActionConfigure, Interface: "ens4 (AA:BB:CC:00:00:02)"},
			{Action: vnic.ActionRemoveSecondary, Message: "VNIC ocid1.vnic.gone is not attached"},
			{Action: vnic.ActionDeconfigure, Interface: "ens5 (AA:BB:CC:00:00:03)", Err: errors.New("permission denied")},
		}}
		var buf bytes.Buffer
		err := reportResult(&buf, res)
		Expect(buf.String()).To(Equal("configure ens4 (AA:BB:CC:00:00:02): done\n" +
			"remove-secondary: VNIC ocid1.vnic.gone is not attached\n" +
			"deconfigure ens5 (AA:BB:CC:00:00:03): failed: permission denied\n"))
		var exitErr cli.ExitCoder
		Expect(errors.As(err, &exitErr)).To(BeTrue())
		Expect(exitErr.ExitCode()).To(Equal(1))

		buf.Reset()
		Expect(reportResult(&buf, &vnic.Result{})).To(Succeed())
		Expect(buf.String()).To(BeEmpty())
	})
})
