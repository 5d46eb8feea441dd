package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"k8s.io/utils/ptr"

	"github.com/oci-utils/vnic-agent/pkg/vnic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("show", func() {
	var records []*vnic.InterfaceRecord

	BeforeEach(func() {
		records = []*vnic.InterfaceRecord{
			{
				MAC:            "AA:BB:CC:00:00:01",
				Iface:          "ens3",
				State:          "up",
				Index:          2,
				Addr:           "10.0.0.5",
				SubnetPrefix:   "10.0.0.0",
				SubnetBits:     24,
				VirtualRouter:  "10.0.0.1",
				VNICID:         "ocid1.vnic.a",
				IsPrimary:      true,
				ConfState:      vnic.StateOK,
				SecondaryAddrs: []string{"10.0.0.6"},
			},
			{
				MAC:       "AA:BB:CC:00:00:05",
				Addr:      "10.0.1.9",
				NICIndex:  ptr.To(1),
				VLANTag:   5,
				VNICID:    "ocid1.vnic.b",
				ConfState: vnic.StateAdd,
			},
			{
				MAC:       "AA:BB:CC:00:00:07",
				Iface:     "ens7",
				ConfState: vnic.StateOK,
				Err:       errors.New("ambiguous"),
			},
		}
	})

	It("prints a table with the absent sentinel", func() {
		var buf bytes.Buffer
		Expect(printRecords(&buf, records, formatTable, false)).To(Succeed())
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(5))
		Expect(strings.Fields(lines[0])).To(Equal(showColumns))
		Expect(strings.Fields(lines[1])).To(Equal([]string{
			"-", "10.0.0.5", "10.0.0.0", "24", "10.0.0.1", "-", "2", "ens3", "0", "-", "up",
			"AA:BB:CC:00:00:01", "-", "ocid1.vnic.a",
		}))
		Expect(strings.Fields(lines[2])).To(Equal([]string{
			"ADD", "10.0.1.9", "-", "-", "-", "-", "-", "-", "5", "-", "-",
			"AA:BB:CC:00:00:05", "1", "ocid1.vnic.b",
		}))
		Expect(strings.Fields(lines[3])).To(HaveLen(len(showColumns)))
		Expect(lines[4]).To(Equal("warning: ens7 (AA:BB:CC:00:00:07): ambiguous"))
	})

	It("adds the secondary addresses on request", func() {
		var buf bytes.Buffer
		Expect(printRecords(&buf, records[:2], formatTable, true)).To(Succeed())
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(strings.Fields(lines[0])).To(ContainElement("SECONDARY"))
		Expect(strings.Fields(lines[1])).To(HaveLen(len(showColumns) + 1))
		Expect(strings.Fields(lines[1])[len(showColumns)]).To(Equal("10.0.0.6"))
		Expect(strings.Fields(lines[2])[len(showColumns)]).To(Equal("-"))
		// the shared header must not be altered
		Expect(showColumns).NotTo(ContainElement("SECONDARY"))
	})

	It("prints json", func() {
		var buf bytes.Buffer
		Expect(printRecords(&buf, records, formatJSON, true)).To(Succeed())
		var out []map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &out)).To(Succeed())
		Expect(out).To(HaveLen(3))
		Expect(out[0]).To(HaveKeyWithValue("IFACE", "ens3"))
		Expect(out[0]).To(HaveKeyWithValue("SECONDARY_ADDRS", ConsistOf("10.0.0.6")))
		Expect(out[1]).To(HaveKeyWithValue("CONFSTATE", "ADD"))
		Expect(out[1]).To(HaveKeyWithValue("MISSING_SECONDARY_ADDRS", BeEmpty()))
		Expect(out[2]).To(HaveKeyWithValue("ERROR", "ambiguous"))
	})

	It("rejects unknown formats", func() {
		Expect(printRecords(&bytes.Buffer{}, records, "yaml", false)).To(MatchError(ContainSubstring("unknown output format")))
	})
})
