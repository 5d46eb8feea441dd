package preferences

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/oci-utils/vnic-agent/pkg/util"
)

const (
	statePath  = "/var/lib/oci-utils/vnic_info"
	legacyPath = "/var/lib/oci-utils/net_exclude"
)

func readState() map[string]any {
	data, err := afero.ReadFile(util.AppFs, statePath)
	Expect(err).NotTo(HaveOccurred())
	var m map[string]any
	Expect(json.Unmarshal(data, &m)).To(Succeed())
	return m
}

var _ = Describe("Preferences", func() {
	var prevFS afero.Fs

	BeforeEach(func() {
		prevFS = util.AppFs
		util.AppFs = afero.NewMemMapFs()
	})

	AfterEach(func() {
		util.AppFs = prevFS
	})

	It("starts empty when nothing is persisted", func() {
		s, err := Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Excluded().Len()).To(Equal(0))
		_, ok := s.Namespace()
		Expect(ok).To(BeFalse())
		Expect(s.StartSSHD()).To(BeFalse())
		exists, err := afero.Exists(util.AppFs, statePath)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	It("migrates the legacy exclusion list and removes it", func() {
		Expect(afero.WriteFile(util.AppFs, legacyPath, []byte(`["ens5", "10.0.0.9"]`), 0o644)).To(Succeed())
		s, err := Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.IsExcluded("10.0.0.9")).To(BeTrue())
		Expect(s.IsExcluded("ens5")).To(BeTrue())

		exists, err := afero.Exists(util.AppFs, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
		Expect(readState()).To(HaveKeyWithValue("exclude", ConsistOf("ens5", "10.0.0.9")))

		// a second load reads the migrated file
		s, err = Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Excluded().UnsortedList()).To(ConsistOf("ens5", "10.0.0.9"))
	})

	It("ignores the legacy file once the new one exists", func() {
		Expect(afero.WriteFile(util.AppFs, statePath, []byte(`{"exclude": ["ens6"]}`), 0o644)).To(Succeed())
		Expect(afero.WriteFile(util.AppFs, legacyPath, []byte(`["ens5"]`), 0o644)).To(Succeed())
		s, err := Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Excluded().UnsortedList()).To(ConsistOf("ens6"))
	})

	It("fails on a corrupted file", func() {
		Expect(afero.WriteFile(util.AppFs, statePath, []byte(`{"exclude": `), 0o644)).To(Succeed())
		_, err := Load(statePath, legacyPath)
		Expect(err).To(MatchError(ContainSubstring("failed to parse preferences")))
	})

	It("persists exclude and include immediately", func() {
		s, err := Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Exclude("10.0.0.9")).To(Succeed())
		Expect(s.Exclude("10.0.0.9")).To(Succeed())
		Expect(s.Exclude("ocid1.vnic.oc1..b")).To(Succeed())
		Expect(readState()).To(HaveKeyWithValue("exclude", Equal([]any{"10.0.0.9", "ocid1.vnic.oc1..b"})))

		Expect(s.Include("10.0.0.9")).To(Succeed())
		Expect(s.Include("not-there")).To(Succeed())
		Expect(readState()).To(HaveKeyWithValue("exclude", Equal([]any{"ocid1.vnic.oc1..b"})))
		Expect(s.IsExcluded("", "10.0.0.9", "ocid1.vnic.oc1..b")).To(BeTrue())
		Expect(s.IsExcluded("", "10.0.0.9")).To(BeFalse())
	})

	It("distinguishes an empty namespace from no namespace", func() {
		s, err := Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SetNamespace("")).To(Succeed())
		Expect(readState()).To(HaveKeyWithValue("ns", ""))

		s, err = Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		name, ok := s.Namespace()
		Expect(ok).To(BeTrue())
		Expect(name).To(BeEmpty())

		Expect(s.ClearNamespace()).To(Succeed())
		Expect(readState()).NotTo(HaveKey("ns"))
		_, ok = s.Namespace()
		Expect(ok).To(BeFalse())

		Expect(s.SetSSHD(true)).To(Succeed())
		Expect(readState()).To(HaveKeyWithValue("sshd", true))
	})

	It("keeps the secondary IP bookkeeping", func() {
		s, err := Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.AddSecondaryIP("10.0.0.20", "ocid1.vnic.oc1..a")).To(Succeed())
		Expect(s.AddSecondaryIP("10.0.0.20", "ocid1.vnic.oc1..a")).To(Succeed())
		Expect(s.AddSecondaryIP("10.0.0.21", "ocid1.vnic.oc1..a")).To(Succeed())
		Expect(s.AddSecondaryIP("10.0.1.20", "ocid1.vnic.oc1..b")).To(Succeed())
		Expect(readState()).To(HaveKeyWithValue("sec_priv_ip", ContainElement([]any{"10.0.0.20", "ocid1.vnic.oc1..a"})))
		Expect(s.SecondaryIPsOf("ocid1.vnic.oc1..a")).To(Equal([]string{"10.0.0.20", "10.0.0.21"}))

		Expect(s.Exclude("10.0.0.20")).To(Succeed())
		Expect(s.RemoveSecondaryIP("10.0.0.20", "ocid1.vnic.oc1..a")).To(Succeed())
		Expect(s.IsExcluded("10.0.0.20")).To(BeFalse())
		Expect(s.SecondaryIPsOf("ocid1.vnic.oc1..a")).To(Equal([]string{"10.0.0.21"}))

		Expect(s.Exclude("10.0.1.20")).To(Succeed())
		Expect(s.DeleteAllSecondaryIPs("ocid1.vnic.oc1..b")).To(Succeed())
		Expect(s.IsExcluded("10.0.1.20")).To(BeFalse())
		Expect(s.SecondaryIPs()).To(Equal([]SecondaryIP{{IP: "10.0.0.21", VNICID: "ocid1.vnic.oc1..a"}}))

		Expect(s.SetSecondaryIPs([]SecondaryIP{{IP: "10.0.2.2", VNICID: "ocid1.vnic.oc1..c"}})).To(Succeed())
		s, err = Load(statePath, legacyPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SecondaryIPs()).To(Equal([]SecondaryIP{{IP: "10.0.2.2", VNICID: "ocid1.vnic.oc1..c"}}))
	})

	It("picks up changes written by another process", func() {
		s, err := Load(statePath, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Exclude("ens5")).To(Succeed())

		other, err := Load(statePath, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(other.SetSSHD(true)).To(Succeed())
		Expect(other.Include("ens5")).To(Succeed())

		Expect(s.Reload()).To(Succeed())
		Expect(s.StartSSHD()).To(BeTrue())
		Expect(s.IsExcluded("ens5")).To(BeFalse())

		Expect(util.AppFs.Remove(statePath)).To(Succeed())
		Expect(s.Reload()).To(Succeed())
		Expect(s.StartSSHD()).To(BeFalse())

		Expect(afero.WriteFile(util.AppFs, statePath, []byte("{"), 0o644)).To(Succeed())
		Expect(s.Reload()).To(MatchError(ContainSubstring("failed to parse")))
	})
})
