package app

import (
	"errors"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/oci-utils/vnic-agent/pkg/preferences"
	"github.com/oci-utils/vnic-agent/pkg/util"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Agent", func() {
	const statePath = "/var/lib/oci-utils/vnic_info"

	var (
		prevFS   afero.Fs
		lockPath string
	)

	BeforeEach(func() {
		prevFS = util.AppFs
		util.AppFs = afero.NewMemMapFs()
		lockPath = filepath.Join(GinkgoT().TempDir(), "vnic-agent.lock")
	})

	AfterEach(func() {
		util.AppFs = prevFS
	})

	agentOn := func() (*agent, *preferences.Store) {
		prefs, err := preferences.Load(statePath, "")
		Expect(err).NotTo(HaveOccurred())
		return &agent{prefs: prefs, lock: util.NewInstanceLock(lockPath)}, prefs
	}

	It("runs each command on the preferences the previous one saved", func() {
		// both loaded before either took the lock
		first, firstPrefs := agentOn()
		second, secondPrefs := agentOn()

		Expect(first.locked(func() error { return firstPrefs.Exclude("ens4") })).To(Succeed())
		Expect(second.locked(func() error { return secondPrefs.Exclude("ens5") })).To(Succeed())

		saved, err := preferences.Load(statePath, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.IsExcluded("ens4")).To(BeTrue())
		Expect(saved.IsExcluded("ens5")).To(BeTrue())
	})

	It("does not run the command on unreadable preferences", func() {
		a, _ := agentOn()
		Expect(afero.WriteFile(util.AppFs, statePath, []byte("{"), 0o644)).To(Succeed())

		ran := false
		err := a.locked(func() error {
			ran = true
			return errors.New("unexpected")
		})
		Expect(err).To(MatchError(ContainSubstring("failed to parse preferences")))
		Expect(ran).To(BeFalse())

		// the lock was released
		Expect(a.lock.TryLock()).To(Succeed())
		a.lock.Unlock()
	})
})
