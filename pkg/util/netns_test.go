package util

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kexec "k8s.io/utils/exec"
	testingexec "k8s.io/utils/exec/testing"
)

func fakeExecWithOutput(out string, err error) (*testingexec.FakeExec, *testingexec.FakeCmd) {
	fcmd := &testingexec.FakeCmd{
		CombinedOutputScript: []testingexec.FakeAction{
			func() ([]byte, []byte, error) { return []byte(out), nil, err },
		},
	}
	fexec := &testingexec.FakeExec{
		CommandScript: []testingexec.FakeCommandAction{
			func(cmd string, args ...string) kexec.Cmd { return testingexec.InitFakeCmd(fcmd, cmd, args...) },
		},
	}
	return fexec, fcmd
}

var _ = Describe("Namespace operations", func() {
	It("starts sshd through ip netns exec", func() {
		fexec, fcmd := fakeExecWithOutput("", nil)
		ops := NewNamespaceOps(fexec, "/usr/sbin/ip", "/usr/sbin/sshd")
		Expect(ops.StartSSHD("onsens3")).To(Succeed())
		Expect(fexec.CommandCalls).To(Equal(1))
		Expect(fcmd.CombinedOutputCalls).To(Equal(1))
		Expect(fcmd.Argv).To(Equal([]string{"/usr/sbin/ip", "netns", "exec", "onsens3", "/usr/sbin/sshd"}))
	})

	It("reports sshd failures", func() {
		fexec, _ := fakeExecWithOutput("bind failed", fmt.Errorf("exit status 255"))
		ops := NewNamespaceOps(fexec, "/usr/sbin/ip", "/usr/sbin/sshd")
		Expect(ops.StartSSHD("onsens3")).To(MatchError(ContainSubstring("failed to start sshd in namespace onsens3")))
	})

	It("kills namespace processes, ignoring vanished ones", func() {
		// pids above the kernel's PID_MAX_LIMIT never exist
		fexec, fcmd := fakeExecWithOutput("4194400\nnot-a-pid\n4194401\n", nil)
		ops := NewNamespaceOps(fexec, "/usr/sbin/ip", "/usr/sbin/sshd")
		Expect(ops.KillProcesses("onsens3")).To(Succeed())
		Expect(fcmd.Argv).To(Equal([]string{"/usr/sbin/ip", "netns", "pids", "onsens3"}))
	})

	It("fails when processes cannot be listed", func() {
		fexec, _ := fakeExecWithOutput("", fmt.Errorf("exit status 1"))
		ops := NewNamespaceOps(fexec, "/usr/sbin/ip", "/usr/sbin/sshd")
		Expect(ops.KillProcesses("onsens3")).To(MatchError(ContainSubstring("failed to list processes of namespace onsens3")))
	})

	It("does not find a namespace that was never created", func() {
		ops := NewNamespaceOps(kexec.New(), "/usr/sbin/ip", "/usr/sbin/sshd")
		Expect(ops.Exists("vnic-agent-test-absent")).To(BeFalse())
	})
})
