package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/oci-utils/vnic-agent/cmd/vnic-agent/app"
	"github.com/oci-utils/vnic-agent/pkg/config"
)

func main() {
	c := cli.NewApp()
	c.Name = "vnic-agent"
	c.Usage = "configure the VNICs attached to this instance"
	c.Flags = config.Flags
	c.Commands = []*cli.Command{
		&app.ShowCommand,
		&app.ConfigureCommand,
		&app.DeconfigureCommand,
		&app.ExcludeCommand,
		&app.IncludeCommand,
		&app.SetNamespaceCommand,
		&app.SetSSHDCommand,
		&app.AddSecondaryAddrCommand,
		&app.DelSecondaryAddrCommand,
		&app.DaemonCommand,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.RunContext(ctx, os.Args); err != nil {
		klog.Flush()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	klog.Flush()
}
