package app

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	utilnet "k8s.io/utils/net"

	"github.com/oci-utils/vnic-agent/pkg/preferences"
	"github.com/oci-utils/vnic-agent/pkg/vnic"
)

// reportResult prints the outcomes of a pass and fails when any interface
// failed
func reportResult(w io.Writer, res *vnic.Result) error {
	for _, o := range res.Outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(w, "%s %s: failed: %v\n", o.Action, o.Interface, o.Err)
		case o.Message != "":
			fmt.Fprintf(w, "%s: %s\n", o.Action, o.Message)
		default:
			fmt.Fprintf(w, "%s %s: done\n", o.Action, o.Interface)
		}
	}
	if failed := res.Failed(); len(failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d interface action(s) failed", len(failed)), 1)
	}
	return nil
}

var ConfigureCommand = cli.Command{
	Name:  "configure",
	Usage: "configure the attached VNICs and tear down what no VNIC claims",
	Action: withAgent(func(ctx *cli.Context, a *agent) error {
		return a.locked(func() error {
			res, err := a.engine.Reconcile(ctx.Context)
			if res != nil {
				if rerr := reportResult(ctx.App.Writer, res); err == nil {
					err = rerr
				}
			}
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		})
	}),
}

// parseSecondaryIP parses an IP,VNIC-OCID pair
func parseSecondaryIP(s string) (preferences.SecondaryIP, error) {
	ip, vnicID, found := strings.Cut(s, ",")
	ip, vnicID = strings.TrimSpace(ip), strings.TrimSpace(vnicID)
	if !found || vnicID == "" {
		return preferences.SecondaryIP{}, fmt.Errorf("invalid secondary IP %q, expected IP,VNIC-OCID", s)
	}
	if !utilnet.IsIPv4String(ip) {
		return preferences.SecondaryIP{}, fmt.Errorf("invalid IPv4 address %q", ip)
	}
	return preferences.SecondaryIP{IP: ip, VNICID: vnicID}, nil
}

var DeconfigureCommand = cli.Command{
	Name:  "deconfigure",
	Usage: "tear down the configured VNICs, or only the given secondary IPs",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "sec-ip",
			Usage: "secondary IP to remove, as IP,VNIC-OCID; may be repeated",
		},
	},
	Action: withAgent(func(ctx *cli.Context, a *agent) error {
		var secondary []preferences.SecondaryIP
		for _, s := range ctx.StringSlice("sec-ip") {
			sip, err := parseSecondaryIP(s)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			secondary = append(secondary, sip)
		}
		return a.locked(func() error {
			res, err := a.engine.Deconfigure(ctx.Context, secondary)
			if res != nil {
				if rerr := reportResult(ctx.App.Writer, res); err == nil {
					err = rerr
				}
			}
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		})
	}),
}

var ExcludeCommand = cli.Command{
	Name:      "exclude",
	Usage:     "never touch the interface with this device name, VNIC OCID or address",
	ArgsUsage: "ITEM",
	Action: withAgent(func(ctx *cli.Context, a *agent) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		return a.locked(func() error { return a.engine.Exclude(ctx.Args().First()) })
	}),
}

var IncludeCommand = cli.Command{
	Name:      "include",
	Usage:     "put an excluded item back under automatic configuration",
	ArgsUsage: "ITEM",
	Action: withAgent(func(ctx *cli.Context, a *agent) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		return a.locked(func() error { return a.engine.Include(ctx.Args().First()) })
	}),
}

var SetNamespaceCommand = cli.Command{
	Name:  "set-namespace",
	Usage: "configure new VNICs in a network namespace",
	Description: "With NAME, every VNIC configured from now on lands in that namespace. " +
		"Without it, each VNIC gets its own namespace named after its device.",
	ArgsUsage: "[NAME]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "none",
			Usage: "configure new VNICs in the default namespace again",
		},
	},
	Action: withAgent(func(ctx *cli.Context, a *agent) error {
		if ctx.NArg() > 1 {
			return requireArgs(ctx, 1)
		}
		return a.locked(func() error {
			if ctx.Bool("none") {
				return a.engine.ClearNamespace()
			}
			return a.engine.SetNamespace(ctx.Args().First())
		})
	}),
}

var SetSSHDCommand = cli.Command{
	Name:      "set-sshd",
	Usage:     "start sshd inside the namespaces VNICs are configured in",
	ArgsUsage: "true|false",
	Action: withAgent(func(ctx *cli.Context, a *agent) error {
		if err := requireArgs(ctx, 1); err != nil {
			return err
		}
		start, err := strconv.ParseBool(ctx.Args().First())
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid value %q: %v", ctx.Args().First(), err), 2)
		}
		return a.locked(func() error { return a.engine.SetSSHD(start) })
	}),
}

// secondaryAddrAction adapts a secondary address operation into a cli action
func secondaryAddrAction(op func(a *agent, ctx *cli.Context, ip, vnicID string) (string, error)) cli.ActionFunc {
	return withAgent(func(ctx *cli.Context, a *agent) error {
		if err := requireArgs(ctx, 2); err != nil {
			return err
		}
		return a.locked(func() error {
			msg, err := op(a, ctx, ctx.Args().Get(0), ctx.Args().Get(1))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if msg != "" {
				fmt.Fprintln(ctx.App.Writer, msg)
			}
			return nil
		})
	})
}

var AddSecondaryAddrCommand = cli.Command{
	Name:      "add-secondary-addr",
	Usage:     "configure a secondary private IP on a VNIC",
	ArgsUsage: "IP VNIC-OCID",
	Action: secondaryAddrAction(func(a *agent, ctx *cli.Context, ip, vnicID string) (string, error) {
		return a.engine.AddSecondaryAddr(ctx.Context, ip, vnicID)
	}),
}

var DelSecondaryAddrCommand = cli.Command{
	Name:      "del-secondary-addr",
	Usage:     "remove a secondary private IP from a VNIC",
	ArgsUsage: "IP VNIC-OCID",
	Action: secondaryAddrAction(func(a *agent, ctx *cli.Context, ip, vnicID string) (string, error) {
		return a.engine.DelSecondaryAddr(ctx.Context, ip, vnicID)
	}),
}
