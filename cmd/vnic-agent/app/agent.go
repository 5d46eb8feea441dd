package app

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
	kexec "k8s.io/utils/exec"

	"github.com/oci-utils/vnic-agent/pkg/config"
	"github.com/oci-utils/vnic-agent/pkg/inventory"
	"github.com/oci-utils/vnic-agent/pkg/metadata"
	"github.com/oci-utils/vnic-agent/pkg/preferences"
	"github.com/oci-utils/vnic-agent/pkg/util"
	"github.com/oci-utils/vnic-agent/pkg/vnic"
)

// agent bundles what every command works with
type agent struct {
	cfg    *config.Config
	prefs  *preferences.Store
	engine *vnic.Engine
	lock   *util.InstanceLock
}

func newAgent(ctx *cli.Context) (*agent, error) {
	cfg, err := config.InitConfig(ctx)
	if err != nil {
		return nil, err
	}
	prefs, err := preferences.Load(cfg.Paths.StateFile, cfg.Paths.LegacyExcludeFile)
	if err != nil {
		return nil, err
	}

	imds := metadata.NewClient(cfg.Metadata.Endpoint, cfg.MetadataTimeout(), cfg.Metadata.Retries)
	var source *metadata.Fetcher
	if cfg.Metadata.UseAPI {
		lister, err := metadata.NewAPIPrivateIPLister()
		if err != nil {
			klog.Warningf("Secondary private IPs will come from %s only: %v", cfg.Paths.StateFile, err)
			source = metadata.NewFetcher(imds, nil, prefs)
		} else {
			source = metadata.NewFetcher(imds, lister, prefs)
		}
	} else {
		source = metadata.NewFetcher(imds, nil, prefs)
	}

	engine := vnic.NewEngine(
		cfg,
		source,
		inventory.NewCollector(cfg.Paths.NetnsDir, nil, nil),
		prefs,
		util.NewNamespaceOps(kexec.New(), cfg.Paths.IP, cfg.Paths.SSHD),
		util.NewRouteTables(cfg.Paths.RTTables, cfg.Routing.TableMin, cfg.Routing.TableMax),
		util.NewNMConfig(cfg.Paths.NMConf, util.NewDBusNMReloader()),
	)
	return &agent{
		cfg:    cfg,
		prefs:  prefs,
		engine: engine,
		lock:   util.NewInstanceLock(cfg.Paths.LockFile),
	}, nil
}

// locked runs fn holding the instance lock, on the preferences as saved by
// whoever held it last
func (a *agent) locked(fn func() error) error {
	if err := a.lock.Lock(); err != nil {
		return err
	}
	defer a.lock.Unlock()
	if err := a.prefs.Reload(); err != nil {
		return err
	}
	return fn()
}

// withAgent adapts fn into a cli action
func withAgent(fn func(ctx *cli.Context, a *agent) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		a, err := newAgent(ctx)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return fn(ctx, a)
	}
}

// requireArgs fails unless ctx carries exactly n positional arguments
func requireArgs(ctx *cli.Context, n int) error {
	if ctx.NArg() != n {
		return cli.Exit(fmt.Sprintf("%s: expected %d argument(s), got %d\nusage: %s %s",
			ctx.Command.Name, n, ctx.NArg(), ctx.Command.Name, ctx.Command.ArgsUsage), 2)
	}
	return nil
}
