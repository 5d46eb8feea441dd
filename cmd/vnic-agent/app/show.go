package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/oci-utils/vnic-agent/pkg/types"
	"github.com/oci-utils/vnic-agent/pkg/vnic"
)

var showColumns = []string{
	"CONFSTATE", "ADDR", "SPREFIX", "SBITS", "VIRTRT", "NS", "IND", "IFACE",
	"VLTAG", "VLAN", "STATE", "MAC", "NIC_I", "VNIC",
}

const (
	formatTable = "table"
	formatJSON  = "json"
)

var ShowCommand = cli.Command{
	Name:  "show",
	Usage: "show the VNICs and the host devices they correlate with",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output",
			Usage: "output format: table or json",
			Value: formatTable,
		},
		&cli.BoolFlag{
			Name:  "details",
			Usage: "also list secondary addresses",
		},
	},
	Action: withAgent(func(ctx *cli.Context, a *agent) error {
		// fetching metadata records the secondary IPs the API reports
		var records []*vnic.InterfaceRecord
		err := a.locked(func() error {
			var err error
			records, err = a.engine.NetworkConfig(ctx.Context)
			return err
		})
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return printRecords(ctx.App.Writer, records, ctx.String("output"), ctx.Bool("details"))
	}),
}

func printRecords(w io.Writer, records []*vnic.InterfaceRecord, format string, details bool) error {
	switch format {
	case formatJSON:
		out := make([]map[string]any, 0, len(records))
		for _, r := range records {
			entry := map[string]any{}
			for k, v := range r.DisplayFields() {
				entry[k] = v
			}
			if details {
				entry["SECONDARY_ADDRS"] = nonNil(r.SecondaryAddrs)
				entry["MISSING_SECONDARY_ADDRS"] = nonNil(r.MissingSecondaryIPs)
			}
			if r.Err != nil {
				entry["ERROR"] = r.Err.Error()
			}
			out = append(out, entry)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		header := showColumns
		if details {
			header = append(header[:len(header):len(header)], "SECONDARY")
		}
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for _, r := range records {
			fields := r.DisplayFields()
			row := make([]string, 0, len(header))
			for _, c := range showColumns {
				row = append(row, fields[c])
			}
			if details {
				row = append(row, orDash(strings.Join(r.SecondaryAddrs, ",")))
			}
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, r := range records {
			if r.Err != nil {
				fmt.Fprintf(w, "warning: %s: %v\n", r, r.Err)
			}
		}
		return nil
	default:
		return cli.Exit(fmt.Sprintf("unknown output format %q", format), 2)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return types.AbsentField
	}
	return s
}
