//go:build linux

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/inhies/go-bytesize"
	"github.com/urfave/cli/v3"

	"github.com/lxcbox/lxcbox/domain"
	"github.com/lxcbox/lxcbox/driver"
)

// dirFlags are the two flags every one-shot subcommand needs to open
// the same on-disk driver state the daemon uses.
var dirFlags = []cli.Flag{
	&cli.StringFlag{Name: "config-dir", Value: "/etc/lxcbox"},
	&cli.StringFlag{Name: "state-dir", Value: "/var/run/lxcbox"},
}

func opsCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "define",
			Usage: "Register a container definition without starting it",
			Flags: append(dirFlags,
				&cli.StringFlag{Name: "name", Usage: "Container name"},
				&cli.StringFlag{Name: "memory", Value: "512MB", Usage: "Max memory bound (e.g. 512MB, 1GB)"},
				&cli.StringFlag{Name: "console", Usage: "Host-visible console device path"},
				&cli.StringFlag{Name: "init", Usage: "Init program path inside the container"},
				&cli.StringFlag{Name: "bridge", Usage: "Attach one interface to this host bridge"},
			),
			Action: func(ctx context.Context, c *cli.Command) error {
				d, err := driver.Startup(c.String("config-dir"), c.String("state-dir"))
				if err != nil {
					return err
				}

				mem, err := bytesize.Parse(c.String("memory"))
				if err != nil {
					return fmt.Errorf("bad --memory %q: %w", c.String("memory"), err)
				}

				def := &domain.Definition{
					Name:      c.String("name"),
					MaxMemory: uint64(mem),
					Console:   c.String("console"),
					InitPath:  c.String("init"),
				}
				if b := c.String("bridge"); b != "" {
					def.Interfaces = append(def.Interfaces, &domain.NetIface{
						Type:   domain.NetIfaceBridge,
						Target: b,
					})
				}

				rt, err := d.Define(def)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "defined %s (uuid %s)\n", rt.Def.Name, rt.Def.UUID)
				return nil
			},
		},
		{
			Name:  "start",
			Usage: "Start a previously defined container",
			Flags: append(dirFlags, &cli.StringFlag{Name: "name", Required: true}),
			Action: func(ctx context.Context, c *cli.Command) error {
				d, err := driver.Startup(c.String("config-dir"), c.String("state-dir"))
				if err != nil {
					return err
				}
				rt, err := d.LookupByName(c.String("name"))
				if err != nil {
					return err
				}
				if err := d.Start(rt); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "started %s as pid %d\n", rt.Def.Name, rt.RuntimeID)
				return nil
			},
		},
		{
			Name:  "destroy",
			Usage: "Forcibly stop and tear down a running container",
			Flags: append(dirFlags, &cli.StringFlag{Name: "name", Required: true}),
			Action: func(ctx context.Context, c *cli.Command) error {
				d, err := driver.Startup(c.String("config-dir"), c.String("state-dir"))
				if err != nil {
					return err
				}
				rt, err := d.LookupByName(c.String("name"))
				if err != nil {
					return err
				}
				return d.Destroy(rt)
			},
		},
		{
			Name:  "list",
			Usage: "List active and inactive containers",
			Flags: dirFlags,
			Action: func(ctx context.Context, c *cli.Command) error {
				d, err := driver.Startup(c.String("config-dir"), c.String("state-dir"))
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, "active:", d.ListActiveIDs(0))
				fmt.Fprintln(os.Stdout, "inactive:", d.ListInactiveNames(0))
				return nil
			},
		},
		{
			Name:  "dumpxml",
			Usage: "Print a container's persisted XML definition",
			Flags: append(dirFlags, &cli.StringFlag{Name: "name", Required: true}),
			Action: func(ctx context.Context, c *cli.Command) error {
				d, err := driver.Startup(c.String("config-dir"), c.String("state-dir"))
				if err != nil {
					return err
				}
				rt, err := d.LookupByName(c.String("name"))
				if err != nil {
					return err
				}
				xmlStr, err := d.DumpXML(rt)
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, xmlStr)
				return nil
			},
		},
	}
}
