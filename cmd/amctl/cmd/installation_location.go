package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	prettyjson "github.com/hokaccha/go-prettyjson"
	"github.com/olekukonko/tablewriter"

	"github.com/appkit/amd/internal/rpc"
)

const ListInstallationLocationsCommandDescription = "lists every configured installation location"

type ListInstallationLocationsCommand struct {
	InstallerCommand
}

func (c *ListInstallationLocationsCommand) Execute(args []string) error {
	if err := c.InstallerCommand.Execute(nil); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids, err := c.installer.InstallationLocationIds(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Type", "Default", "Mounted", "Free", "Total"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, id := range ids.IDs {
		loc, err := c.installer.GetInstallationLocation(ctx, &rpc.GetRequest{ID: id})
		if err != nil {
			continue
		}
		line := fmt.Sprintf("%s\t%s\t%t\t%t\t%s\t%s",
			loc.ID, loc.Type, loc.IsDefault, loc.Mounted,
			units.BytesSize(float64(loc.FreeBytes)), units.BytesSize(float64(loc.TotalBytes)))
		table.Append(strings.Split(line, "\t"))
	}

	table.Render()
	return nil
}

const ShowInstallationLocationCommandDescription = "shows the detailed state of one installation location"

type ShowInstallationLocationCommand struct {
	Args struct {
		ID string `positional-arg-name:"id" description:"installation location id"`
	} `positional-args:"yes"`

	InstallerCommand
}

func (c *ShowInstallationLocationCommand) Execute(args []string) error {
	if err := c.InstallerCommand.Execute(nil); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	loc, err := c.installer.GetInstallationLocation(ctx, &rpc.GetRequest{ID: c.Args.ID})
	if err != nil {
		return err
	}

	formatted, err := prettyjson.Marshal(loc)
	if err != nil {
		fmt.Printf("%+v\n", loc)
		return nil
	}
	fmt.Println(string(formatted))
	return nil
}
