package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	prettyjson "github.com/hokaccha/go-prettyjson"

	"github.com/appkit/amd/internal/rpc"
)

const StartApplicationCommandDescription = "starts an application, optionally opening a document url"

type StartApplicationCommand struct {
	Args struct {
		ID          string `positional-arg-name:"id" description:"application id"`
		DocumentURL string `positional-arg-name:"doc-url" description:"document url to open"`
	} `positional-args:"yes"`

	GRPCCommand
}

func (c *StartApplicationCommand) Execute(args []string) error {
	if err := c.GRPCCommand.Execute(nil); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := c.app.StartApplication(ctx, &rpc.StartApplicationRequest{ID: c.Args.ID, DocumentURL: c.Args.DocumentURL})
	return err
}

const DebugApplicationCommandDescription = "starts an application under a debug wrapper command"

type DebugApplicationCommand struct {
	Args struct {
		Wrapper     string `positional-arg-name:"wrapper" description:"debug wrapper command"`
		ID          string `positional-arg-name:"id" description:"application id"`
		DocumentURL string `positional-arg-name:"doc-url" description:"document url to open"`
	} `positional-args:"yes"`

	GRPCCommand
}

func (c *DebugApplicationCommand) Execute(args []string) error {
	if err := c.GRPCCommand.Execute(nil); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := c.app.DebugApplication(ctx, &rpc.DebugApplicationRequest{
		Wrapper:     c.Args.Wrapper,
		ID:          c.Args.ID,
		DocumentURL: c.Args.DocumentURL,
	})
	return err
}

const StopApplicationCommandDescription = "stops a running application"

type StopApplicationCommand struct {
	Args struct {
		ID string `positional-arg-name:"id" description:"application id"`
	} `positional-args:"yes"`

	ForceKill bool `short:"f" long:"force-kill" description:"force-kill instead of a graceful stop"`

	GRPCCommand
}

func (c *StopApplicationCommand) Execute(args []string) error {
	if err := c.GRPCCommand.Execute(nil); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := c.app.StopApplication(ctx, &rpc.StopApplicationRequest{ID: c.Args.ID, ForceKill: c.ForceKill})
	return err
}

const ListApplicationsCommandDescription = "lists every known application"

type ListApplicationsCommand struct {
	GRPCCommand
}

func (c *ListApplicationsCommand) Execute(args []string) error {
	if err := c.GRPCCommand.Execute(nil); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids, err := c.app.ApplicationIds(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Runtime", "Builtin", "Alias", "Installed", "State"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, id := range ids.IDs {
		info, err := c.app.Get(ctx, &rpc.GetRequest{ID: id})
		if err != nil {
			continue
		}
		line := fmt.Sprintf("%s\t%s\t%t\t%t\t%t\t%s",
			info.ID, info.RuntimeName, info.IsBuiltIn, info.IsAlias, info.Installed, info.State)
		table.Append(strings.Split(line, "\t"))
	}

	table.Render()
	return nil
}

const ShowApplicationCommandDescription = "shows the detailed state of one application"

type ShowApplicationCommand struct {
	Args struct {
		ID string `positional-arg-name:"id" description:"application id"`
	} `positional-args:"yes"`

	GRPCCommand
}

func (c *ShowApplicationCommand) Execute(args []string) error {
	if err := c.GRPCCommand.Execute(nil); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := c.app.Get(ctx, &rpc.GetRequest{ID: c.Args.ID})
	if err != nil {
		return err
	}

	formatted, err := prettyjson.Marshal(info)
	if err != nil {
		fmt.Printf("%+v\n", info)
		return nil
	}
	fmt.Println(string(formatted))
	return nil
}
