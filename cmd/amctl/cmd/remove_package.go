package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/appkit/amd/internal/rpc"
)

const RemovePackageCommandDescription = "removes an installed application and optionally its documents"

type RemovePackageCommand struct {
	Args struct {
		ID string `positional-arg-name:"id" description:"application id"`
	} `positional-args:"yes"`

	KeepDocuments bool `short:"k" long:"keep-documents" description:"keep the application's documents"`
	Force         bool `short:"f" long:"force" description:"force removal even if the application is running"`

	InstallerCommand
}

func (c *RemovePackageCommand) Execute(args []string) error {
	if err := c.InstallerCommand.Execute(nil); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	taskResp, err := c.installer.RemovePackage(ctx, &rpc.RemovePackageRequest{
		AppID:         c.Args.ID,
		KeepDocuments: c.KeepDocuments,
		Force:         c.Force,
	})
	if err != nil {
		return err
	}

	return c.pollUntilDone(taskResp.TaskID)
}

func (c *RemovePackageCommand) pollUntilDone(taskID string) error {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		task, err := c.installer.GetTask(ctx, &rpc.TaskIDRequest{TaskID: taskID})
		cancel()
		if err != nil {
			return err
		}

		switch task.State {
		case "Finished":
			fmt.Printf("removed %s\n", c.Args.ID)
			return nil
		case "Failed":
			return fmt.Errorf("removal failed: %s: %s", task.FailCode, task.FailMessage)
		}

		time.Sleep(250 * time.Millisecond)
	}
}
