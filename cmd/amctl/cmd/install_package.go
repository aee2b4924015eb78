package cmd

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/briandowns/spinner"

	"github.com/appkit/amd/internal/rpc"
)

const InstallPackageCommandDescription = "installs a package, reading it from a file or stdin"

type InstallPackageCommand struct {
	Args struct {
		File string `positional-arg-name:"file" description:"package file path, or - to read from stdin"`
	} `positional-args:"yes"`

	Location string `short:"l" long:"location" description:"installation location id to install into"`

	InstallerCommand
}

func (c *InstallPackageCommand) Execute(args []string) error {
	if err := c.InstallerCommand.Execute(nil); err != nil {
		return err
	}

	path, cleanup, err := c.resolvePackageFile()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	taskResp, err := c.installer.StartPackageInstallation(ctx, &rpc.StartPackageInstallationRequest{
		LocationID:  c.Location,
		PackagePath: path,
	})
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " installing package..."
	s.Start()
	defer s.Stop()

	return c.pollUntilDone(taskResp.TaskID)
}

// resolvePackageFile copies stdin into a temp file when the caller
// passed "-", since StartPackageInstallationRequest carries a path
// rather than a stream over the JSON codec.
func (c *InstallPackageCommand) resolvePackageFile() (string, func(), error) {
	if c.Args.File != "-" {
		return c.Args.File, func() {}, nil
	}

	tmp, err := ioutil.TempFile("", "amctl-package-")
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, os.Stdin); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	tmp.Close()
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func (c *InstallPackageCommand) pollUntilDone(taskID string) error {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		task, err := c.installer.GetTask(ctx, &rpc.TaskIDRequest{TaskID: taskID})
		cancel()
		if err != nil {
			return err
		}

		switch task.State {
		case "AwaitingAck":
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, err := c.installer.AcknowledgePackageInstallation(ctx, &rpc.TaskIDRequest{TaskID: taskID})
			cancel()
			if err != nil {
				return err
			}
		case "Finished":
			fmt.Println("Package installation finished successfully.")
			return nil
		case "Failed":
			return fmt.Errorf("installation failed: %s: %s", task.FailCode, task.FailMessage)
		}

		time.Sleep(500 * time.Millisecond)
	}
}
