// amctl is the application-manager CLI controller tool (spec §6): a
// thin gRPC client for the ApplicationManager and ApplicationInstaller
// interfaces. It has no NotificationManager sub-commands.
// Grounded on cli/bblfshctl/main.go's go-flags NewNamedParser/AddCommand
// tree.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/appkit/amd/cmd/amctl/cmd"
)

var version = "undefined"

func main() {
	// spec §6 exit code 3: "exception during event processing". A panic
	// anywhere in a sub-command's Execute (a malformed response decoded
	// by the JSON codec, a nil dereference on an unexpected reply shape)
	// is the CLI's only analogue to that condition, since it has no
	// event loop of its own.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "amctl: %v\n", r)
			os.Exit(3)
		}
	}()

	parser := flags.NewNamedParser("amctl", flags.Default)

	parser.AddCommand("start-application",
		cmd.StartApplicationCommandDescription, cmd.StartApplicationCommandDescription,
		&cmd.StartApplicationCommand{})

	parser.AddCommand("debug-application",
		cmd.DebugApplicationCommandDescription, cmd.DebugApplicationCommandDescription,
		&cmd.DebugApplicationCommand{})

	parser.AddCommand("stop-application",
		cmd.StopApplicationCommandDescription, cmd.StopApplicationCommandDescription,
		&cmd.StopApplicationCommand{})

	parser.AddCommand("list-applications",
		cmd.ListApplicationsCommandDescription, cmd.ListApplicationsCommandDescription,
		&cmd.ListApplicationsCommand{})

	parser.AddCommand("show-application",
		cmd.ShowApplicationCommandDescription, cmd.ShowApplicationCommandDescription,
		&cmd.ShowApplicationCommand{})

	parser.AddCommand("install-package",
		cmd.InstallPackageCommandDescription, cmd.InstallPackageCommandDescription,
		&cmd.InstallPackageCommand{})

	parser.AddCommand("remove-package",
		cmd.RemovePackageCommandDescription, cmd.RemovePackageCommandDescription,
		&cmd.RemovePackageCommand{})

	parser.AddCommand("list-installation-locations",
		cmd.ListInstallationLocationsCommandDescription, cmd.ListInstallationLocationsCommandDescription,
		&cmd.ListInstallationLocationsCommand{})

	parser.AddCommand("show-installation-location",
		cmd.ShowInstallationLocationCommandDescription, cmd.ShowInstallationLocationCommandDescription,
		&cmd.ShowInstallationLocationCommand{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		fmt.Println()
		parser.WriteHelp(os.Stdout)

		os.Exit(cmd.ExitCode(err))
	}
}
