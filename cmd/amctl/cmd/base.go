// Package cmd implements amctl's sub-commands (spec §6). Grounded on
// cli/bblfshctl/cmd/base.go's GRPCCommand: a shared embed that dials
// the daemon's socket and exposes typed clients to every sub-command.
package cmd

import (
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/appkit/amd/internal/rpc"
	"github.com/appkit/amd/internal/rpcsurface"
)

// ExitCode maps err to the exit code vocabulary spec §6 defines: 0
// success, 1 generic error, 2 remote RPC negative reply. It never
// returns 3 (exception during event processing); main's panic recovery
// exits with that code itself.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := status.FromError(err); ok {
		return 2
	}
	return 1
}

// GRPCCommand is embedded by every sub-command that talks to the
// ApplicationManager interface.
type GRPCCommand struct {
	Network string `long:"network" default:"unix" description:"daemon socket network type"`
	Address string `long:"address" default:"/tmp/ApplicationManager.sock" description:"daemon socket address to connect"`

	conn *grpc.ClientConn
	app  *rpc.ApplicationManagerClient
}

func (c *GRPCCommand) Execute(args []string) error {
	conn, err := dial(c.Network, c.Address)
	if err != nil {
		return err
	}
	c.conn = conn
	c.app = rpc.NewApplicationManagerClient(conn)
	return nil
}

// InstallerCommand is embedded by every sub-command that talks to the
// ApplicationInstaller interface.
type InstallerCommand struct {
	Network string `long:"network" default:"unix" description:"daemon socket network type"`
	Address string `long:"address" default:"/tmp/ApplicationInstaller.sock" description:"daemon socket address to connect"`

	conn      *grpc.ClientConn
	installer *rpc.InstallerClient
}

func (c *InstallerCommand) Execute(args []string) error {
	conn, err := dial(c.Network, c.Address)
	if err != nil {
		return err
	}
	c.conn = conn
	c.installer = rpc.NewInstallerClient(conn)
	return nil
}

func dial(network, address string) (*grpc.ClientConn, error) {
	return grpc.Dial(address,
		grpc.WithDialer(func(addr string, t time.Duration) (net.Conn, error) {
			return net.DialTimeout(network, addr, t)
		}),
		grpc.WithBlock(),
		grpc.WithTimeout(5*time.Second),
		grpc.WithInsecure(),
		grpc.WithCodec(rpcsurface.Codec),
	)
}
