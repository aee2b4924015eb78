// Package rpcsurface implements the RPC Registration Surface (C11):
// per-interface bus selection, an access-policy filter installed on
// every incoming call, and bus-address sidecar-file publication.
// Grounded on daemon/daemon.go's UserServer/ControlServer split (two
// independently-configured grpc.Server instances sharing one process)
// and on server.go's grpc.NewServer/RegisterXServer idiom, generalized
// from a fixed two-server layout to an arbitrary named-interface map.
// The sidecar-file + bus-address-discovery half is new: the teacher
// never published a D-Bus sidecar, so that part is grounded on
// github.com/godbus/dbus/v5's documented SessionBus/SystemBus dial
// idiom instead.
package rpcsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/godbus/dbus/v5"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/appkit/amd/internal/amerr"
)

// jsonCodec implements grpc.Codec over encoding/json. The interfaces
// this surface publishes (ApplicationManager, ApplicationInstaller,
// NotificationManager — see internal/rpc) are plain JSON-tagged Go
// structs rather than generated proto.Message types, since no protoc/
// proteus code generator runs in this build; every server this package
// creates, and every client that dials it, uses this codec instead of
// grpc's default protobuf one.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)        { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error   { return json.Unmarshal(data, v) }
func (jsonCodec) String() string                               { return "json" }

// Codec is the shared wire codec every Surface-published interface
// uses; clients (the amctl CLI) must dial with grpc.WithCodec(Codec)
// to interoperate.
var Codec grpc.Codec = jsonCodec{}

// BusKind enumerates the four bus choices from spec §4.8.
type BusKind int

const (
	BusNone BusKind = iota
	BusSystem
	BusSession
	BusExplicit
)

// BusSpec is one interface's {bus, address} configuration pair.
type BusSpec struct {
	Kind BusKind
	// Address is only consulted when Kind == BusExplicit; it is the
	// literal bus address string written verbatim to the sidecar file.
	Address string
}

// MethodPolicy decides whether peerID may invoke a method. peerID is
// whatever the transport's peer credential resolves to (grpc's AuthInfo
// string form in this implementation).
type MethodPolicy func(peerID string) bool

// Policy maps a full gRPC method name ("/pkg.Service/Method") to a
// MethodPolicy. The "*" entry, if present, is consulted when no
// specific method entry exists.
type Policy map[string]MethodPolicy

func (p Policy) allows(method, peerID string) bool {
	if fn, ok := p[method]; ok {
		return fn(peerID)
	}
	if fn, ok := p["*"]; ok {
		return fn(peerID)
	}
	return true // no policy configured: default-allow, matching an unfiltered interface
}

// AllowAll is a MethodPolicy that admits every peer; useful as a "*"
// entry for interfaces spec §6 documents as unauthenticated-local-only.
func AllowAll(string) bool { return true }

// InterfaceConfig is the publication setup of one named RPC interface
// (spec §4.8): its bus, which the orchestrator resolves from
// configuration, and its access policy, which the orchestrator sets to
// allow-all rather than reading it from configuration.
type InterfaceConfig struct {
	Name       string
	Bus        BusSpec
	Policy     Policy
	SocketDir  string // directory the local unix-domain object socket is created in; defaults to os.TempDir()
	SidecarDir string // directory sidecar files are written to; defaults to os.TempDir(), matching spec's "/tmp/<interface>.dbus"
}

// Registration is a live published interface.
type Registration struct {
	Name        string
	Server      *grpc.Server
	Listener    net.Listener
	sidecarPath string
	busConn     *dbus.Conn
}

// Address returns the local unix-domain socket address object clients
// dial to reach this interface.
func (r *Registration) Address() string { return r.Listener.Addr().String() }

// Surface owns every currently-published interface.
type Surface struct {
	mu   sync.Mutex
	regs map[string]*Registration
}

// New returns an empty registration surface.
func New() *Surface {
	return &Surface{regs: make(map[string]*Registration)}
}

// Register publishes a new interface: it opens a local unix-domain
// socket, builds a grpc.Server with cfg.Policy installed as a unary
// interceptor, invokes register to attach the service implementation,
// starts serving in the background, and — unless Bus is BusNone —
// resolves the configured bus's address and writes it to the sidecar
// file /tmp/<name>.dbus (spec §4.8).
func (s *Surface) Register(cfg InterfaceConfig, register func(*grpc.Server)) (*Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.regs[cfg.Name]; exists {
		return nil, amerr.AlreadyExists.New(cfg.Name)
	}

	socketDir := cfg.SocketDir
	if socketDir == "" {
		socketDir = os.TempDir()
	}
	socketPath := filepath.Join(socketDir, cfg.Name+".sock")
	os.Remove(socketPath) // stale socket from an unclean prior shutdown

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, amerr.System.Wrap(err, fmt.Sprintf("listen on %s", socketPath))
	}

	interceptor := chainUnary(tracingInterceptor(cfg.Name), policyInterceptor(cfg.Policy))
	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor), grpc.CustomCodec(Codec))
	register(srv)

	reg := &Registration{Name: cfg.Name, Server: srv, Listener: ln}

	var busAddress string
	switch cfg.Bus.Kind {
	case BusNone:
		// no sidecar published
	case BusExplicit:
		busAddress = cfg.Bus.Address
	case BusSystem:
		conn, err := dbus.SystemBus()
		if err != nil {
			ln.Close()
			return nil, amerr.DBus.Wrap(err, "connecting to system bus")
		}
		reg.busConn = conn
		busAddress = systemBusAddress()
	case BusSession:
		conn, err := dbus.SessionBus()
		if err != nil {
			ln.Close()
			return nil, amerr.DBus.Wrap(err, "connecting to session bus")
		}
		reg.busConn = conn
		busAddress = sessionBusAddress()
	}

	if busAddress != "" {
		sidecarDir := cfg.SidecarDir
		if sidecarDir == "" {
			sidecarDir = os.TempDir()
		}
		reg.sidecarPath = filepath.Join(sidecarDir, cfg.Name+".dbus")
		if err := os.WriteFile(reg.sidecarPath, []byte(busAddress), 0o644); err != nil {
			ln.Close()
			return nil, amerr.IO.Wrap(err, fmt.Sprintf("writing sidecar %s", reg.sidecarPath))
		}
	}

	s.regs[cfg.Name] = reg

	go func() {
		if err := srv.Serve(ln); err != nil {
			logrus.WithField("interface", cfg.Name).WithError(err).Debug("rpc surface: serve loop ended")
		}
	}()

	return reg, nil
}

// Unregister stops serving, removes the sidecar file, and closes the
// bus connection for a single interface, matching spec §4.8's "On
// shutdown, sidecar files are removed."
func (s *Surface) Unregister(name string) error {
	s.mu.Lock()
	reg, ok := s.regs[name]
	if ok {
		delete(s.regs, name)
	}
	s.mu.Unlock()

	if !ok {
		return amerr.NotFound.New(name)
	}
	return unregisterOne(reg)
}

func unregisterOne(reg *Registration) error {
	reg.Server.GracefulStop()
	if reg.busConn != nil {
		reg.busConn.Close()
	}
	if reg.sidecarPath != "" {
		os.Remove(reg.sidecarPath)
	}
	return nil
}

// Shutdown unregisters every published interface.
func (s *Surface) Shutdown() {
	s.mu.Lock()
	regs := make([]*Registration, 0, len(s.regs))
	for _, reg := range s.regs {
		regs = append(regs, reg)
	}
	s.regs = make(map[string]*Registration)
	s.mu.Unlock()

	for _, reg := range regs {
		unregisterOne(reg)
	}
}

// policyInterceptor enforces cfg.Policy on every unary call, rejecting
// with codes.PermissionDenied when the peer's predicate returns false.
func policyInterceptor(p Policy) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		peerID := peerIdentity(ctx)
		if !p.allows(info.FullMethod, peerID) {
			return nil, status.Errorf(codes.PermissionDenied, "rpc surface: %s denied for peer %s", info.FullMethod, peerID)
		}
		return handler(ctx, req)
	}
}

// chainUnary composes interceptors outer-to-inner: outer runs first and
// wraps inner's invocation of handler. grpc v1.13 predates
// grpc.ChainUnaryInterceptor, so the two interceptors this surface
// always installs (tracing, policy) are composed by hand.
func chainUnary(outer, inner grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return outer(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return inner(ctx, req, info, handler)
		})
	}
}

// tracingInterceptor starts a span named interfaceName followed by the
// call's full method path (e.g. "ApplicationManager/appmanager.ApplicationManager/Get")
// for every unary call, using whatever opentracing.Tracer the process
// registered globally (normally a no-op tracer unless the orchestrator
// wired a real one) — grounded on the teacher's use of
// grpc-opentracing's UnaryServerInterceptor, reimplemented here directly
// since this build has no proteus/protoc-generated service to attach
// grpc-opentracing's reflection-based method naming to.
func tracingInterceptor(interfaceName string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		span := opentracing.GlobalTracer().StartSpan(interfaceName + info.FullMethod)
		defer span.Finish()
		ctx = opentracing.ContextWithSpan(ctx, span)
		resp, err := handler(ctx, req)
		if err != nil {
			span.SetTag("error", true)
		}
		return resp, err
	}
}

func peerIdentity(ctx context.Context) string {
	pr, ok := peer.FromContext(ctx)
	if !ok || pr.Addr == nil {
		return ""
	}
	return pr.Addr.String()
}

func sessionBusAddress() string {
	if addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS"); addr != "" {
		return addr
	}
	return fmt.Sprintf("unix:path=/run/user/%d/bus", os.Getuid())
}

func systemBusAddress() string {
	if addr := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS"); addr != "" {
		return addr
	}
	return "unix:path=/var/run/dbus/system_bus_socket"
}
