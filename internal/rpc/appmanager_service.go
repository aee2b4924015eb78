package rpc

import (
	"context"
	"fmt"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/app"
	"github.com/appkit/amd/internal/appmanager"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppInfo is the wire shape of an app.Application returned by Get.
type AppInfo struct {
	ID           string `json:"id"`
	CodeDir      string `json:"codeDir"`
	RuntimeName  string `json:"runtimeName"`
	IsBuiltIn    bool   `json:"isBuiltIn"`
	IsAlias      bool   `json:"isAlias"`
	NonAliasedID string `json:"nonAliasedId,omitempty"`
	Installed    bool   `json:"installed"`
	State        string `json:"state"`
}

func toAppInfo(a *app.Application, state string) *AppInfo {
	info := &AppInfo{
		ID:          a.ID,
		CodeDir:     a.CodeDir,
		RuntimeName: a.RuntimeName,
		IsBuiltIn:   a.IsBuiltIn,
		IsAlias:     a.IsAlias(),
		Installed:   a.IsInstalled(),
		State:       state,
	}
	if a.IsAlias() {
		info.NonAliasedID = a.NonAliased.ID
	}
	return info
}

type StartApplicationRequest struct {
	ID          string `json:"id"`
	DocumentURL string `json:"documentUrl"`
}

type DebugApplicationRequest struct {
	Wrapper     string `json:"wrapper"`
	ID          string `json:"id"`
	DocumentURL string `json:"documentUrl"`
}

type StopApplicationRequest struct {
	ID        string `json:"id"`
	ForceKill bool   `json:"forceKill"`
}

type ApplicationIDsResponse struct {
	IDs []string `json:"ids"`
}

type GetRequest struct {
	ID string `json:"id"`
}

type BoolResponse struct {
	OK bool `json:"ok"`
}

// ApplicationManagerService implements the "ApplicationManager" RPC
// object (spec §6): startApplication, debugApplication, stopApplication,
// applicationIds, get.
type ApplicationManagerService struct {
	mgr *appmanager.Manager
}

// NewApplicationManagerService wraps mgr for RPC exposure.
func NewApplicationManagerService(mgr *appmanager.Manager) *ApplicationManagerService {
	return &ApplicationManagerService{mgr: mgr}
}

func rpcError(err error) error {
	if err == nil {
		return nil
	}
	switch amerr.Classify(err) {
	case amerr.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case amerr.KindAppRunning:
		return status.Error(codes.FailedPrecondition, err.Error())
	case amerr.KindAlreadyExists:
		return status.Error(codes.AlreadyExists, err.Error())
	case amerr.KindCanceled:
		return status.Error(codes.Canceled, err.Error())
	case amerr.KindSecurity:
		return status.Error(codes.PermissionDenied, err.Error())
	case amerr.KindParse:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *ApplicationManagerService) startApplication(ctx context.Context, in *StartApplicationRequest) (*BoolResponse, error) {
	if err := s.mgr.StartApplication(in.ID, in.DocumentURL, nil); err != nil {
		return nil, rpcError(err)
	}
	return &BoolResponse{OK: true}, nil
}

func (s *ApplicationManagerService) debugApplication(ctx context.Context, in *DebugApplicationRequest) (*BoolResponse, error) {
	if err := s.mgr.DebugApplication(in.Wrapper, in.ID, in.DocumentURL); err != nil {
		return nil, rpcError(err)
	}
	return &BoolResponse{OK: true}, nil
}

func (s *ApplicationManagerService) stopApplication(ctx context.Context, in *StopApplicationRequest) (*BoolResponse, error) {
	var err error
	if in.ForceKill {
		err = s.mgr.ForceKill(in.ID)
	} else {
		err = s.mgr.StopApplication(in.ID)
	}
	if err != nil {
		return nil, rpcError(err)
	}
	return &BoolResponse{OK: true}, nil
}

func (s *ApplicationManagerService) applicationIDs(ctx context.Context, in *struct{}) (*ApplicationIDsResponse, error) {
	return &ApplicationIDsResponse{IDs: s.mgr.ApplicationIDs()}, nil
}

func (s *ApplicationManagerService) get(ctx context.Context, in *GetRequest) (*AppInfo, error) {
	a, ok := s.mgr.Get(in.ID)
	if !ok {
		return nil, rpcError(amerr.NotFound.New(fmt.Sprintf("application %q", in.ID)))
	}
	state, _ := s.mgr.State(a.ID)
	return toAppInfo(a, state.String()), nil
}

// ApplicationManagerServiceDesc is the hand-written equivalent of a
// protoc-gen-go ServiceDesc for the "ApplicationManager" interface.
var ApplicationManagerServiceDesc = grpc.ServiceDesc{
	ServiceName: "appmanager.ApplicationManager",
	HandlerType: (*ApplicationManagerService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartApplication",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(StartApplicationRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*ApplicationManagerService).startApplication(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationManager/StartApplication"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*ApplicationManagerService).startApplication(ctx, req.(*StartApplicationRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "DebugApplication",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(DebugApplicationRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*ApplicationManagerService).debugApplication(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationManager/DebugApplication"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*ApplicationManagerService).debugApplication(ctx, req.(*DebugApplicationRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "StopApplication",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(StopApplicationRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*ApplicationManagerService).stopApplication(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationManager/StopApplication"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*ApplicationManagerService).stopApplication(ctx, req.(*StopApplicationRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "ApplicationIds",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(struct{})
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*ApplicationManagerService).applicationIDs(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationManager/ApplicationIds"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*ApplicationManagerService).applicationIDs(ctx, req.(*struct{}))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "Get",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GetRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*ApplicationManagerService).get(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationManager/Get"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*ApplicationManagerService).get(ctx, req.(*GetRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Metadata: "appmanager.proto",
}

// RegisterApplicationManagerServer registers svc on srv, mirroring
// protoc-gen-go's generated RegisterXServer function.
func RegisterApplicationManagerServer(srv *grpc.Server, svc *ApplicationManagerService) {
	srv.RegisterService(&ApplicationManagerServiceDesc, svc)
}
