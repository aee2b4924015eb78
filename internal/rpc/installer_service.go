package rpc

import (
	"context"
	"os"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/installer"
	"github.com/appkit/amd/internal/location"
	"google.golang.org/grpc"
)

// LocationInfo is the wire shape of an internal/location.Location.
type LocationInfo struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	InstallationPath string `json:"installationPath"`
	DocumentPath     string `json:"documentPath"`
	IsDefault        bool   `json:"isDefault"`
	Mounted          bool   `json:"mounted"`
	TotalBytes       uint64 `json:"totalBytes"`
	FreeBytes        uint64 `json:"freeBytes"`
}

func toLocationInfo(l *location.Location) *LocationInfo {
	total, free, _ := l.InstallationDeviceFreeSpace()
	return &LocationInfo{
		ID:               l.ID(),
		Type:             l.Type().String(),
		InstallationPath: l.InstallationPath(),
		DocumentPath:     l.DocumentPath(),
		IsDefault:        l.IsDefault(),
		Mounted:          l.IsMounted(),
		TotalBytes:       total,
		FreeBytes:        free,
	}
}

// TaskInfo is the wire shape of an installer.Task, also used as the
// poll-based stand-in for the three signals spec §6 documents
// (taskRequestingInstallationAcknowledge, taskFinished, taskFailed): see
// DESIGN.md's "RPC task signals" entry for why this surface polls
// GetTask instead of a server-streamed notification.
type TaskInfo struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Progress    int    `json:"progress"`
	AppID       string `json:"appId"`
	FailCode    string `json:"failCode,omitempty"`
	FailMessage string `json:"failMessage,omitempty"`
}

func toTaskInfo(t *installer.Task) *TaskInfo {
	return &TaskInfo{
		ID:          t.ID,
		State:       t.State.String(),
		Progress:    t.Progress,
		AppID:       t.AppID,
		FailCode:    t.FailCode,
		FailMessage: t.FailMessage,
	}
}

type StartPackageInstallationRequest struct {
	LocationID  string `json:"locationId"`
	PackagePath string `json:"packagePath"`
}

type TaskIDRequest struct {
	TaskID string `json:"taskId"`
}

type TaskIDResponse struct {
	TaskID string `json:"taskId"`
}

type RemovePackageRequest struct {
	AppID         string `json:"appId"`
	KeepDocuments bool   `json:"keepDocuments"`
	Force         bool   `json:"force"`
}

type InstallationLocationIDsResponse struct {
	IDs []string `json:"ids"`
}

// InstallerService implements the "ApplicationInstaller" RPC object
// (spec §6): startPackageInstallation, acknowledgePackageInstallation,
// cancelTask, removePackage, installationLocationIds,
// getInstallationLocation, plus GetTask for polling task state.
type InstallerService struct {
	engine    *installer.Engine
	locations []*location.Location
	isRunning func(string) bool
}

// NewInstallerService wraps engine for RPC exposure. isRunning backs the
// Remove(force=false) guard (spec §4.6 step 5).
func NewInstallerService(engine *installer.Engine, locations []*location.Location, isRunning func(string) bool) *InstallerService {
	return &InstallerService{engine: engine, locations: locations, isRunning: isRunning}
}

func (s *InstallerService) startPackageInstallation(ctx context.Context, in *StartPackageInstallationRequest) (*TaskIDResponse, error) {
	f, err := os.Open(in.PackagePath)
	if err != nil {
		return nil, rpcError(amerr.IO.Wrap(err, "opening package "+in.PackagePath))
	}
	defer f.Close()

	taskID, err := s.engine.StartInstallation(in.LocationID, f)
	if err != nil {
		return &TaskIDResponse{TaskID: taskID}, rpcError(err)
	}
	return &TaskIDResponse{TaskID: taskID}, nil
}

func (s *InstallerService) acknowledgePackageInstallation(ctx context.Context, in *TaskIDRequest) (*BoolResponse, error) {
	if err := s.engine.Acknowledge(in.TaskID); err != nil {
		return nil, rpcError(err)
	}
	return &BoolResponse{OK: true}, nil
}

func (s *InstallerService) cancelTask(ctx context.Context, in *TaskIDRequest) (*BoolResponse, error) {
	if err := s.engine.Cancel(in.TaskID); err != nil {
		return nil, rpcError(err)
	}
	return &BoolResponse{OK: true}, nil
}

func (s *InstallerService) removePackage(ctx context.Context, in *RemovePackageRequest) (*TaskIDResponse, error) {
	locID := s.locationOf(in.AppID)
	taskID, err := s.engine.Remove(in.AppID, locID, in.Force, in.KeepDocuments, s.isRunning)
	if err != nil {
		return &TaskIDResponse{TaskID: taskID}, rpcError(err)
	}
	return &TaskIDResponse{TaskID: taskID}, nil
}

// locationOf finds the default installation location, used as the
// removal target when the caller (the CLI's remove-package) does not
// resolve the app's actual bound location itself.
func (s *InstallerService) locationOf(appID string) string {
	for _, l := range s.locations {
		if l.IsDefault() {
			return l.ID()
		}
	}
	if len(s.locations) > 0 {
		return s.locations[0].ID()
	}
	return ""
}

func (s *InstallerService) installationLocationIDs(ctx context.Context, in *struct{}) (*InstallationLocationIDsResponse, error) {
	ids := make([]string, len(s.locations))
	for i, l := range s.locations {
		ids[i] = l.ID()
	}
	return &InstallationLocationIDsResponse{IDs: ids}, nil
}

func (s *InstallerService) getInstallationLocation(ctx context.Context, in *GetRequest) (*LocationInfo, error) {
	l := location.Find(s.locations, in.ID)
	if l == nil {
		return nil, rpcError(amerr.NotFound.New("installation location " + in.ID))
	}
	return toLocationInfo(l), nil
}

func (s *InstallerService) getTask(ctx context.Context, in *TaskIDRequest) (*TaskInfo, error) {
	t, ok := s.engine.Task(in.TaskID)
	if !ok {
		return nil, rpcError(amerr.NotFound.New("task " + in.TaskID))
	}
	return toTaskInfo(t), nil
}

var InstallerServiceDesc = grpc.ServiceDesc{
	ServiceName: "appmanager.ApplicationInstaller",
	HandlerType: (*InstallerService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartPackageInstallation",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(StartPackageInstallationRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*InstallerService).startPackageInstallation(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationInstaller/StartPackageInstallation"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*InstallerService).startPackageInstallation(ctx, req.(*StartPackageInstallationRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "AcknowledgePackageInstallation",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(TaskIDRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*InstallerService).acknowledgePackageInstallation(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationInstaller/AcknowledgePackageInstallation"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*InstallerService).acknowledgePackageInstallation(ctx, req.(*TaskIDRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "CancelTask",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(TaskIDRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*InstallerService).cancelTask(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationInstaller/CancelTask"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*InstallerService).cancelTask(ctx, req.(*TaskIDRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "RemovePackage",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(RemovePackageRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*InstallerService).removePackage(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationInstaller/RemovePackage"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*InstallerService).removePackage(ctx, req.(*RemovePackageRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "InstallationLocationIds",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(struct{})
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*InstallerService).installationLocationIDs(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationInstaller/InstallationLocationIds"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*InstallerService).installationLocationIDs(ctx, req.(*struct{}))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "GetInstallationLocation",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GetRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*InstallerService).getInstallationLocation(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationInstaller/GetInstallationLocation"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*InstallerService).getInstallationLocation(ctx, req.(*GetRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "GetTask",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(TaskIDRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*InstallerService).getTask(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.ApplicationInstaller/GetTask"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*InstallerService).getTask(ctx, req.(*TaskIDRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Metadata: "installer.proto",
}

func RegisterInstallerServer(srv *grpc.Server, svc *InstallerService) {
	srv.RegisterService(&InstallerServiceDesc, svc)
}
