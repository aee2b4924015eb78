package rpc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/appkit/amd/internal/amerr"
	"google.golang.org/grpc"
)

// NotifyRequest mirrors the freedesktop Notifications.Notify call
// (spec §6: "NotificationManager (freedesktop Notifications shape)"),
// trimmed to the fields applications actually populate.
type NotifyRequest struct {
	AppName       string            `json:"appName"`
	ReplacesID    uint32            `json:"replacesId"`
	Icon          string            `json:"icon"`
	Summary       string            `json:"summary"`
	Body          string            `json:"body"`
	Actions       []string          `json:"actions"`
	Hints         map[string]string `json:"hints"`
	ExpireTimeout int32             `json:"expireTimeout"`
}

type NotifyResponse struct {
	ID uint32 `json:"id"`
}

type CloseNotificationRequest struct {
	ID uint32 `json:"id"`
}

type CapabilitiesResponse struct {
	Capabilities []string `json:"capabilities"`
}

type ServerInformationResponse struct {
	Name        string `json:"name"`
	Vendor      string `json:"vendor"`
	Version     string `json:"version"`
	SpecVersion string `json:"specVersion"`
}

// NotificationManagerService implements the "NotificationManager" RPC
// object, the freedesktop Notifications surface applications use to
// post and withdraw system notifications.
type NotificationManagerService struct {
	nextID uint32

	mu      sync.Mutex
	pending map[uint32]*NotifyRequest
}

// NewNotificationManagerService returns an empty notification store.
func NewNotificationManagerService() *NotificationManagerService {
	return &NotificationManagerService{pending: map[uint32]*NotifyRequest{}}
}

func (s *NotificationManagerService) notify(ctx context.Context, in *NotifyRequest) (*NotifyResponse, error) {
	id := in.ReplacesID
	if id == 0 {
		id = atomic.AddUint32(&s.nextID, 1)
	}
	s.mu.Lock()
	s.pending[id] = in
	s.mu.Unlock()
	return &NotifyResponse{ID: id}, nil
}

func (s *NotificationManagerService) closeNotification(ctx context.Context, in *CloseNotificationRequest) (*BoolResponse, error) {
	s.mu.Lock()
	_, existed := s.pending[in.ID]
	delete(s.pending, in.ID)
	s.mu.Unlock()
	if !existed {
		return nil, rpcError(amerr.NotFound.New("notification id"))
	}
	return &BoolResponse{OK: true}, nil
}

func (s *NotificationManagerService) getCapabilities(ctx context.Context, in *struct{}) (*CapabilitiesResponse, error) {
	return &CapabilitiesResponse{Capabilities: []string{"body", "icon-static", "actions"}}, nil
}

func (s *NotificationManagerService) getServerInformation(ctx context.Context, in *struct{}) (*ServerInformationResponse, error) {
	return &ServerInformationResponse{
		Name:        "amd",
		Vendor:      "appkit",
		Version:     "1.0",
		SpecVersion: "1.2",
	}, nil
}

var NotificationManagerServiceDesc = grpc.ServiceDesc{
	ServiceName: "appmanager.NotificationManager",
	HandlerType: (*NotificationManagerService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Notify",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(NotifyRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*NotificationManagerService).notify(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.NotificationManager/Notify"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*NotificationManagerService).notify(ctx, req.(*NotifyRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "CloseNotification",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(CloseNotificationRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*NotificationManagerService).closeNotification(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.NotificationManager/CloseNotification"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*NotificationManagerService).closeNotification(ctx, req.(*CloseNotificationRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "GetCapabilities",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(struct{})
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*NotificationManagerService).getCapabilities(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.NotificationManager/GetCapabilities"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*NotificationManagerService).getCapabilities(ctx, req.(*struct{}))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "GetServerInformation",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(struct{})
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*NotificationManagerService).getServerInformation(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/appmanager.NotificationManager/GetServerInformation"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*NotificationManagerService).getServerInformation(ctx, req.(*struct{}))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Metadata: "notification.proto",
}

func RegisterNotificationManagerServer(srv *grpc.Server, svc *NotificationManagerService) {
	srv.RegisterService(&NotificationManagerServiceDesc, svc)
}
