package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ApplicationManagerClient is the hand-written equivalent of a
// protoc-gen-go client stub for the "ApplicationManager" interface;
// amctl dials a Surface-published socket and uses this to invoke it.
type ApplicationManagerClient struct {
	cc *grpc.ClientConn
}

func NewApplicationManagerClient(cc *grpc.ClientConn) *ApplicationManagerClient {
	return &ApplicationManagerClient{cc: cc}
}

func (c *ApplicationManagerClient) StartApplication(ctx context.Context, in *StartApplicationRequest) (*BoolResponse, error) {
	out := new(BoolResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationManager/StartApplication", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ApplicationManagerClient) DebugApplication(ctx context.Context, in *DebugApplicationRequest) (*BoolResponse, error) {
	out := new(BoolResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationManager/DebugApplication", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ApplicationManagerClient) StopApplication(ctx context.Context, in *StopApplicationRequest) (*BoolResponse, error) {
	out := new(BoolResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationManager/StopApplication", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ApplicationManagerClient) ApplicationIds(ctx context.Context) (*ApplicationIDsResponse, error) {
	out := new(ApplicationIDsResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationManager/ApplicationIds", &struct{}{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ApplicationManagerClient) Get(ctx context.Context, in *GetRequest) (*AppInfo, error) {
	out := new(AppInfo)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationManager/Get", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// InstallerClient is the hand-written client stub for the
// "ApplicationInstaller" interface.
type InstallerClient struct {
	cc *grpc.ClientConn
}

func NewInstallerClient(cc *grpc.ClientConn) *InstallerClient {
	return &InstallerClient{cc: cc}
}

func (c *InstallerClient) StartPackageInstallation(ctx context.Context, in *StartPackageInstallationRequest) (*TaskIDResponse, error) {
	out := new(TaskIDResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationInstaller/StartPackageInstallation", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InstallerClient) AcknowledgePackageInstallation(ctx context.Context, in *TaskIDRequest) (*BoolResponse, error) {
	out := new(BoolResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationInstaller/AcknowledgePackageInstallation", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InstallerClient) CancelTask(ctx context.Context, in *TaskIDRequest) (*BoolResponse, error) {
	out := new(BoolResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationInstaller/CancelTask", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InstallerClient) RemovePackage(ctx context.Context, in *RemovePackageRequest) (*TaskIDResponse, error) {
	out := new(TaskIDResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationInstaller/RemovePackage", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InstallerClient) InstallationLocationIds(ctx context.Context) (*InstallationLocationIDsResponse, error) {
	out := new(InstallationLocationIDsResponse)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationInstaller/InstallationLocationIds", &struct{}{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InstallerClient) GetInstallationLocation(ctx context.Context, in *GetRequest) (*LocationInfo, error) {
	out := new(LocationInfo)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationInstaller/GetInstallationLocation", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InstallerClient) GetTask(ctx context.Context, in *TaskIDRequest) (*TaskInfo, error) {
	out := new(TaskInfo)
	if err := c.cc.Invoke(ctx, "/appmanager.ApplicationInstaller/GetTask", in, out); err != nil {
		return nil, err
	}
	return out, nil
}
