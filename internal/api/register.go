package api

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Services groups the implementations registered on one server.
type Services struct {
	Messages  *MessageService
	Inbox     *InboxService
	Directory *DirectoryService
	Daemon    *DaemonService
	Health    *health.Server
}

// Register installs every non-nil service on srv.
func Register(srv *grpc.Server, s Services) {
	if s.Messages != nil {
		srv.RegisterService(&MessageServiceDesc, s.Messages)
	}
	if s.Inbox != nil {
		srv.RegisterService(&InboxServiceDesc, s.Inbox)
	}
	if s.Directory != nil {
		srv.RegisterService(&DirectoryServiceDesc, s.Directory)
	}
	if s.Daemon != nil {
		srv.RegisterService(&DaemonServiceDesc, s.Daemon)
	}
	if s.Health != nil {
		healthpb.RegisterHealthServer(srv, s.Health)
	}
}
