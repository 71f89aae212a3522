package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/status"
)

// DaemonInfo describes the running daemon.
type DaemonInfo struct {
	Profile    string
	Backend    string
	PushDriver string
}

// DaemonService implements chatsync.v1.DaemonService.
type DaemonService struct {
	info      DaemonInfo
	machine   *status.Machine
	startTime time.Time
}

var _ DaemonServer = (*DaemonService)(nil)

func NewDaemonService(info DaemonInfo, m *status.Machine) *DaemonService {
	return &DaemonService{info: info, machine: m, startTime: time.Now()}
}

func (s *DaemonService) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	return &StatusResponse{
		Profile:    s.info.Profile,
		State:      string(s.machine.Current()),
		Backend:    s.info.Backend,
		PushDriver: s.info.PushDriver,
		StartedAt:  s.startTime,
		UptimeMs:   time.Since(s.startTime).Milliseconds(),
	}, nil
}
