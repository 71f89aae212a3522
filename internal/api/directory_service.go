package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/directory"
)

// DirectoryService implements chatsync.v1.DirectoryService.
type DirectoryService struct {
	registry directory.Registry
}

var _ DirectoryServer = (*DirectoryService)(nil)

func NewDirectoryService(registry directory.Registry) *DirectoryService {
	return &DirectoryService{registry: registry}
}

func (s *DirectoryService) Lookup(ctx context.Context, req *LookupRequest) (*LookupResponse, error) {
	u, err := s.registry.Lookup(ctx, req.UID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return &LookupResponse{User: u}, nil
}

func (s *DirectoryService) Put(ctx context.Context, req *PutUserRequest) (*Empty, error) {
	if err := s.registry.Put(ctx, req.User); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}
