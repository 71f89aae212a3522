package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestSplitFullMethod(t *testing.T) {
	svc, m := splitFullMethod("/chatsync.v1.MessageService/Append")
	assert.Equal(t, "chatsync.v1.MessageService", svc)
	assert.Equal(t, "Append", m)

	svc, m = splitFullMethod("bogus")
	assert.Equal(t, "unknown", svc)
	assert.Equal(t, "unknown", m)
}

func TestUnaryServerInterceptorCountsCodes(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/chatsync.v1.InboxService/MarkRead"}
	before := testutil.ToFloat64(grpcServerHandledTotal.WithLabelValues("chatsync.v1.InboxService", "MarkRead", codes.NotFound.String()))

	_, err := UnaryServerInterceptor()(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Error(t, err)

	after := testutil.ToFloat64(grpcServerHandledTotal.WithLabelValues("chatsync.v1.InboxService", "MarkRead", codes.NotFound.String()))
	assert.Equal(t, before+1, after)
}

func TestRegisterBusDropsTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterBusDrops(func() uint64 { return 1 })
		RegisterBusDrops(func() uint64 { return 2 })
	})
}

func TestIncPush(t *testing.T) {
	before := testutil.ToFloat64(pushDeliveries.WithLabelValues("log", "skipped"))
	IncPush("log", "skipped")
	assert.Equal(t, before+1, testutil.ToFloat64(pushDeliveries.WithLabelValues("log", "skipped")))
}
