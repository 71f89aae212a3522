// Package metrics holds the Prometheus collectors shared by the daemon's
// components. Collectors live in the default registry.
package metrics

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	messagesAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_messages_appended_total",
			Help: "Total number of messages appended to conversation logs.",
		},
	)
	writeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_write_errors_total",
			Help: "Total number of store writes that failed.",
		},
		[]string{"op"},
	)
	likeToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_like_toggles_total",
			Help: "Total number of setLiked calls by outcome.",
		},
		[]string{"outcome"},
	)
	inboxUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_inbox_updates_total",
			Help: "Total number of inbox row updates.",
		},
		[]string{"kind"},
	)
	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_active_subscriptions",
			Help: "Number of live conversation subscriptions.",
		},
	)
	pushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_push_deliveries_total",
			Help: "Total number of push deliveries by driver and outcome.",
		},
		[]string{"driver", "outcome"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
)

func init() {
	prometheus.MustRegister(
		messagesAppended,
		writeErrors,
		likeToggles,
		inboxUpdates,
		activeSubscriptions,
		pushDeliveries,
		grpcServerHandledTotal,
	)
}

func IncAppended() {
	messagesAppended.Inc()
}

func IncWriteError(op string) {
	writeErrors.WithLabelValues(op).Inc()
}

// IncLike records a setLiked outcome: "changed", "noop" or "not_found".
func IncLike(outcome string) {
	likeToggles.WithLabelValues(outcome).Inc()
}

// IncInbox records an inbox update: "sent" or "read".
func IncInbox(kind string) {
	inboxUpdates.WithLabelValues(kind).Inc()
}

func IncSubscriptions() {
	activeSubscriptions.Inc()
}

func DecSubscriptions() {
	activeSubscriptions.Dec()
}

// IncPush records a push outcome: "sent", "failed" or "skipped".
func IncPush(driver, outcome string) {
	pushDeliveries.WithLabelValues(driver, outcome).Inc()
}

// RegisterBusDrops exposes a drop counter owned elsewhere. Registering twice
// is a no-op.
func RegisterBusDrops(dropped func() uint64) {
	c := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "chatsync_bus_dropped_total",
			Help: "Total number of bus events dropped because a subscriber was full.",
		},
		func() float64 { return float64(dropped()) },
	)
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
	}
}

// UnaryServerInterceptor counts handled unary calls by status code.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		observe(info.FullMethod, err)
		return resp, err
	}
}

// StreamServerInterceptor counts handled streaming calls by status code.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		observe(info.FullMethod, err)
		return err
	}
}

func observe(fullMethod string, err error) {
	service, method := splitFullMethod(fullMethod)
	grpcServerHandledTotal.WithLabelValues(service, method, status.Code(err).String()).Inc()
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}
