package context

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	ClientIDKey  = ContextKey("X-Client-Id")
	AuthKindKey  = ContextKey("X-Auth-Kind")
	ApiClientKey = ContextKey("X-Api-Client")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	value, ok := ctx.Value(MethodKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	value, ok := ctx.Value(RouteKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	value, ok := ctx.Value(RemoteIPKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetClientID stores the authenticated api client id for the request.
func SetClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ClientIDKey, clientID)
}

func GetClientID(ctx context.Context) string {
	value, ok := ctx.Value(ClientIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetAuthKind records how the request authenticated (api-key, bearer, oidc).
func SetAuthKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, AuthKindKey, kind)
}

func GetAuthKind(ctx context.Context) string {
	value, ok := ctx.Value(AuthKindKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetApiClient stores the authenticated organization for the request.
func SetApiClient(ctx context.Context, client *models.ApiClient) context.Context {
	return context.WithValue(ctx, ApiClientKey, client)
}

func GetApiClient(ctx context.Context) *models.ApiClient {
	value, ok := ctx.Value(ApiClientKey).(*models.ApiClient)
	if !ok {
		return nil
	}
	return value
}
