package shared

import "context"

type requestMetaKey struct{}

// RequestMeta carries client details copied into activity logs.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// ContextWithRequestMeta stores request metadata in context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata, zero value when absent.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// ActivityFor fills IP and user agent of log from ctx.
func ActivityFor(ctx context.Context, log ActivityLog) ActivityLog {
	meta := RequestMetaFromContext(ctx)
	if log.IP == "" {
		log.IP = meta.IP
	}
	if log.UserAgent == "" {
		log.UserAgent = meta.UserAgent
	}
	return log
}
