package middleware

import "context"

type deviceKey struct{}

// DeviceIDFromContext returns the device DeviceAuth attached, or "".
func DeviceIDFromContext(ctx context.Context) string {
	id, _ := deviceFrom(ctx)
	return id
}

func deviceFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(deviceKey{}).(string)
	return id, ok && id != ""
}

func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, deviceKey{}, deviceID)
}
