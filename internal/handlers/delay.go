package handlers

import (
	"context"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/telemetry"
)

// Delay ждёт duration ("2s" или секунды, default: 1s). Отменяется через ctx.
func Delay(ctx context.Context, params map[string]any) (string, error) {
	d := getDuration(params, "duration", time.Second)

	select {
	case <-time.After(d):
		return "delayed " + d.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Log пишет сообщение и параметры в лог job.
func Log(ctx context.Context, params map[string]any) (string, error) {
	msg := getString(params, "message", "job executed")
	telemetry.FromContext(ctx).Info(msg, "parameters", params)
	return msg, nil
}
