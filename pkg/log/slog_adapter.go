package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Envelope != nil:
		attrs = append(attrs,
			slog.String("env_type", event.Envelope.Type.String()),
			slog.Uint64("seq", uint64(event.Envelope.Seq)),
			slog.Bool("final", event.Envelope.Final),
			slog.Int("payload_size", event.Envelope.PayloadSize),
		)
	case event.Callback != nil:
		attrs = append(attrs,
			slog.String("request", event.Callback.Request),
			slog.String("result", event.Callback.Result),
			slog.Int("group", event.Callback.GroupID),
		)
		if event.Callback.Key != "" {
			attrs = append(attrs, slog.String("key", event.Callback.Key))
		} else if event.Callback.Instance != 0 {
			attrs = append(attrs, slog.Int("instance", event.Callback.Instance))
		}
		if event.Callback.Depth > 0 {
			attrs = append(attrs, slog.Int("depth", event.Callback.Depth))
		}
		if event.Callback.ErrorID != 0 {
			attrs = append(attrs, slog.Uint64("error_id", uint64(event.Callback.ErrorID)))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
