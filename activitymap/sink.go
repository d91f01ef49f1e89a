package activitymap

import (
	"context"

	auth "github.com/goliatone/go-auth-lifecycle"
	"go.uber.org/zap"
)

// ZapSink writes each normalized record as one structured log line
func ZapSink(logger *zap.Logger, opts ...Option) auth.ActivitySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		rec := Normalize(event, opts...)
		logger.Info("activity",
			zap.String("verb", rec.Verb),
			zap.String("actor_id", rec.ActorID),
			zap.String("object_type", rec.ObjectType),
			zap.String("object_id", rec.ObjectID),
			zap.String("channel", rec.Channel),
			zap.Any("metadata", rec.Metadata),
			zap.Time("occurred_at", rec.OccurredAt),
		)
		return nil
	})
}
