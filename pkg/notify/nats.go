package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/nats-io/nats.go"
)

// DefaultNATSSubjectPrefix is followed by the recipient's user ID.
const DefaultNATSSubjectPrefix = "notifications."

// NATSPublisher is the subset of *nats.Conn used by NATSSink.
type NATSPublisher interface {
	Publish(subj string, data []byte) error
}

var _ NATSPublisher = (*nats.Conn)(nil)

// NATSSink publishes notifications on a per-user subject for push gateways.
type NATSSink struct {
	Conn          NATSPublisher
	SubjectPrefix string
}

var _ Sink = (*NATSSink)(nil)

func (s *NATSSink) Send(_ context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification for NATS: %w", err)
	}

	prefix := s.SubjectPrefix
	if prefix == "" {
		prefix = DefaultNATSSubjectPrefix
	}
	if err := s.Conn.Publish(prefix+n.UserID, data); err != nil {
		return fmt.Errorf("failed to publish notification to NATS: %w", err)
	}
	return nil
}
