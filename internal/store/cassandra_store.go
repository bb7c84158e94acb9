package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/weiawesome/emergency-chat-relay/internal/config"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
)

const cassandraSchema = `
CREATE TABLE IF NOT EXISTS messages_by_emergency (
	emergency_id text,
	created_at   timestamp,
	seq          bigint,
	message_id   text,
	sender_id    text,
	receiver_id  text,
	sender_type  text,
	content      text,
	PRIMARY KEY ((emergency_id), created_at, seq)
) WITH CLUSTERING ORDER BY (created_at ASC, seq ASC)`

// CassandraStore persists messages in one partition per emergency.
type CassandraStore struct {
	session *gocql.Session
	stamper *Stamper
}

func NewCassandraStore(cfg config.CassandraConfig, stamper *Stamper) (*CassandraStore, error) {
	hosts := cfg.HostList()
	if len(hosts) == 0 {
		return nil, fmt.Errorf("cassandra hosts are required")
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.Timeout
	cluster.Timeout = cfg.Timeout
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	if err := session.Query(cassandraSchema).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &CassandraStore{session: session, stamper: stamper}, nil
}

func (s *CassandraStore) Append(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	stamped, err := s.stamper.Stamp(msg)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO messages_by_emergency (
			emergency_id, created_at, seq, message_id, sender_id, receiver_id, sender_type, content
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	err = s.session.Query(query,
		stamped.EmergencyID,
		stamped.Timestamp,
		stamped.Seq,
		stamped.ID,
		stamped.SenderID,
		stamped.ReceiverID,
		string(stamped.SenderType),
		stamped.Body,
	).WithContext(ctx).Exec()
	if err != nil {
		return nil, unavailable("save message", err)
	}
	return stamped, nil
}

func (s *CassandraStore) ListByEmergency(ctx context.Context, emergencyID string) ([]domain.ChatMessage, error) {
	query := `SELECT message_id, seq, sender_id, receiver_id, sender_type, content, created_at
			  FROM messages_by_emergency
			  WHERE emergency_id = ?
			  ORDER BY created_at ASC, seq ASC`

	iter := s.session.Query(query, emergencyID).WithContext(ctx).Iter()

	messages := make([]domain.ChatMessage, 0)
	var (
		msg        domain.ChatMessage
		senderType string
		createdAt  time.Time
	)
	for iter.Scan(&msg.ID, &msg.Seq, &msg.SenderID, &msg.ReceiverID, &senderType, &msg.Body, &createdAt) {
		msg.EmergencyID = emergencyID
		msg.SenderType = domain.SenderType(senderType)
		msg.Timestamp = createdAt.UTC()
		messages = append(messages, msg)
		msg = domain.ChatMessage{}
	}

	if err := iter.Close(); err != nil {
		return nil, unavailable("iterate messages", err)
	}
	return messages, nil
}

func (s *CassandraStore) Ping(ctx context.Context) error {
	if err := s.session.Query("SELECT release_version FROM system.local").WithContext(ctx).Exec(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *CassandraStore) Close() error {
	s.session.Close()
	return nil
}

func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "EACH_QUORUM":
		return gocql.EachQuorum
	default:
		return gocql.LocalQuorum
	}
}
