package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/isaacparker671/rentago-demo/internal/config"
)

// RedisSender implements the Sender interface by storing emails in Redis.
// It backs the service API's getTestEmail endpoint in integration tests.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// Send stores a representation of the email in Redis instead of sending it
// via SMTP. The mock key is differentiated by the transaction event named in
// the subject.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	eventType := "unknown"
	switch {
	case strings.Contains(subject, "New request"):
		eventType = "requested"
	case strings.Contains(subject, "accepted"):
		eventType = "accepted"
	case strings.Contains(subject, "denied"):
		eventType = "denied"
	case strings.Contains(subject, "cancelled"):
		eventType = "cancelled"
	case strings.Contains(subject, "complete"):
		eventType = "completed"
	}

	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":        strings.Join(to, ", "),
		"from":      s.cfg.SmtpFromAddress,
		"subject":   subject,
		"body":      string(rawMessage),
		"sent_at":   time.Now().UTC().Format(time.RFC3339Nano),
		"eventType": eventType,
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := fmt.Sprintf("mockemail:%s:%s", primaryTo, eventType)
	ttl := 5 * time.Minute

	if err := s.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (TTL: %v, To: %s, Subject: %s)", key, ttl, strings.Join(to, ", "), subject)
	return nil
}
