package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Stream describes the JetStream stream a publisher writes to.
type Stream struct {
	Name     string
	Subjects []string
}

var (
	AuthStream      = Stream{Name: "AUTH", Subjects: []string{"auth.>"}}
	DirectoryStream = Stream{Name: "DIRECTORY", Subjects: []string{"directory.>"}}
)

type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type Publisher struct {
	nc     *nats.Conn
	js     streamPublisher
	source string
	now    func() time.Time
}

func NewPublisher(ctx context.Context, natsURL, source string, stream Stream) (*Publisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name(source))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream.Name,
		Subjects:  stream.Subjects,
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   1000000,
		MaxBytes:  1024 * 1024 * 1024, // 1GB
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		slog.Warn("failed to create stream (may already exist)", "stream", stream.Name, "error", err)
	}

	return &Publisher{nc: nc, js: js, source: source, now: time.Now}, nil
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func (p *Publisher) newMetadata(entityID int64) EventMetadata {
	return EventMetadata{
		EventID:   uuid.NewString(),
		EntityID:  strconv.FormatInt(entityID, 10),
		Timestamp: p.now().Unix(),
		Source:    p.source,
	}
}

// publish outlives the request that triggered it; only the timeout bounds it.
func (p *Publisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	slog.Debug("published event", "subject", subject)
	return nil
}

func (p *Publisher) PublishAccountCreated(ctx context.Context, accountID int64, username, fullName string) error {
	subject := fmt.Sprintf("auth.account.%d.created", accountID)
	event := AccountCreated{
		Metadata:  p.newMetadata(accountID),
		AccountID: accountID,
		Username:  username,
		FullName:  fullName,
	}
	if err := p.publish(ctx, subject, event); err != nil {
		slog.Error("failed to publish account.created", "error", err, "account_id", accountID)
		return err
	}
	slog.Info("published account.created", "account_id", accountID, "username", username)
	return nil
}

func (p *Publisher) PublishSessionCreated(ctx context.Context, accountID int64, expiresAt time.Time) error {
	subject := fmt.Sprintf("auth.session.%d.created", accountID)
	event := SessionCreated{
		Metadata:  p.newMetadata(accountID),
		AccountID: accountID,
		ExpiresAt: expiresAt.Unix(),
	}
	if err := p.publish(ctx, subject, event); err != nil {
		slog.Error("failed to publish session.created", "error", err, "account_id", accountID)
		return err
	}
	slog.Debug("published session.created", "account_id", accountID)
	return nil
}

func (p *Publisher) PublishSessionInvalidated(ctx context.Context, accountID int64) error {
	subject := fmt.Sprintf("auth.session.%d.invalidated", accountID)
	event := SessionInvalidated{
		Metadata:  p.newMetadata(accountID),
		AccountID: accountID,
	}
	if err := p.publish(ctx, subject, event); err != nil {
		slog.Error("failed to publish session.invalidated", "error", err, "account_id", accountID)
		return err
	}
	slog.Debug("published session.invalidated", "account_id", accountID)
	return nil
}

func (p *Publisher) PublishEmployeeChanged(ctx context.Context, action EmployeeAction, employeeID, ownerID int64, fullName string) error {
	subject := fmt.Sprintf("directory.employee.%d.%s", employeeID, action)
	event := EmployeeChanged{
		Metadata:   p.newMetadata(employeeID),
		Action:     action,
		EmployeeID: employeeID,
		OwnerID:    ownerID,
		FullName:   fullName,
	}
	if err := p.publish(ctx, subject, event); err != nil {
		slog.Error("failed to publish employee event", "error", err, "action", action, "employee_id", employeeID)
		return err
	}
	slog.Debug("published employee event", "action", action, "employee_id", employeeID)
	return nil
}
