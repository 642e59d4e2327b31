package firebase

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"txengine/internal/domain/transaction"
)

const fcmBatchLimit = 500

// Messenger is the subset of the FCM client used by Alerter
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Alerter implements transaction.Alerter by pushing to an FCM topic and,
// optionally, to a fixed list of operator device tokens.
type Alerter struct {
	msgClient Messenger
	topic     string
	tokens    []string
}

var _ transaction.Alerter = (*Alerter)(nil)

// NewMessenger initializes a Firebase app and returns its FCM client.
func NewMessenger(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return msgClient, nil
}

func NewAlerter(msgClient Messenger, topic string, tokens []string) *Alerter {
	return &Alerter{msgClient: msgClient, topic: topic, tokens: tokens}
}

// Alert sends the notification to the topic, then to every token.
func (a *Alerter) Alert(ctx context.Context, title, body string, data map[string]string) error {
	notification := &messaging.Notification{
		Title: title,
		Body:  body,
	}

	if a.topic != "" {
		msg := &messaging.Message{
			Topic:        a.topic,
			Notification: notification,
			Data:         data,
		}
		if _, err := a.msgClient.Send(ctx, msg); err != nil {
			return fmt.Errorf("failed to send FCM topic message: %w", err)
		}
	}

	return a.sendMulticast(ctx, notification, data)
}

// sendMulticast batches into chunks of 500 (Firebase API limit).
func (a *Alerter) sendMulticast(ctx context.Context, notification *messaging.Notification, data map[string]string) error {
	if len(a.tokens) == 0 {
		return nil
	}

	var totalSuccess, totalFailure int
	for _, batch := range chunkTokens(a.tokens, fcmBatchLimit) {
		msg := &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: notification,
			Data:         data,
		}

		resp, err := a.msgClient.SendEachForMulticast(ctx, msg)
		if err != nil {
			return fmt.Errorf("failed to send FCM multicast: %w", err)
		}

		totalSuccess += resp.SuccessCount
		totalFailure += resp.FailureCount
		if resp.FailureCount > 0 {
			logMulticastFailures(batch, resp)
		}
	}

	log.Printf("FCM alert multicast: %d success, %d failure", totalSuccess, totalFailure)
	return nil
}

func logMulticastFailures(tokens []string, resp *messaging.BatchResponse) {
	for i, sendResp := range resp.Responses {
		if sendResp.Error == nil {
			continue
		}
		if messaging.IsUnregistered(sendResp.Error) || messaging.IsInvalidArgument(sendResp.Error) {
			log.Printf("Invalid FCM operator token at index %d (token=%s): %v", i, tokens[i], sendResp.Error)
		} else {
			log.Printf("FCM send error at index %d: %v", i, sendResp.Error)
		}
	}
}

func chunkTokens(tokens []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(tokens); i += size {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, tokens[i:end])
	}
	return chunks
}
