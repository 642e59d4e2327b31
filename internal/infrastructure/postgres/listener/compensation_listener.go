package listener

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"

	"txengine/internal/domain/transaction"
	"txengine/internal/infrastructure/postgres"
)

const (
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
	retryBatchSize    = 50
)

// CompensationNotification represents the payload from PostgreSQL NOTIFY
type CompensationNotification struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	ProductID     string `json:"product_id"`
}

// Retrier replays parked compensations
type Retrier interface {
	RetryPending(ctx context.Context, limit int) (*transaction.RetryResult, error)
}

// CompensationListener retries parked compensations shortly after they are
// recorded. Notifications arriving while a retry is scheduled are coalesced.
type CompensationListener struct {
	connStr    string
	retrier    Retrier
	delay      time.Duration
	trigger    chan struct{}
	shutdownCh chan struct{}
	done       chan struct{}
	retryDone  chan struct{}
}

// NewCompensationListener creates a listener that calls retrier delay after
// each burst of notifications.
func NewCompensationListener(connStr string, retrier Retrier, delay time.Duration) *CompensationListener {
	return &CompensationListener{
		connStr:    connStr,
		retrier:    retrier,
		delay:      delay,
		trigger:    make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
		retryDone:  make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *CompensationListener) Start(ctx context.Context) {
	go l.listen(ctx)
	go l.retryLoop()
	log.Println("Compensation notification listener started")
}

// Stop gracefully shuts down the listener
func (l *CompensationListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	<-l.retryDone
	log.Println("Compensation notification listener stopped")
}

func (l *CompensationListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		// Wait before reconnecting
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Println("Reconnecting to PostgreSQL for notifications...")
		}
	}
}

func (l *CompensationListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("Listener error: %v", err)
		}
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			log.Println("Disconnected from PostgreSQL notification channel")
		case pq.ListenerEventReconnected:
			log.Println("Reconnected to PostgreSQL notification channel")
			// Notifications sent while disconnected are lost
			l.schedule()
		case pq.ListenerEventConnectionAttemptFailed:
			log.Printf("Connection attempt failed: %v", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(postgres.CompensationChannel); err != nil {
		log.Printf("Failed to listen on channel %s: %v", postgres.CompensationChannel, err)
		return
	}

	log.Printf("Listening on channel: %s", postgres.CompensationChannel)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case notification := <-listener.Notify:
			if notification == nil {
				// Connection lost, break to reconnect
				return
			}
			l.handleNotification(notification)
		case <-time.After(pingInterval):
			go func() {
				if err := listener.Ping(); err != nil {
					log.Printf("Listener ping failed: %v", err)
				}
			}()
		}
	}
}

func (l *CompensationListener) handleNotification(notification *pq.Notification) {
	var payload CompensationNotification
	if err := json.Unmarshal([]byte(notification.Extra), &payload); err != nil {
		log.Printf("Failed to parse notification payload: %v", err)
		return
	}
	log.Printf("Compensation %s parked for product %s (transaction %s)",
		payload.ID, payload.ProductID, payload.TransactionID)
	l.schedule()
}

// schedule requests a retry pass without blocking.
func (l *CompensationListener) schedule() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

func (l *CompensationListener) retryLoop() {
	defer close(l.retryDone)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-l.trigger:
		}

		select {
		case <-l.shutdownCh:
			return
		case <-time.After(l.delay):
		}

		// Use background context since the listener context may be cancelled during shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if _, err := l.retrier.RetryPending(ctx, retryBatchSize); err != nil {
			log.Printf("Compensation retry after notification failed: %v", err)
		}
		cancel()
	}
}
