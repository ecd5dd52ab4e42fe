// Package queue models messages handed to a consumer by the queue runtime.
package queue

import (
	"sync"

	"tweet_ingestion/internal/models"
)

type Outcome int

const (
	Pending Outcome = iota
	Acked
	Retried
)

func (o Outcome) String() string {
	switch o {
	case Acked:
		return "acked"
	case Retried:
		return "retried"
	default:
		return "pending"
	}
}

// Delivery is one message of a batch. The consumer settles it exactly once with
// Ack or Retry; the first call wins.
type Delivery struct {
	Message models.TweetMessage
	// Attempt starts at 1 for the first delivery.
	Attempt int

	mu      sync.Mutex
	outcome Outcome
	err     error
}

func NewDelivery(msg models.TweetMessage, attempt int) *Delivery {
	if attempt < 1 {
		attempt = 1
	}
	return &Delivery{Message: msg, Attempt: attempt}
}

// Ack removes the message from the queue permanently.
func (d *Delivery) Ack() {
	d.settle(Acked, nil)
}

// Retry returns the message to the queue for redelivery.
func (d *Delivery) Retry(err error) {
	d.settle(Retried, err)
}

func (d *Delivery) settle(o Outcome, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outcome != Pending {
		return
	}
	d.outcome = o
	d.err = err
}

func (d *Delivery) Outcome() Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome
}

// Err is the error passed to Retry, if any.
func (d *Delivery) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}
