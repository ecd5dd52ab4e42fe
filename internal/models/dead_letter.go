package models

import "time"

// DeadLetter is a queue message parked after exhausting its retries or failing to decode.
type DeadLetter struct {
	ID        int64     `db:"id"`
	Topic     string    `db:"topic"`
	Partition int32     `db:"partition"`
	Offset    int64     `db:"kafka_offset"`
	Key       string    `db:"message_key"`
	Payload   []byte    `db:"payload"`
	Attempts  int       `db:"attempts"`
	LastError string    `db:"last_error"`
	CreatedAt time.Time `db:"created_at"`
}
