package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tweet_ingestion/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// AttemptHeader carries the delivery attempt of a republished message. Absent means 1.
const AttemptHeader = "x-attempt"

// ErrPoisonMessage marks payloads that can never be processed and go straight to the dead letters.
var ErrPoisonMessage = errors.New("poison message")

func DecodeTweetMessage(b []byte) (models.TweetMessage, error) {
	var m models.TweetMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return models.TweetMessage{}, fmt.Errorf("%w: unmarshal: %v", ErrPoisonMessage, err)
	}
	if _, err := uuid.Parse(m.TweetID); err != nil {
		return models.TweetMessage{}, fmt.Errorf("%w: tweetId %q is not a uuid", ErrPoisonMessage, m.TweetID)
	}
	if strings.TrimSpace(m.UserID) == "" {
		return models.TweetMessage{}, fmt.Errorf("%w: userId is empty", ErrPoisonMessage)
	}
	return m, nil
}

func attemptOf(m *sarama.ConsumerMessage) int {
	for _, h := range m.Headers {
		if h == nil || string(h.Key) != AttemptHeader {
			continue
		}
		n, err := strconv.Atoi(string(h.Value))
		if err != nil || n < 1 {
			return 1
		}
		return n
	}
	return 1
}

func attemptHeader(attempt int) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(AttemptHeader), Value: []byte(strconv.Itoa(attempt))}
}
