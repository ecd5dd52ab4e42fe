package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// tweet:processed:{tweet_id}
func ProcessedKey(tweetID string) string {
	return fmt.Sprintf("tweet:processed:%s", url.PathEscape(strings.TrimSpace(tweetID)))
}
