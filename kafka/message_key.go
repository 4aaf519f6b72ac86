package kafka

import (
	"github.com/Shopify/sarama"
)

type MessageKey struct {
	Key          string
	PartitionKey string
	sarama.StringEncoder
}

func newMessageKey(key, partitionKey string) MessageKey {
	return MessageKey{
		Key:           key,
		PartitionKey:  partitionKey,
		StringEncoder: sarama.StringEncoder(key),
	}
}

// KeyForPartitioning prefers the explicit partition key so all changes for
// one table can land on one partition even when the record key is per-row.
func (mk MessageKey) KeyForPartitioning() string {
	if mk.PartitionKey == "" {
		return mk.Key
	}

	return mk.PartitionKey
}
