package kafka

import (
	"github.com/Shopify/sarama"
)

type ChangePartitioner struct {
	topic           string
	hashPartitioner sarama.Partitioner
}

func NewChangePartitioner(topic string) sarama.Partitioner {
	return NewChangePartitionerWithCustomPartitioner(topic, sarama.NewHashPartitioner(topic))
}

func NewChangePartitionerWithCustomPartitioner(topic string, p sarama.Partitioner) sarama.Partitioner {
	return ChangePartitioner{
		topic:           topic,
		hashPartitioner: p,
	}
}

func (c ChangePartitioner) Partition(message *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	mk, ok := message.Key.(MessageKey)
	if !ok {
		return c.hashPartitioner.Partition(message, numPartitions)
	}

	// set the key on the message temporarily and allow the hashPartitioner to
	// determine the partition for us, we will revert it back before we proceed
	// in case the sarama module decides to mutate the message in its hashPartitioner
	// implementation in the future
	message.Key = sarama.StringEncoder(mk.KeyForPartitioning())

	ptn, err := c.hashPartitioner.Partition(message, numPartitions)

	message.Key = mk

	return ptn, err
}

func (c ChangePartitioner) RequiresConsistency() bool {
	return true
}
