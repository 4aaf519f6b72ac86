package kafka

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/go-test/deep"
)

func TestNewChangePartitioner(t *testing.T) {
	got := NewChangePartitioner("foo")

	cp := got.(ChangePartitioner)
	if cp.topic != "foo" {
		t.Errorf("expected 'foo' as topic but got '%s'", cp.topic)
	}
}

func TestNewChangePartitionerWithCustomPartitioner(t *testing.T) {
	deep.CompareUnexportedFields = true
	defer func() {
		deep.CompareUnexportedFields = false
	}()

	fp := newFakeHashPartitioner(false)
	got := NewChangePartitionerWithCustomPartitioner("bar", fp)

	exp := ChangePartitioner{
		topic:           "bar",
		hashPartitioner: fp,
	}

	if diff := deep.Equal(exp, got); diff != nil {
		t.Error(diff)
	}
}

func TestChangePartitioner_Partition(t *testing.T) {
	t.Run("partition key is used on message key", func(t *testing.T) {
		t.Parallel()
		fp := newFakeHashPartitioner(false)
		fp.partitionToReturn = 9
		cp := NewChangePartitionerWithCustomPartitioner("clinic.sync.events", fp)
		mk := newMessageKey("AlignerSets:5", "AlignerSets")
		msg := &sarama.ProducerMessage{Key: mk}

		got, err := cp.Partition(msg, 10)
		if err != nil {
			t.Errorf("unexpected error: %s", err)
		}

		if got != 9 {
			t.Errorf("expected partition 9 but got %d", got)
		}

		if fp.recvdMessageKey != "AlignerSets" {
			t.Errorf("expected 'AlignerSets' as message key, but was '%s' instead", fp.recvdMessageKey)
		}

		if !reflect.DeepEqual(msg.Key, mk) {
			t.Error("expected the message key to be reset on the message")
		}
	})

	t.Run("delegates to default hashPartitioner behaviour if there is a nil message key", func(t *testing.T) {
		t.Parallel()
		fp := newFakeHashPartitioner(false)
		cp := NewChangePartitionerWithCustomPartitioner("clinic.sync.events", fp)
		got, err := cp.Partition(&sarama.ProducerMessage{}, 2)
		if err != nil {
			t.Errorf("unexpected error: %s", err)
		}

		if got != 0 {
			t.Errorf("expected partition 0 but got %d", got)
		}
	})

	t.Run("key is used when partition key is empty", func(t *testing.T) {
		t.Parallel()
		fp := newFakeHashPartitioner(false)
		cp := NewChangePartitionerWithCustomPartitioner("clinic.sync.events", fp)
		msg := &sarama.ProducerMessage{Key: newMessageKey("foo", "")}

		_, err := cp.Partition(msg, 2)
		if err != nil {
			t.Errorf("unexpected error: %s", err)
		}

		if fp.recvdMessageKey != "foo" {
			t.Errorf("expected message key on hashPartitioner to be 'foo', but was '%s' instead", fp.recvdMessageKey)
		}
	})

	t.Run("error is returned from hashPartitioner", func(t *testing.T) {
		t.Parallel()
		fp := newFakeHashPartitioner(true)
		cp := NewChangePartitionerWithCustomPartitioner("clinic.sync.events", fp)
		msg := &sarama.ProducerMessage{Key: newMessageKey("foo", "bar")}

		_, err := cp.Partition(msg, 2)
		if err == nil {
			t.Error("expected an error but got nil")
		}
	})
}

func TestChangePartitioner_RequiresConsistency(t *testing.T) {
	if !(ChangePartitioner{}).RequiresConsistency() {
		t.Error("expected ChangePartitioner to require consistency, but it does not")
	}
}

type fakeHashPartitioner struct {
	returnError       bool
	partitionToReturn int32
	recvdMessageKey   string
}

func newFakeHashPartitioner(returnError bool) *fakeHashPartitioner {
	return &fakeHashPartitioner{
		returnError: returnError,
	}
}

func (f *fakeHashPartitioner) Partition(message *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	if f.returnError {
		return 0, errors.New("oops")
	}

	if message.Key != nil {
		b, err := message.Key.Encode()
		if err != nil {
			return 0, err
		}
		f.recvdMessageKey = string(b)
	}

	return f.partitionToReturn, nil
}

func (f *fakeHashPartitioner) RequiresConsistency() bool {
	return true
}
