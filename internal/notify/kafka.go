package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rotisserie/eris"
)

// KafkaNotifier публикует уведомления в Kafka-топик.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaNotifier подключается к брокерам и возвращает нотификатор.
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	prod, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, eris.Wrap(err, "notify: connect kafka")
	}
	return &KafkaNotifier{producer: prod, topic: topic}, nil
}

func (n *KafkaNotifier) Send(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}
	_, _, err = n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%s#%d", msg.Type, msg.CompanyID)),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return eris.Wrap(err, "notify: send message")
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
