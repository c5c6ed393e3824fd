package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	// ExchangeEvents — события выполнения jobs (topic, подписчики привязывают свои очереди).
	ExchangeEvents Exchange = "momo.events"

	// ExchangeCommands — команды экземплярам (ручной запуск jobs).
	ExchangeCommands Exchange = "momo.commands"

	// ExchangeDLQ — отклонённые команды.
	ExchangeDLQ Exchange = "momo.dlq"
)

// Queues.
const (
	QueueJobsTrigger Queue = "momo.jobs.trigger"
	QueueDLQTrigger  Queue = "momo.dlq.trigger"
)

// Routing keys.
const (
	RoutingKeyJobExecuted RoutingKey = "job.executed"
	RoutingKeyJobTrigger  RoutingKey = "job.trigger"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полное описание объектов RabbitMQ.
func topology() ([]exchangeDecl, []queueDecl, []bindingDecl) {
	exchanges := []exchangeDecl{
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeCommands, amqp.ExchangeDirect},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	queues := []queueDecl{
		// Некорректные команды и команды для неизвестных jobs уходят в DLQ.
		{QueueJobsTrigger, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyJobTrigger),
		}},
		{QueueDLQTrigger, nil},
	}

	bindings := []bindingDecl{
		{QueueJobsTrigger, RoutingKeyJobTrigger, ExchangeCommands},
		{QueueDLQTrigger, RoutingKeyJobTrigger, ExchangeDLQ},
	}

	return exchanges, queues, bindings
}

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
func SetupTopology(conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  momo RabbitMQ topology:

    momo.events (topic)
    └── [routing: job.executed]  подписчики привязывают свои очереди

    momo.commands (direct)
    └── momo.jobs.trigger [routing: job.trigger]
            Consumer: momo-scheduler (Schedule.Run)
            DLQ: momo.dlq.trigger

    momo.dlq (direct)
    └── momo.dlq.trigger [routing: job.trigger]
            Manual processing
  `
}
