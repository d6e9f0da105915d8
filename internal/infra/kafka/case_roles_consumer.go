package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/domain"
	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/config"
)

// TaskReconfigurer re-evaluates the active tasks of a case.
type TaskReconfigurer interface {
	ReconfigureTasksForCase(ctx context.Context, caseID string) (int, error)
}

// CaseRolesConsumer reconfigures a case's tasks when its role assignments change.
type CaseRolesConsumer struct {
	reconfigurer TaskReconfigurer
	logger       *zap.Logger
}

// NewCaseRolesConsumer constructs a consumer for case role change events.
func NewCaseRolesConsumer(reconfigurer TaskReconfigurer, logger *zap.Logger) *CaseRolesConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaseRolesConsumer{reconfigurer: reconfigurer, logger: logger}
}

// HandleMessage decodes a Kafka message and reconfigures the affected case.
func (c *CaseRolesConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var event domain.CaseRolesChangedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode case roles event: %w", err)
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent reconfigures every active task of the event's case.
func (c *CaseRolesConsumer) HandleEvent(ctx context.Context, event domain.CaseRolesChangedEvent) error {
	caseID := strings.TrimSpace(event.CaseID)
	if caseID == "" {
		return fmt.Errorf("case roles event %q has no case id", event.EventID)
	}

	count, err := c.reconfigurer.ReconfigureTasksForCase(ctx, caseID)
	if err != nil {
		c.logger.Warn("case task reconfiguration incomplete",
			zap.String("case_id", caseID),
			zap.String("event_id", event.EventID),
			zap.Int("reconfigured", count),
			zap.Error(err),
		)
		return fmt.Errorf("reconfigure tasks for case %s: %w", caseID, err)
	}

	c.logger.Debug("case tasks reconfigured",
		zap.String("case_id", caseID),
		zap.Int("reconfigured", count),
	)
	return nil
}

// MessageHandler processes a single consumed message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// ConsumerGroup feeds messages from one topic into a MessageHandler. Offsets are marked after the
// handler returns, including on failure, so a poison message cannot stall the partition.
type ConsumerGroup struct {
	group   sarama.ConsumerGroup
	topic   string
	handler MessageHandler
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewConsumerGroup joins the configured consumer group for topic.
func NewConsumerGroup(cfg config.KafkaSettings, topic string, handler MessageHandler, logger *zap.Logger) (*ConsumerGroup, error) {
	saramaConfig := newSaramaConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	if cfg.ConsumerStartOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return newConsumerGroup(group, topic, handler, logger), nil
}

func newConsumerGroup(group sarama.ConsumerGroup, topic string, handler MessageHandler, logger *zap.Logger) *ConsumerGroup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsumerGroup{group: group, topic: topic, handler: handler, logger: logger}
}

// Start consumes in the background until ctx is cancelled or Close is called.
func (c *ConsumerGroup) Start(ctx context.Context) {
	c.wg.Add(2)

	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.Error("kafka consumer group error", zap.String("topic", c.topic), zap.Error(err))
		}
	}()

	go func() {
		defer c.wg.Done()
		for {
			if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("kafka consume failed", zap.String("topic", c.topic), zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.logger.Info("kafka consumer started", zap.String("topic", c.topic))
}

// Close leaves the group and waits for the background loops.
func (c *ConsumerGroup) Close() error {
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroup) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroup) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroup) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handler.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Warn("kafka message handling failed",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*ConsumerGroup)(nil)
