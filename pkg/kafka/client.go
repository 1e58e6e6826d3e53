// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"study-indexer-go/internal/config"
	"study-indexer-go/pkg/log"
	"study-indexer-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ContentImportTask) error
}

// Producer 封装课程内容导入任务的生产端。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: writer}
}

// ProduceImportTask 发送一个课程内容导入任务到 Kafka。
func (p *Producer) ProduceImportTask(ctx context.Context, task tasks.ContentImportTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Value: taskBytes})
}

// StartConsumer 启动一个 Kafka 消费者来处理导入任务。
// 失败的任务用 Redis 计数重试次数，达到 3 次后提交 offset 终止重试。
func StartConsumer(cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "study-indexer-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.ContentImportTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理导入任务: object=%s, course=%s", task.ObjectName, task.CourseID)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理导入任务失败: object=%s, Error: %v", task.ObjectName, err)
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.ObjectName)
			attempts, incErr := rdb.Incr(context.Background(), attemptsKey).Result()
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			_ = rdb.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			if attempts >= 3 {
				log.Errorf("导入任务多次失败(>=3)，提交 offset 终止重试: object=%s", task.ObjectName)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
		} else {
			log.Infof("导入任务处理成功: object=%s", task.ObjectName)
			_ = rdb.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", task.ObjectName)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
