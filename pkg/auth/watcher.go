package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goadmin/pkg/logger"
)

// reloadMessage 策略重载通知
type reloadMessage struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PolicyWatcher 通过 Redis 发布订阅在节点间同步策略变更
type PolicyWatcher struct {
	client   redis.UniversalClient
	channel  string
	nodeID   string
	interval time.Duration
	engine   *PolicyEngine

	cancel context.CancelFunc
	done   chan struct{}
	pubsub *redis.PubSub
}

// NewPolicyWatcher 创建策略同步器，interval > 0 时额外定时全量重载
func NewPolicyWatcher(client redis.UniversalClient, channel string, interval time.Duration, engine *PolicyEngine) *PolicyWatcher {
	return &PolicyWatcher{
		client:   client,
		channel:  channel,
		nodeID:   uuid.NewString(),
		interval: interval,
		engine:   engine,
	}
}

// NodeID 当前节点标识
func (w *PolicyWatcher) NodeID() string {
	return w.nodeID
}

// Notify 发布重载通知
func (w *PolicyWatcher) Notify(ctx context.Context) error {
	data, err := json.Marshal(reloadMessage{NodeID: w.nodeID, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal reload message: %w", err)
	}
	return w.client.Publish(ctx, w.channel, data).Err()
}

// Start 订阅通知并启动监听
func (w *PolicyWatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.pubsub = w.client.Subscribe(ctx, w.channel)

	// 等待订阅确认
	if _, err := w.pubsub.Receive(ctx); err != nil {
		cancel()
		_ = w.pubsub.Close()
		return fmt.Errorf("subscribe policy channel: %w", err)
	}

	w.cancel = cancel
	w.done = make(chan struct{})
	w.engine.SetNotifier(w)
	go w.listen(ctx)

	logger.Info("策略同步已启动",
		zap.String("channel", w.channel),
		zap.String("node_id", w.nodeID),
	)
	return nil
}

// listen 监听通知与定时重载
func (w *PolicyWatcher) listen(ctx context.Context) {
	defer close(w.done)

	ch := w.pubsub.Channel()
	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			w.reload("interval")
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.handleMessage(msg.Payload)
		}
	}
}

// handleMessage 忽略本节点发出的通知
func (w *PolicyWatcher) handleMessage(payload string) {
	var msg reloadMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		logger.Error("解析策略通知失败", zap.Error(err))
		return
	}
	if msg.NodeID == w.nodeID {
		return
	}
	w.reload(msg.NodeID)
}

func (w *PolicyWatcher) reload(source string) {
	if err := w.engine.Reload(); err != nil {
		logger.Error("策略重载失败", zap.String("source", source), zap.Error(err))
		return
	}
	logger.Debug("策略已重载", zap.String("source", source))
}

// Stop 停止监听
func (w *PolicyWatcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.engine.SetNotifier(nil)
	w.cancel()
	err := w.pubsub.Close()
	<-w.done
	return err
}
