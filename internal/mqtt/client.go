package mqtt

import (
	"fmt"
	"sort"
	"sync"

	"tourguard-safety/internal/config"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte) error

// Broker is the subset of the client used by the tracker.
type Broker interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Unsubscribe(topics ...string) error
}

type route struct {
	qos     byte
	handler MessageHandler
}

// routes 当前订阅表，重连后按表恢复订阅
type routes struct {
	mu    sync.Mutex
	items map[string]route
}

func newRoutes() *routes {
	return &routes{items: make(map[string]route)}
}

func (r *routes) add(topic string, qos byte, handler MessageHandler) {
	r.mu.Lock()
	r.items[topic] = route{qos: qos, handler: handler}
	r.mu.Unlock()
}

func (r *routes) remove(topics ...string) {
	r.mu.Lock()
	for _, t := range topics {
		delete(r.items, t)
	}
	r.mu.Unlock()
}

// topics returns the registered topics in a stable order.
func (r *routes) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for t := range r.items {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *routes) get(topic string) (route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.items[topic]
	return rt, ok
}

// Client MQTT客户端封装
type Client struct {
	client paho.Client
	routes *routes
	logger *zap.Logger
}

// NewClient 创建MQTT客户端并连接
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{routes: newRoutes(), logger: logger}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	// handlers may unsubscribe or publish and wait on the token
	opts.SetOrderMatters(false)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	// clean sessions drop subscriptions on reconnect
	opts.SetOnConnectHandler(func(pc paho.Client) {
		c.resubscribe(pc)
	})

	c.client = paho.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	logger.Info("MQTT connected", zap.String("broker", cfg.Broker), zap.String("client_id", cfg.ClientID))
	return c, nil
}

func (c *Client) callback(handler MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("Error handling MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}
}

func (c *Client) resubscribe(pc paho.Client) {
	for _, topic := range c.routes.topics() {
		rt, ok := c.routes.get(topic)
		if !ok {
			continue
		}
		// OnConnect must not wait on tokens
		token := pc.Subscribe(topic, rt.qos, c.callback(rt.handler))
		go func(topic string) {
			if token.Wait() && token.Error() != nil {
				c.logger.Error("Failed to restore MQTT subscription",
					zap.String("topic", topic),
					zap.Error(token.Error()),
				)
			}
		}(topic)
	}
}

// Subscribe 订阅主题（断线重连后自动恢复）
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.routes.add(topic, qos, handler)
	if token := c.client.Subscribe(topic, qos, c.callback(handler)); token.Wait() && token.Error() != nil {
		c.routes.remove(topic)
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Publish 发布消息
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	c.routes.remove(topics...)
	token := c.client.Unsubscribe(topics...)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}
	return nil
}

// Disconnect 断开连接，等待 250ms 完成在途消息
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
