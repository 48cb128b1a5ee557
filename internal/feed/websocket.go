package feed

import (
	"context"
	"errors"
	"fmt"

	"datarecorder/internal/model"
	"datarecorder/internal/utils"
	"datarecorder/internal/websocket"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ErrInvalidConfig indicates an unusable connector configuration.
var ErrInvalidConfig = errors.New("invalid connector configuration")

// tickChannel is the channel name of tick pushes and subscriptions.
const tickChannel = "tick"

// defaultMaxSymbols is used when a feed does not declare a limit.
const defaultMaxSymbols = 200

// ConnectorConfig configures a WebsocketConnector.
type ConnectorConfig struct {
	Name       string `validate:"required"`
	Endpoint   string `validate:"required,url"`
	MaxSymbols int    `validate:"gte=0"`
}

// WebsocketConnector subscribes to a tick feed over WebSocket.
//
// Subscription request:
//
//	{"op": "subscribe", "args": [{"channel": "tick", "code": "IF1604"}]}
//
// Tick push, one or more ticks per frame:
//
//	{"channel": "tick", "data": [{"code": "IF1604", "date": "20160401", "time": "09:30:00.500", "lastPrice": "3210.2", ...}]}
//
// Frames carrying an "event" field (subscription acks, errors) are logged and
// skipped.
type WebsocketConnector struct {
	config   ConnectorConfig
	validate *validator.Validate
}

type subscription struct {
	Op   string            `json:"op"`
	Args []subscriptionArg `json:"args"`
}

type subscriptionArg struct {
	Channel string `json:"channel"`
	Code    string `json:"code"`
}

type tickMessage struct {
	Event   string            `json:"event"`
	Message string            `json:"msg"`
	Channel string            `json:"channel" validate:"required,eq=tick"`
	Data    []model.TickEvent `json:"data" validate:"required,min=1"`
}

// NewWebsocketConnector validates cfg and creates a connector.
func NewWebsocketConnector(cfg ConnectorConfig) (*WebsocketConnector, error) {
	v := validator.New()
	if err := v.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.MaxSymbols == 0 {
		cfg.MaxSymbols = defaultMaxSymbols
	}
	return &WebsocketConnector{config: cfg, validate: v}, nil
}

// SubscribeToTicks implements Connector.
func (wc *WebsocketConnector) SubscribeToTicks(ctx context.Context, codes []string) (<-chan model.TickEvent, error) {
	if err := utils.ValidateCodeLimit(codes, wc.config.MaxSymbols); err != nil {
		return nil, fmt.Errorf("feed %s: %w", wc.config.Name, err)
	}

	msg, err := wc.buildSubscriptionMessage(codes)
	if err != nil {
		return nil, err
	}

	client, err := websocket.NewWebsocketClient(ctx, websocket.Config{
		Endpoint:             wc.config.Endpoint,
		Handler:              wc.handleTickMessage,
		SubscriptionMessages: [][]byte{msg},
	})
	if err != nil {
		log.Error().Err(err).Str("feed", wc.config.Name).Msg("failed to connect feed")
		return nil, err
	}

	return client.TickChan, nil
}

func (wc *WebsocketConnector) buildSubscriptionMessage(codes []string) ([]byte, error) {
	args := make([]subscriptionArg, 0, len(codes))
	for _, c := range codes {
		args = append(args, subscriptionArg{Channel: tickChannel, Code: c})
	}
	return json.Marshal(subscription{Op: "subscribe", Args: args})
}

// handleTickMessage decodes one frame. Per-tick validation is left to the
// engine so that a bad tick is rejected without losing its neighbours.
func (wc *WebsocketConnector) handleTickMessage(ctx context.Context, raw []byte, out chan<- model.TickEvent) error {
	var msg tickMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("feed %s: decode frame: %w", wc.config.Name, err)
	}

	if msg.Event != "" {
		log.Debug().Str("feed", wc.config.Name).Str("event", msg.Event).Str("msg", msg.Message).Msg("feed event")
		return nil
	}

	if err := wc.validate.Struct(&msg); err != nil {
		return fmt.Errorf("feed %s: invalid frame: %w", wc.config.Name, err)
	}

	for _, ev := range msg.Data {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
