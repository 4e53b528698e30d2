package config

import (
	"context"
	"encoding/json"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sensorhub-go/bus"
	"sensorhub-go/types"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxBoardKey  = "board" // context key used for the board name
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(board string) ([]byte, bool) {
	b, ok := embeddedConfigs[board]
	return b, ok
}

// Boards lists the embedded board names.
func Boards() []string {
	out := make([]string, 0, len(embeddedConfigs))
	for k := range embeddedConfigs {
		out = append(out, k)
	}
	return out
}

// Load decodes the embedded configuration for board.
func Load(board string) (*types.HubConfig, error) {
	raw, ok := EmbeddedConfigLookup(board)
	if !ok || len(raw) == 0 {
		return nil, errors.Errorf("no embedded config for board %q", board)
	}
	return Decode(raw)
}

// Decode parses a JSON board description. Durations are strings ("250ms"),
// enumerations are names ("polling"), numbers may be given as hex strings.
// Unknown keys are rejected.
func Decode(raw []byte) (*types.HubConfig, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	cfg := &types.HubConfig{}
	if err := decodeMap(m, cfg); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	return cfg, nil
}

func decodeMap(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// ---- Config Service ----

// ConfigService publishes the board configuration as retained messages, one
// per top-level key, under config/<key>.
type ConfigService struct {
	Name string
	log  *zap.Logger
}

func NewConfigService(log *zap.Logger) *ConfigService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConfigService{Name: serviceName, log: log.Named(serviceName)}
}

func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	board, _ := ctx.Value(CtxBoardKey).(string)
	if board == "" {
		return errors.New("missing board in context")
	}
	raw, ok := EmbeddedConfigLookup(board)
	if !ok || len(raw) == 0 {
		return errors.Errorf("no embedded config for board %q", board)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return errors.Wrap(err, "embedded config is not a JSON object")
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			s.log.Error("publish failed", zap.Error(err))
		}
	}()
}
