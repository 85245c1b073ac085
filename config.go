package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/korylprince/chat-image-relay/imagegen"
)

//Config represents options given in the environment
type Config struct {
	ListenAddr       string `envconfig:"LISTEN_ADDR" default:":3000"`             //addr format used for net.Dial
	StaticDir        string `envconfig:"STATIC_DIR" default:"public"`             //empty disables static files
	SystemPromptFile string `envconfig:"SYSTEM_PROMPT_FILE" default:"system.txt"` //built-in prompt used if missing
	Debug            bool   `envconfig:"DEBUG"`

	AIEndpoint    string  `envconfig:"AI_ENDPOINT" default:"https://api.cerebras.ai/v1/chat/completions"`
	AIAPIKey      string  `envconfig:"AI_API_KEY"` //required
	AIModel       string  `envconfig:"AI_MODEL" default:"llama-3.3-70b"`
	AIMaxTokens   int     `envconfig:"AI_MAX_TOKENS" default:"2048"`
	AITemperature float64 `envconfig:"AI_TEMPERATURE" default:"0.7"`
	AITopP        float64 `envconfig:"AI_TOP_P" default:"1"`

	DirectiveMarker string `envconfig:"DIRECTIVE_MARKER" default:"_"`
	DirectiveKey    string `envconfig:"DIRECTIVE_KEY" default:"prompt"`
	ScanMaxBytes    int    `envconfig:"SCAN_MAX_BYTES" default:"1048576"` //0 for unbounded

	ImageEndpoint     string        `envconfig:"IMAGE_ENDPOINT" default:"https://image.pollinations.ai/prompt"`
	ImageMode         string        `envconfig:"IMAGE_MODE" default:"multi"`      //single or multi
	ImageDelivery     string        `envconfig:"IMAGE_DELIVERY" default:"inline"` //inline or url
	ImageVariantsFile string        `envconfig:"IMAGE_VARIANTS_FILE"`             //overrides IMAGE_MODE
	ImageTimeout      time.Duration `envconfig:"IMAGE_TIMEOUT" default:"60s"`
	ImageMaxBytes     int64         `envconfig:"IMAGE_MAX_BYTES" default:"0"` //0 for unbounded

	TurnQueue      int           `envconfig:"TURN_QUEUE" default:"8"`
	WSPingInterval time.Duration `envconfig:"WS_PING_INTERVAL" default:"30s"`
	WSReadTimeout  time.Duration `envconfig:"WS_READ_TIMEOUT" default:"90s"`
	WSWriteTimeout time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	WSMaxMessage   int64         `envconfig:"WS_MAX_MESSAGE" default:"65536"`
}

func checkEmpty(val, name string) error {
	if val == "" {
		return fmt.Errorf("RELAY_%s must be configured", name)
	}
	return nil
}

//loadConfig reads Config from RELAY_* environment variables
func loadConfig() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process("RELAY", config); err != nil {
		return nil, err
	}

	if err := checkEmpty(config.AIAPIKey, "AI_API_KEY"); err != nil {
		return nil, err
	}
	if err := checkEmpty(config.ListenAddr, "LISTEN_ADDR"); err != nil {
		return nil, err
	}

	if config.ImageMode != imagegen.ModeSingle && config.ImageMode != imagegen.ModeMulti {
		return nil, fmt.Errorf("RELAY_IMAGE_MODE must be %q or %q", imagegen.ModeSingle, imagegen.ModeMulti)
	}
	if config.ImageDelivery != imagegen.DeliveryInline && config.ImageDelivery != imagegen.DeliveryURL {
		return nil, fmt.Errorf("RELAY_IMAGE_DELIVERY must be %q or %q", imagegen.DeliveryInline, imagegen.DeliveryURL)
	}

	// a ping must arrive before the read deadline passes
	if config.WSPingInterval > 0 && config.WSReadTimeout > 0 && config.WSReadTimeout <= config.WSPingInterval {
		return nil, fmt.Errorf("RELAY_WS_READ_TIMEOUT (%s) must be longer than RELAY_WS_PING_INTERVAL (%s)", config.WSReadTimeout, config.WSPingInterval)
	}

	return config, nil
}

//variants returns the configured image variants
func (c *Config) variants() ([]imagegen.Variant, error) {
	if c.ImageVariantsFile != "" {
		return imagegen.LoadVariants(c.ImageVariantsFile)
	}
	return imagegen.VariantsForMode(c.ImageMode)
}
