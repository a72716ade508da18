package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "hubrouter"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("hub.base_url", "https://hub.orbs.network")
	v.SetDefault("hub.chain_id", 137)
	v.SetDefault("hub.quote_timeout", "10s")
	v.SetDefault("hub.swap_timeout", "40s")

	v.SetDefault("chain.rpc_url", "https://polygon-rpc.com")

	v.SetDefault("routing.disabled", false)
	v.SetDefault("routing.force", "")

	v.SetDefault("approval.permit_contract", "0x000000000022d473030f116ddee9f6b43ac78ba3")
	v.SetDefault("approval.proxy_router", "")
	v.SetDefault("approval.swap_router", "")

	v.SetDefault("confirm.interval", "1500ms")
	v.SetDefault("confirm.max_attempts", 60)

	v.SetDefault("analytics.endpoint", "https://bi.orbs.network/putes/clob-dev-ui")
	v.SetDefault("analytics.timeout", "5s")
	v.SetDefault("analytics.queue_size", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
