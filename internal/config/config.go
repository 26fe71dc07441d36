package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Exchange  ExchangeConfig
	Data      DataConfig
	Backtest  BacktestConfig
	Execution ExecutionConfig
	Strategy  StrategyConfig
	Optimize  OptimizeConfig
	Runtime   RuntimeConfig
}

type ExchangeConfig struct {
	BaseUrl string
	WSUrl   string
	ApiKey  string
	Secret  string
}

type DataConfig struct {
	Dir      string
	Symbol   string
	Interval string
	From     string
	To       string
}

type BacktestConfig struct {
	Mode                string // "backtest" or "live"
	InitialCash         float64
	CheckpointFile      string
	RestoreStateOnStart bool
}

type ExecutionConfig struct {
	SlippageFraction  float64
	MakerFeeRate      float64
	TakerFeeRate      float64
	MaxVolumeFraction float64
}

type StrategyConfig struct {
	Name   string
	Params map[string]float64
}

type OptimizeConfig struct {
	Metric  string
	Workers int
	Grid    map[string][]float64
}

type RuntimeConfig struct {
	LogLevel      string
	LogFormat     string
	LogOutput     string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

func Load() (*Config, error) {

	cfg := &Config{}
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	viper.ReadInConfig()

	cfg.Exchange = ExchangeConfig{
		BaseUrl: viper.GetString("exchange.base_url"),
		WSUrl:   viper.GetString("exchange.ws_url"),
		ApiKey:  envSub("exchange.api_key"),
		Secret:  envSub("exchange.secret"),
	}

	cfg.Data = DataConfig{
		Dir:      viper.GetString("data.dir"),
		Symbol:   viper.GetString("data.symbol"),
		Interval: viper.GetString("data.interval"),
		From:     viper.GetString("data.from"),
		To:       viper.GetString("data.to"),
	}

	cfg.Backtest = BacktestConfig{
		Mode:                viper.GetString("backtest.mode"),
		InitialCash:         viper.GetFloat64("backtest.initial_cash"),
		CheckpointFile:      viper.GetString("backtest.checkpoint_file"),
		RestoreStateOnStart: viper.GetBool("backtest.restore_state_on_start"),
	}

	cfg.Execution = ExecutionConfig{
		SlippageFraction:  viper.GetFloat64("execution.slippage_fraction"),
		MakerFeeRate:      viper.GetFloat64("execution.maker_fee_rate"),
		TakerFeeRate:      viper.GetFloat64("execution.taker_fee_rate"),
		MaxVolumeFraction: viper.GetFloat64("execution.max_volume_fraction"),
	}

	params, err := floatMap(viper.GetStringMap("strategy.params"))
	if err != nil {
		return nil, fmt.Errorf("strategy.params: %w", err)
	}
	cfg.Strategy = StrategyConfig{
		Name:   viper.GetString("strategy.name"),
		Params: params,
	}

	grid, err := floatGrid(viper.GetStringMap("optimize.grid"))
	if err != nil {
		return nil, fmt.Errorf("optimize.grid: %w", err)
	}
	cfg.Optimize = OptimizeConfig{
		Metric:  viper.GetString("optimize.metric"),
		Workers: viper.GetInt("optimize.workers"),
		Grid:    grid,
	}

	cfg.Runtime = RuntimeConfig{
		LogLevel:      viper.GetString("runtime.log_level"),
		LogFormat:     viper.GetString("runtime.log_format"),
		LogOutput:     viper.GetString("runtime.log_output"),
		LogMaxSize:    viper.GetInt("runtime.log_max_size"),
		LogMaxBackups: viper.GetInt("runtime.log_max_backups"),
		LogMaxAge:     viper.GetInt("runtime.log_max_age"),
		LogCompress:   viper.GetBool("runtime.log_compress"),
	}

	return cfg, nil
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}

func floatMap(raw map[string]interface{}) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = f
	}
	return out, nil
}

func floatGrid(raw map[string]interface{}) (map[string][]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string][]float64, len(raw))
	for k, v := range raw {
		items, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: expected a list", k)
		}
		vals := make([]float64, 0, len(items))
		for _, item := range items {
			f, err := toFloat(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			vals = append(vals, f)
		}
		out[k] = vals
	}
	return out, nil
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
