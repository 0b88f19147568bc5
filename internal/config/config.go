package config

import (
    "fmt"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "github.com/spf13/pflag"
    "github.com/spf13/viper"
)

type Config struct {
    Addr       string
    LogLevel   zerolog.Level
    BotDelay   time.Duration
    AccountsDB string
    Heartbeat  time.Duration
}

// Load reads flags from args, then TICTACTOE_* environment variables, then
// the optional --config file. Flags set explicitly win over everything else.
func Load(args []string) (Config, error) {
    fs := pflag.NewFlagSet("tictactoe", pflag.ContinueOnError)
    fs.String("config", "", "optional config file (yaml, json or toml)")
    fs.String("addr", ":8080", "listen address")
    fs.String("log-level", "info", "log level: trace, debug, info, warn, error")
    fs.Duration("bot-delay", 500*time.Millisecond, "pause before the bot replies; 0 replies within the move request")
    fs.String("accounts-db", "", "SQLite file for local accounts; empty disables signup and login")
    fs.Duration("heartbeat", 15*time.Second, "keep-alive interval for event streams")
    if err := fs.Parse(args); err != nil {
        return Config{}, err
    }

    v := viper.New()
    v.SetEnvPrefix("TICTACTOE")
    v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
    v.AutomaticEnv()
    if err := v.BindPFlags(fs); err != nil {
        return Config{}, fmt.Errorf("bind flags: %w", err)
    }
    if path := v.GetString("config"); path != "" {
        v.SetConfigFile(path)
        if err := v.ReadInConfig(); err != nil {
            return Config{}, fmt.Errorf("read config %s: %w", path, err)
        }
    }

    level, err := zerolog.ParseLevel(v.GetString("log-level"))
    if err != nil {
        return Config{}, fmt.Errorf("log-level: %w", err)
    }
    cfg := Config{
        Addr:       v.GetString("addr"),
        LogLevel:   level,
        BotDelay:   v.GetDuration("bot-delay"),
        AccountsDB: v.GetString("accounts-db"),
        Heartbeat:  v.GetDuration("heartbeat"),
    }
    if cfg.BotDelay < 0 {
        return Config{}, fmt.Errorf("bot-delay must not be negative, got %s", cfg.BotDelay)
    }
    if cfg.Heartbeat <= 0 {
        return Config{}, fmt.Errorf("heartbeat must be positive, got %s", cfg.Heartbeat)
    }
    return cfg, nil
}
