package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	orchestration "github.com/koscakluka/ema-interview/core"
	"github.com/koscakluka/ema-interview/core/phases"
	"github.com/koscakluka/ema-interview/core/texttospeech"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML file. Zero values keep the defaults.
type fileConfig struct {
	TurnDetection struct {
		MinSilence time.Duration `yaml:"min_silence"`
		MaxSilence time.Duration `yaml:"max_silence"`
	} `yaml:"turn_detection"`
	MaxExchanges          map[string]int `yaml:"max_exchanges"`
	MaxNoResponseRetries  *int           `yaml:"max_no_response_retries"`
	PlannerTimeout        time.Duration  `yaml:"planner_timeout"`
	MaxSpeakingDuration   time.Duration  `yaml:"max_speaking_duration"`
	SessionDuration       time.Duration  `yaml:"session_duration"`
	MaxConcurrentSessions int            `yaml:"max_concurrent_sessions"`

	Voice         string `yaml:"voice"`
	SampleRate    int    `yaml:"sample_rate"`
	QuestionBank  string `yaml:"question_bank"`
	FallbackAudio string `yaml:"fallback_audio"`

	LLM struct {
		Model string `yaml:"model"`
	} `yaml:"llm"`
	SpeechToText struct {
		Model    string `yaml:"model"`
		Language string `yaml:"language"`
	} `yaml:"speech_to_text"`
	Redis struct {
		Addr   string        `yaml:"addr"`
		DB     int           `yaml:"db"`
		TTL    time.Duration `yaml:"ttl"`
		Prefix string        `yaml:"prefix"`
	} `yaml:"redis"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func loadConfig(path string) (fileConfig, error) {
	config := fileConfig{}
	if path == "" {
		return config, nil
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(source, &config); err != nil {
		return config, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return config, nil
}

// applyEnv lets the environment override connection settings.
func (c *fileConfig) applyEnv() {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		c.MetricsAddr = addr
	}
	if model := os.Getenv("GROQ_MODEL"); model != "" {
		c.LLM.Model = model
	}
}

// orchestration builds the session configuration on top of the defaults.
func (c fileConfig) orchestration() (orchestration.Config, error) {
	config := orchestration.DefaultConfig()

	if c.TurnDetection.MinSilence > 0 {
		config.TurnDetection.MinSilence = c.TurnDetection.MinSilence
	}
	if c.TurnDetection.MaxSilence > 0 {
		config.TurnDetection.MaxSilence = c.TurnDetection.MaxSilence
	}

	var errs []error
	for name, limit := range c.MaxExchanges {
		phase, err := phases.Parse(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("max_exchanges: %w", err))
			continue
		}
		config.MaxExchanges[phase] = limit
	}
	if len(errs) > 0 {
		return config, errors.Join(errs...)
	}

	if c.MaxNoResponseRetries != nil {
		config.MaxNoResponseRetries = *c.MaxNoResponseRetries
	}
	if c.PlannerTimeout > 0 {
		config.PlannerTimeout = c.PlannerTimeout
	}
	if c.MaxSpeakingDuration > 0 {
		config.MaxSpeakingDuration = c.MaxSpeakingDuration
	}
	if c.SessionDuration > 0 {
		config.SessionDuration = c.SessionDuration
	}
	if c.MaxConcurrentSessions > 0 {
		config.MaxConcurrentSessions = c.MaxConcurrentSessions
	}
	config.Voice = texttospeech.Voice(c.Voice)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid interview config: %w", err)
	}
	return config, nil
}
