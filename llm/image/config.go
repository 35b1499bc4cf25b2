package image

import "time"

// ReplicateConfig配置了Replicate供应商.
type ReplicateConfig struct {
	APIToken string        `json:"api_token" yaml:"api_token"`
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	Model    string        `json:"model,omitempty" yaml:"model,omitempty"` // flux-1.1-pro, flux-schnell, sdxl
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// PollInterval is the delay between prediction status checks.
	PollInterval time.Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	// MaxPollAttempts bounds polling when the context has no deadline.
	MaxPollAttempts int `json:"max_poll_attempts,omitempty" yaml:"max_poll_attempts,omitempty"`
}

// 默认ReplicateConfig 返回默认Replicate配置 。
func DefaultReplicateConfig() ReplicateConfig {
	return ReplicateConfig{
		BaseURL:         "https://api.replicate.com",
		Model:           ModelFlux11Pro,
		Timeout:         120 * time.Second,
		PollInterval:    2 * time.Second,
		MaxPollAttempts: 120,
	}
}

// 双子座Config配置了谷歌双子座图像生成提供者.
type GeminiConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // gemini-2.5-flash-image
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// 默认GeminiConfig返回默认双子星图像配置.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL: "https://generativelanguage.googleapis.com",
		Model:   "gemini-2.5-flash-image",
		Timeout: 120 * time.Second,
	}
}
