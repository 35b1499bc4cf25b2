// 包图像提供统一的图像生成提供者接口.
package image

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// 图像生成错误
var (
	// ErrUnknownModel 模型不在支持列表中
	ErrUnknownModel = errors.New("unknown image model")

	// ErrNoImage 服务商未返回任何图像
	ErrNoImage = errors.New("no image returned")
)

// 生成请求代表图像生成请求 。
type GenerateRequest struct {
	Prompt         string            `json:"prompt"`
	NegativePrompt string            `json:"negative_prompt,omitempty"`
	Model          string            `json:"model,omitempty"`
	Width          int               `json:"width,omitempty"`
	Height         int               `json:"height,omitempty"`
	AspectRatio    string            `json:"aspect_ratio,omitempty"` // 16:9, 1:1
	OutputFormat   string            `json:"output_format,omitempty"`
	Quality        int               `json:"quality,omitempty"` // 1-100
	Seed           *int64            `json:"seed,omitempty"`
	Steps          int               `json:"steps,omitempty"`
	CFGScale       float64           `json:"cfg_scale,omitempty"` // Guidance scale
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// 生成响应(Generate Response)代表图像生成的响应.
type GenerateResponse struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Images    []ImageData `json:"images"`
	Usage     ImageUsage  `json:"usage,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// First returns the first image or ErrNoImage.
func (r *GenerateResponse) First() (ImageData, error) {
	if r == nil || len(r.Images) == 0 {
		return ImageData{}, ErrNoImage
	}
	return r.Images[0], nil
}

// ImageData代表生成的图像. Providers return either a URL or inline bytes.
type ImageData struct {
	URL      string `json:"url,omitempty"`
	B64JSON  string `json:"b64_json,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Seed     *int64 `json:"seed,omitempty"`
}

// ImageUsage代表使用统计.
type ImageUsage struct {
	ImagesGenerated int     `json:"images_generated"`
	Cost            float64 `json:"cost,omitempty"`
}

// 提供方定义了图像生成提供者接口.
type Provider interface {
	// 从文本提示生成图像 。
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// 名称返回提供者名称 。
	Name() string
}

// APIError is a non-2xx response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}
