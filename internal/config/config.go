package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "./bwhelper.json"

	// 默认生成参数
	defaultTemperature     = 0.1
	defaultMaxOutputTokens = 50
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
)

// 模型后端
const (
	BackendREST   = "rest"
	BackendGenAI  = "genai"
	BackendOpenAI = "openai"
)

// ModelConfig 模型配置
type ModelConfig struct {
	Name            string  `json:"name" yaml:"name"`
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	Backend         string  `json:"backend" yaml:"backend"`
	BaseURL         string  `json:"base_url" yaml:"base_url"`
	APIKey          string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model           string  `json:"model" yaml:"model"`
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens"`
}

// FallbackRule 远程调用失败时使用的关键词答案
type FallbackRule struct {
	Kind     string   `json:"kind" yaml:"kind"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Answer   string   `json:"answer" yaml:"answer"`
}

// Delays 等待页面渲染的固定延迟（毫秒）
type Delays struct {
	SettleMillis int `json:"settle_ms" yaml:"settle_ms"`
	FillMillis   int `json:"fill_ms" yaml:"fill_ms"`
}

// Marker 标记元素样式
type Marker struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Color   string `json:"color" yaml:"color"`
	SizePx  int    `json:"size_px" yaml:"size_px"`
}

// Browser 浏览器配置
type Browser struct {
	Headless         bool   `json:"headless" yaml:"headless"`
	ChromeBinaryPath string `json:"chrome_binary_path,omitempty" yaml:"chrome_binary_path,omitempty"`
	UserDataDir      string `json:"user_data_dir,omitempty" yaml:"user_data_dir,omitempty"`
}

// Server 控制服务配置
type Server struct {
	Port           int      `json:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// ConfigFile 配置文件结构
type ConfigFile struct {
	APIKey       string         `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	DefaultModel string         `json:"default_model" yaml:"default_model"`
	Cookie       string         `json:"cookie,omitempty" yaml:"cookie,omitempty"`
	LogLevel     string         `json:"log_level" yaml:"log_level"`
	Models       []ModelConfig  `json:"models" yaml:"models"`
	Fallbacks    []FallbackRule `json:"fallbacks" yaml:"fallbacks"`
	Delays       Delays         `json:"delays" yaml:"delays"`
	Marker       Marker         `json:"marker" yaml:"marker"`
	Browser      Browser        `json:"browser" yaml:"browser"`
	Server       Server         `json:"server" yaml:"server"`
}

// Config 全局配置管理
type Config struct {
	mu       sync.RWMutex
	file     ConfigFile
	FilePath string
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig 获取配置单例
func GetConfig() *Config {
	once.Do(func() {
		instance = NewConfig(DefaultPath)
	})
	return instance
}

// NewConfig 创建指向指定文件的配置
func NewConfig(path string) *Config {
	c := &Config{FilePath: path}
	c.file = defaultConfigFile()
	return c
}

func defaultConfigFile() ConfigFile {
	return ConfigFile{
		DefaultModel: "flash",
		LogLevel:     "info",
		Models:       getDefaultModels(),
		Fallbacks:    getDefaultFallbacks(),
		Delays:       Delays{SettleMillis: 500, FillMillis: 300},
		Marker:       Marker{Enabled: true, Color: "#43a047", SizePx: 8},
		Browser:      Browser{Headless: false, ChromeBinaryPath: findChromeBinary()},
		Server:       Server{Port: 11451, AllowedOrigins: []string{"chrome-extension://*", "http://localhost:*"}},
	}
}

// getDefaultModels 获取默认模型配置
func getDefaultModels() []ModelConfig {
	return []ModelConfig{
		{
			Name:            "flash",
			Enabled:         true,
			Backend:         BackendREST,
			BaseURL:         defaultGeminiBaseURL,
			Model:           "gemini-1.5-flash",
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
		{
			Name:            "pro",
			Enabled:         true,
			Backend:         BackendREST,
			BaseURL:         defaultGeminiBaseURL,
			Model:           "gemini-1.5-pro",
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
		{
			Name:            "sdk",
			Enabled:         false,
			Backend:         BackendGenAI,
			Model:           "gemini-2.0-flash",
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
		{
			Name:            "openai",
			Enabled:         false,
			Backend:         BackendOpenAI,
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
	}
}

// getDefaultFallbacks 默认关键词答案，只针对某一份测验的内容
func getDefaultFallbacks() []FallbackRule {
	return []FallbackRule{
		{
			Kind:     "free-text",
			Keywords: []string{"animal center", "name of the animal"},
			Answer:   "Wildlife Haven",
		},
		{
			Kind:     "drag-words",
			Keywords: []string{"looks after", "injured"},
			Answer:   `["injured","ill","looks after","injuries","well"]`,
		},
	}
}

// findChromeBinary 自动查找 Chrome 二进制文件
func findChromeBinary() string {
	var paths []string
	switch runtime.GOOS {
	case "windows":
		paths = []string{
			os.Getenv("PROGRAMFILES") + "\\Google\\Chrome\\Application\\chrome.exe",
			os.Getenv("PROGRAMFILES(X86)") + "\\Google\\Chrome\\Application\\chrome.exe",
			os.Getenv("LOCALAPPDATA") + "\\Google\\Chrome\\Application\\chrome.exe",
		}
	case "darwin":
		paths = []string{"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"}
	default:
		paths = []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
		}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(c.FilePath))
	return ext == ".yaml" || ext == ".yml"
}

// Load 加载配置文件，文件不存在时写入默认配置
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			c.file = defaultConfigFile()
			c.applyEnv()
			return c.saveInternal()
		}
		return err
	}

	file := defaultConfigFile()
	if c.isYAML() {
		err = yaml.Unmarshal(data, &file)
	} else {
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 如果配置文件中有模型配置则使用，否则使用默认
	if len(file.Models) == 0 {
		file.Models = getDefaultModels()
	}
	c.file = file
	c.applyEnv()
	return nil
}

// applyEnv 环境变量覆盖 API Key
func (c *Config) applyEnv() {
	for _, name := range []string{"BWHELPER_API_KEY", "GEMINI_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			c.file.APIKey = v
			return
		}
	}
}

// Save 保存配置文件
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveInternal()
}

// saveInternal 内部保存方法（不加锁）
func (c *Config) saveInternal() error {
	var (
		data []byte
		err  error
	)
	if c.isYAML() {
		data, err = yaml.Marshal(c.file)
	} else {
		data, err = json.MarshalIndent(c.file, "", "    ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(c.FilePath, data, 0600)
}

// Snapshot 获取配置副本
func (c *Config) Snapshot() ConfigFile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f := c.file
	f.Models = append([]ModelConfig(nil), c.file.Models...)
	f.Fallbacks = append([]FallbackRule(nil), c.file.Fallbacks...)
	f.Server.AllowedOrigins = append([]string(nil), c.file.Server.AllowedOrigins...)
	return f
}

// APIKey 获取 API Key
func (c *Config) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.APIKey
}

// GetMaskedAPIKey 获取脱敏 API Key
func (c *Config) GetMaskedAPIKey() string {
	key := c.APIKey()
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// UpdateAPIKey 更新 API Key
func (c *Config) UpdateAPIKey(key string) error {
	c.mu.Lock()
	c.file.APIKey = strings.TrimSpace(key)
	c.mu.Unlock()
	return c.Save()
}

// UpdateDefaultModel 更新默认模型
func (c *Config) UpdateDefaultModel(name string) error {
	c.mu.Lock()
	c.file.DefaultModel = name
	c.mu.Unlock()
	return c.Save()
}

// DefaultModel 获取默认模型名称
func (c *Config) DefaultModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.DefaultModel
}

// Cookie 获取抓取页面时使用的 Cookie
func (c *Config) Cookie() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.Cookie
}

// UpdateCookie 保存浏览器中读取的 Cookie
func (c *Config) UpdateCookie(cookie string) error {
	c.mu.Lock()
	c.file.Cookie = cookie
	c.mu.Unlock()
	return c.Save()
}

// LogLevel 获取日志级别
func (c *Config) LogLevel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.LogLevel
}

// GetEnabledModels 获取已启用的模型列表，未单独配置 Key 的模型使用全局 Key
func (c *Config) GetEnabledModels() []ModelConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var enabled []ModelConfig
	for _, m := range c.file.Models {
		if !m.Enabled {
			continue
		}
		if m.APIKey == "" {
			m.APIKey = c.file.APIKey
		}
		if m.APIKey == "" {
			continue
		}
		enabled = append(enabled, m)
	}
	return enabled
}

// UpdateModels 更新模型配置
func (c *Config) UpdateModels(models []ModelConfig) error {
	c.mu.Lock()
	c.file.Models = models
	c.mu.Unlock()
	return c.Save()
}

// Fallbacks 获取关键词答案表
func (c *Config) Fallbacks() []FallbackRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]FallbackRule(nil), c.file.Fallbacks...)
}

// SettleDelay 导航后等待页面稳定的时间
func (c *Config) SettleDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.file.Delays.SettleMillis) * time.Millisecond
}

// FillDelay 填写答案前的等待时间
func (c *Config) FillDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.file.Delays.FillMillis) * time.Millisecond
}

// MarkerStyle 获取标记样式
func (c *Config) MarkerStyle() Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.Marker
}

// BrowserOptions 获取浏览器配置
func (c *Config) BrowserOptions() Browser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.Browser
}

// ServerOptions 获取服务配置
func (c *Config) ServerOptions() Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.file.Server
	s.AllowedOrigins = append([]string(nil), s.AllowedOrigins...)
	return s
}

// ValidationError 配置验证错误
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidateModels 验证模型配置
func (c *Config) ValidateModels() []ValidationError {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errors []ValidationError

	hasEnabled := false
	for i, m := range c.file.Models {
		if !m.Enabled {
			continue
		}
		hasEnabled = true
		field := fmt.Sprintf("models[%d]", i)
		if m.APIKey == "" && c.file.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".api_key",
				Message: "已启用的模型 " + m.Name + " 缺少 API Key",
			})
		}
		switch m.Backend {
		case BackendREST, BackendOpenAI:
			if m.BaseURL == "" {
				errors = append(errors, ValidationError{
					Field:   field + ".base_url",
					Message: "已启用的模型 " + m.Name + " 缺少 Base URL",
				})
			}
		case BackendGenAI:
		default:
			errors = append(errors, ValidationError{
				Field:   field + ".backend",
				Message: "未知的模型后端: " + m.Backend,
			})
		}
		if m.Model == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".model",
				Message: "已启用的模型 " + m.Name + " 缺少模型名称",
			})
		}
	}

	if !hasEnabled {
		errors = append(errors, ValidationError{
			Field:   "models",
			Message: "至少需要启用一个模型",
		})
	}

	return errors
}

// ValidateFallbacks 验证关键词答案表
func (c *Config) ValidateFallbacks() []ValidationError {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errors []ValidationError
	for i, f := range c.file.Fallbacks {
		field := fmt.Sprintf("fallbacks[%d]", i)
		switch f.Kind {
		case "free-text", "multiple-choice":
		case "drag-words":
			var words []string
			if err := json.Unmarshal([]byte(f.Answer), &words); err != nil {
				errors = append(errors, ValidationError{Field: field + ".answer", Message: "拖词题答案必须是 JSON 数组"})
			}
		default:
			errors = append(errors, ValidationError{Field: field + ".kind", Message: "未知题型: " + f.Kind})
		}
		if len(f.Keywords) == 0 {
			errors = append(errors, ValidationError{Field: field + ".keywords", Message: "关键词不能为空"})
		}
	}
	return errors
}

// Validate 验证所有配置
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.ValidateModels()...)
	errors = append(errors, c.ValidateFallbacks()...)
	return errors
}

// IsReady 检查配置是否就绪
func (c *Config) IsReady() (bool, string) {
	if errs := c.Validate(); len(errs) > 0 {
		return false, errs[0].Message
	}
	return true, "就绪"
}
