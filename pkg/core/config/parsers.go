package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileProvider 读取本地文件的 koanf.Provider
type fileProvider string

// ReadBytes 返回文件内容
func (f fileProvider) ReadBytes() ([]byte, error) {
	return os.ReadFile(string(f))
}

// Read 不支持，文件内容需要经过解析器
func (f fileProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("file provider does not support Read")
}

// yamlParser YAML 解析器
type yamlParser struct{}

func (yamlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (yamlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(m)
}

// tomlParser TOML 解析器
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return toml.Marshal(m)
}

// jsonParser JSON 解析器
type jsonParser struct{}

func (jsonParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (jsonParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return json.Marshal(m)
}

// parserFor 根据文件扩展名选择解析器
func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlParser{}, nil
	case ".toml":
		return tomlParser{}, nil
	case ".json":
		return jsonParser{}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// compile-time interface check
var (
	_ koanf.Provider = fileProvider("")
	_ koanf.Parser   = yamlParser{}
	_ koanf.Parser   = tomlParser{}
	_ koanf.Parser   = jsonParser{}
)
