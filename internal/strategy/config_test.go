package strategy

import (
	"testing"
)

type demoConfig struct {
	Size    float64        `json:"size"`
	Name    string         `json:"name"`
	Nested  map[string]int `json:"nested"`
	Enabled *bool          `json:"enabled"`
}

func TestDecodeConfig(t *testing.T) {
	var c demoConfig
	err := DecodeConfig(map[string]any{
		"size":    12.5,
		"name":    "demo",
		"nested":  map[string]any{"a": 1},
		"enabled": false,
	}, &c)
	if err != nil {
		t.Fatalf("DecodeConfig 失败: %v", err)
	}
	if c.Size != 12.5 || c.Name != "demo" || c.Nested["a"] != 1 {
		t.Errorf("解码结果错误: %+v", c)
	}
	if c.Enabled == nil || *c.Enabled {
		t.Errorf("显式 false 应覆盖指针字段")
	}
}

func TestDecodeConfigNilIsNoop(t *testing.T) {
	c := demoConfig{Size: 3}
	if err := DecodeConfig(nil, &c); err != nil {
		t.Fatalf("nil 配置段不应报错: %v", err)
	}
	if c.Size != 3 {
		t.Errorf("nil 配置段不应改动目标")
	}
}

func TestDecodeConfigUnknownKey(t *testing.T) {
	var c demoConfig
	if err := DecodeConfig(map[string]any{"sizee": 1}, &c); err == nil {
		t.Errorf("拼错的配置键应报错而不是静默忽略")
	}
}

func TestDecodeConfigNormalizesYAMLMaps(t *testing.T) {
	// yaml.v3 在嵌套结构里可能产出 map[any]any
	var c demoConfig
	err := DecodeConfig(map[string]any{
		"nested": map[any]any{"a": 2},
	}, &c)
	if err != nil {
		t.Fatalf("map[any]any 应被归一化: %v", err)
	}
	if c.Nested["a"] != 2 {
		t.Errorf("嵌套值丢失: %+v", c.Nested)
	}
}
