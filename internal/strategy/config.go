package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeConfig 把 YAML 解出的配置段严格反序列化到策略结构体。
// 走 JSON 往返（bbgo 的 ReUnmarshal 做法），并拒绝未知键：
// 拼错的配置项直接报错，而不是静默用默认值。
func DecodeConfig(conf map[string]any, target any) error {
	if conf == nil {
		return nil
	}
	data, err := json.Marshal(normalize(conf))
	if err != nil {
		return fmt.Errorf("marshal strategy config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("invalid strategy config: %w", err)
	}
	return nil
}

// normalize 把 yaml.v3 解出的 map[any]any 递归转成 map[string]any，
// 否则 json.Marshal 会失败
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
