package strategy

import (
	"fmt"
	"sync"
)

// Factory 策略工厂：从原始配置构造一个策略实例
// conf 是 YAML 解析出的该策略配置段（map 形式），由工厂负责严格解析
type Factory func(conf map[string]any) (Strategy, error)

var (
	registry   = make(map[string]Factory)
	registryMu sync.RWMutex
)

// Register 注册策略工厂
// 策略包在 init() 中调用；重复注册是编程错误，直接 panic
func Register(id string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[id]; exists {
		panic(fmt.Errorf("strategy %s already registered", id))
	}
	registry[id] = factory
}

// Build 按 ID 构造策略实例
func Build(id string, conf map[string]any) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[id]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("strategy %s not registered", id)
	}
	s, err := factory(conf)
	if err != nil {
		return nil, fmt.Errorf("build strategy %s: %w", id, err)
	}

	// bbgo 风格的可选生命周期：默认值 -> 校验
	if d, ok := s.(Defaulter); ok {
		if err := d.Defaults(); err != nil {
			return nil, fmt.Errorf("strategy %s defaults: %w", id, err)
		}
	}
	if v, ok := s.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("strategy %s validate: %w", id, err)
		}
	}
	return s, nil
}

// Registered 返回所有已注册的策略 ID（测试与 CLI 帮助用）
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}
