package sniper

import (
	"testing"
	"time"

	"github.com/late-build/fathom/internal/strategy"
)

func TestDefaults(t *testing.T) {
	s := &Sniper{}
	if err := s.Defaults(); err != nil {
		t.Fatalf("Defaults() error: %v", err)
	}
	if s.BasePositionUSD != 50 {
		t.Errorf("BasePositionUSD 默认值应为 50，实际 %.0f", s.BasePositionUSD)
	}
	if s.MinScore != 60 {
		t.Errorf("MinScore 默认值应为 60，实际 %d", s.MinScore)
	}
	if s.ExitOnDevSell == nil || !*s.ExitOnDevSell {
		t.Errorf("ExitOnDevSell 默认应开启")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("默认配置应通过校验: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Sniper)
	}{
		{"负的基础仓位", func(s *Sniper) { s.BasePositionUSD = -1 }},
		{"超界的最低评分", func(s *Sniper) { s.MinScore = 101 }},
		{"止损比例为 1", func(s *Sniper) { s.StopLossPct = 1 }},
		{"负的止盈", func(s *Sniper) { s.TakeProfitPct = -0.1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Sniper{}
			_ = s.Defaults()
			tc.mutate(s)
			if err := s.Validate(); err == nil {
				t.Errorf("应校验失败")
			}
		})
	}
}

func TestExitRulesConversion(t *testing.T) {
	s := &Sniper{}
	_ = s.Defaults()
	s.MaxHoldSeconds = 90

	rules := s.ExitRules()
	if rules.MaxHold != 90*time.Second {
		t.Errorf("MaxHold 应为 90s，实际 %v", rules.MaxHold)
	}
	if !rules.ExitOnDevSell {
		t.Errorf("ExitOnDevSell 应透传")
	}
	if rules.TakeProfitPct != 0.50 || rules.StopLossPct != 0.20 {
		t.Errorf("止盈止损应透传: tp=%.2f sl=%.2f", rules.TakeProfitPct, rules.StopLossPct)
	}
}

func TestRegistryBuild(t *testing.T) {
	s, err := strategy.Build(ID, map[string]any{
		"basePositionUsd": 25.0,
		"minScore":        70.0,
		"exitOnDevSell":   false,
	})
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	sn := s.(*Sniper)
	if sn.BasePositionUSD != 25 || sn.MinScore != 70 {
		t.Errorf("配置未生效: base=%.0f minScore=%d", sn.BasePositionUSD, sn.MinScore)
	}
	if *sn.ExitOnDevSell {
		t.Errorf("显式关闭 exitOnDevSell 不应被默认值覆盖")
	}
}

func TestRegistryBuildRejectsUnknownKey(t *testing.T) {
	if _, err := strategy.Build(ID, map[string]any{"noSuchKnob": 1}); err == nil {
		t.Errorf("未知配置键应报错")
	}
}
