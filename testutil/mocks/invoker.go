// Package mocks 提供测试用的脚本化后端实现。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/alterflow/types"
)

// InvokerCall 记录一次 Invoke 调用。
type InvokerCall struct {
	AlterID string
	Prompt  string
	At      time.Time
}

// Invoker 是脚本化的 llm.Invoker 实现：
// 可按 Alter 配置固定输出、注入错误（前 N 次或永久）、模拟延迟，
// 并记录全部调用供断言。对并发调用安全。
type Invoker struct {
	mu sync.Mutex

	// Responses 按 Alter ID 给定输出；缺省输出为 "response from <id>"
	Responses map[string]string
	// Errors 按 Alter ID 注入错误
	Errors map[string]error
	// FailFirst 注入的错误只在前 N 次调用生效，之后恢复成功
	FailFirst map[string]int
	// Delay 每次调用的统一延迟
	Delay time.Duration
	// DelayFor 按 Alter ID 覆盖延迟
	DelayFor map[string]time.Duration

	calls     []InvokerCall
	callCount map[string]int
}

// NewInvoker 创建脚本化后端。
func NewInvoker() *Invoker {
	return &Invoker{
		Responses: make(map[string]string),
		Errors:    make(map[string]error),
		FailFirst: make(map[string]int),
		DelayFor:  make(map[string]time.Duration),
		callCount: make(map[string]int),
	}
}

func (m *Invoker) Name() string { return "mock" }

// Invoke 实现 llm.Invoker。延迟期间尊重 ctx 取消。
func (m *Invoker) Invoke(ctx context.Context, alter types.Alter, prompt string, timeout time.Duration) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, InvokerCall{AlterID: alter.ID, Prompt: prompt, At: time.Now()})
	m.callCount[alter.ID]++
	count := m.callCount[alter.ID]
	delay := m.Delay
	if d, ok := m.DelayFor[alter.ID]; ok {
		delay = d
	}
	injected := m.Errors[alter.ID]
	if limit, limited := m.FailFirst[alter.ID]; limited && count > limit {
		injected = nil
	}
	response, ok := m.Responses[alter.ID]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if injected != nil {
		return "", injected
	}
	if !ok {
		response = "response from " + alter.ID
	}
	return response, nil
}

// Calls 返回到目前为止的调用记录副本。
func (m *Invoker) Calls() []InvokerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]InvokerCall(nil), m.calls...)
}

// CallCount 返回某 Alter 被调用的次数。
func (m *Invoker) CallCount(alterID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[alterID]
}
