// Package handlers 提供 VoiceFlow 对外 HTTP 接口：
//   - POST /api/agents/dispatch 触发通话调度
//   - /、/health、/healthz 存活检查
//   - /ready 依赖就绪检查
//
// 所有响应使用统一的 Response 信封。
package handlers
