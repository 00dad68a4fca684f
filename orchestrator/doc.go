// Package orchestrator 实现多 Alter 审议的编排引擎。
//
// 一次运行的流程：紧急关键词检测 → Team Assignment → 可选检索 →
// 阶段状态机（Brainstorm → CriticalReview → SelfVerify → Vote）→
// 最终合成。阶段内的 Alter 调用受 MaxParallel 约束并发执行，
// 结果写入预分配槽位，Transcript 顺序恒等于声明顺序。
//
// 自适应调度器在每次阶段切换前基于已收集的运行指标做纯同步决策；
// 跨运行指标通过显式注入的 MetricsStore 读写，没有环境全局态。
package orchestrator
