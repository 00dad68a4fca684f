// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 alterflow 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 遥测禁用时全程 noop，不连接任何外部服务。
package telemetry
