/*
包 config 提供 alterflow 的统一配置加载：默认值、YAML 文件与环境变量三级
覆盖，以及 Team/Alter 注册表的启动期校验。

# 概述

配置是静态的：进程启动时加载一次，运行期间只读，不支持热更新。
注册表（Teams/Alters）、阶段指令、调度阈值与紧急关键词全部来自配置，
加载时一次性校验并在首个错误处拒绝，而不是等到运行中途才失败。

# 核心类型

  - Config：完整配置结构，含 Registry、Phases、Orchestrator、Retrieval、
    Embedding、LLM、Moderator、Database、Redis、Log、Telemetry 各节。
  - Loader：Builder 风格加载器，WithConfigPath / WithEnvPrefix /
    WithValidator 链式配置。
  - DefaultConfig：生产级默认值，默认注册表仅含一个通才 Team。

# 环境变量覆盖

结构体字段通过 env 标签映射，前缀默认 ALTERFLOW，嵌套结构体逐级拼接，
例如 ALTERFLOW_ORCHESTRATOR_MAX_PARALLEL=8。
*/
package config
