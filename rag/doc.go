// Package rag 实现检索增强管线：文档分块、向量索引与上下文组装。
//
// 管线分四层：
//   - Chunker 将文档切为固定大小的重叠块（字符窗口，token 计数仅作元数据）
//   - FlatIndex 扁平向量索引，支持 cosine/l2 距离与 JSON 快照持久化
//   - ChunkStore 基于 GORM/SQLite 的块行存储，按文档 ID 幂等替换
//   - Pipeline 编排 Ingest 与 Retrieve，按字符预算组装检索上下文
package rag
