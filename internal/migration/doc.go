// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理会话数据库 video_session 表的 Schema 迁移，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，SQLite 使用纯 Go 的
modernc 驱动，无需 cgo。

# 核心接口与类型

  - Migrator：Up/Down/Force/Version/Status/Info/Close。
  - DefaultMigrator：基于 golang-migrate 的默认实现。
  - Config / DatabaseType：迁移配置与数据库类型。
  - CLI：为 visualflow migrate 子命令提供格式化输出。

# 主要能力

  - NewMigratorFromDatabaseConfig 从 config.DatabaseConfig 创建迁移器。
  - ParseDatabaseType 解析类型字符串，BuildDatabaseURL 按方言拼接连接 URL。
*/
package migration
