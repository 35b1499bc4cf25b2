// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开会话数据库，并提供基于 GORM 的连接池管理、
健康检查与事务重试。

# 概述

Open 根据 config.DatabaseConfig 选择 PostgreSQL、MySQL 或 SQLite 方言。
SQLite 使用 gorm.io/driver/sqlite（database/sql 驱动名 sqlite3），
迁移包的 modernc 驱动占用 sqlite 驱动名，两者可链接进同一二进制。
打开 GORM 实例后交给 PoolManager 统一管理连接池参数
与生命周期。session 包的仓储在此之上读写 video_session 表。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close() 等生命周期方法。
  - PoolConfig：最大空闲连接数、最大打开连接数、连接最大生命周期
    与健康检查间隔。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 方言选择：Dialector 按驱动名返回 postgres / mysql / sqlite 方言。
  - 健康检查：HealthCheckInterval > 0 时后台定时探活，Close 后退出。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败、锁超时、断连与 SQLITE_BUSY 做指数退避重试。
*/
package database
