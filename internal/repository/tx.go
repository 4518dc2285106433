package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// executor 语句执行抽象：*sql.DB 和 *sql.Tx 都满足
// 仓库方法通过它同时支持事务内和事务外执行
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RunInTransaction 在单个事务作用域内执行 fn
// fn 正常返回则提交；返回错误则回滚并把错误原样带出。事务作用域是
// 每事件一个，不同设备的并发写入互不串行
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
