package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nsxzhou1114/shop-api/internal/database"
	"github.com/spf13/cobra"
)

// databaseCmd 数据库管理命令
var databaseCmd = &cobra.Command{
	Use:   "db",
	Short: "数据库管理命令",
	Long:  `数据库管理相关的命令，包括初始化表结构和检查连接状态`,
}

// initTablesCmd 初始化数据库表命令
// 示例：./shop-api db init
var initTablesCmd = &cobra.Command{
	Use:   "init",
	Short: "初始化用户表或索引",
	Long:  `MySQL 下自动迁移用户表，MongoDB 下创建邮箱唯一索引`,
	Run: func(cmd *cobra.Command, args []string) {
		initializeTables()
	},
}

// statusCmd 检查存储连接命令
// 示例：./shop-api db status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "检查存储与Redis连接",
	Run: func(cmd *cobra.Command, args []string) {
		checkStatus()
	},
}

func init() {
	databaseCmd.AddCommand(initTablesCmd)
	databaseCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(databaseCmd)
}

// initializeTables 初始化数据库表
func initializeTables() {
	ctx := context.Background()
	sys := mustInit(ctx)
	defer sys.Close(ctx)

	switch sys.cfg.Database.Driver {
	case "mysql":
		fmt.Println("MySQL用户表初始化成功")
	case "mongo":
		fmt.Println("MongoDB索引创建成功")
	default:
		fmt.Printf("存储驱动 %s 无需初始化\n", sys.cfg.Database.Driver)
	}
}

// checkStatus 检查存储与Redis连接
func checkStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sys := mustInit(ctx)
	defer sys.Close(context.Background())

	failed := false
	if _, err := sys.users.ListUsers(ctx, 1); err != nil {
		fmt.Printf("存储(%s): 不可用 %v\n", sys.cfg.Database.Driver, err)
		failed = true
	} else {
		fmt.Printf("存储(%s): 正常\n", sys.cfg.Database.Driver)
	}

	if !sys.cfg.Redis.Enabled {
		fmt.Println("Redis: 未启用，接口不限流")
	} else {
		rdb, err := database.NewRedis(ctx, &sys.cfg.Redis, sys.log.Sugar())
		if err != nil {
			fmt.Printf("Redis: 不可用 %v\n", err)
			failed = true
		} else {
			fmt.Println("Redis: 正常")
			_ = rdb.Close()
		}
	}

	if failed {
		sys.Close(context.Background())
		os.Exit(1)
	}
}
