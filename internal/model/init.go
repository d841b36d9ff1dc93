package model

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// 需要自动迁移的模型列表
var models = []interface{}{
	&User{},
}

// InitTables 初始化数据库表
func InitTables(db *gorm.DB) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("自动迁移数据库表失败: %w", err)
	}
	return nil
}

// EnsureIndexes 创建 MongoDB 索引，邮箱唯一
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(User{}.CollectionName()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: FieldEmail, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_email"),
	})
	if err != nil {
		return fmt.Errorf("创建用户邮箱索引失败: %w", err)
	}
	return nil
}
