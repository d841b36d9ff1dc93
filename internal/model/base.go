package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Base 基础模型，ID 使用 24 位十六进制 ObjectID 字符串，MongoDB 与 MySQL 共用
type Base struct {
	ID        string    `gorm:"primaryKey;type:varchar(24)" bson:"_id" json:"_id"`
	CreatedAt time.Time `gorm:"column:created_at" bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" bson:"updated_at" json:"updatedAt"`
}

// NewID 生成新的记录ID
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID 是否为合法的记录ID
func ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}
