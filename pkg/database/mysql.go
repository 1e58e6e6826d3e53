package database

import (
	"time"

	"study-indexer-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// NewMySQL 建立 MySQL 连接并返回 *gorm.DB。
// 连接实例由 main 显式注入各组件，不再挂在包级全局变量上，
// 测试可以用内存实现替换仓储层。
func NewMySQL(dsn string) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("MySQL database connected successfully")
	return db
}
