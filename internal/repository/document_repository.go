// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"study-indexer-go/internal/model"
)

// DocumentRepository 定义了对 documents 底账表的数据操作接口。
type DocumentRepository interface {
	Upsert(record *model.DocumentRecord) error
	FindByDocID(collection, docID string) (*model.DocumentRecord, error)
	FindAllByCollection(collection string) ([]*model.DocumentRecord, error)
	FindByDocIDPrefix(collection, prefix string) ([]*model.DocumentRecord, error)
	DeleteByDocID(collection, docID string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Upsert 按 (collection, doc_id) 写入或更新底账记录。
func (r *documentRepository) Upsert(record *model.DocumentRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"embeddable_text", "metadata", "model_version", "updated_at",
		}),
	}).Create(record).Error
}

// FindByDocID 按集合与文档 ID 查找底账记录，不存在时返回 nil 而不是错误。
func (r *documentRepository) FindByDocID(collection, docID string) (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	err := r.db.Where("collection = ? AND doc_id = ?", collection, docID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindAllByCollection 返回集合的全部底账记录，供全量重建任务遍历。
func (r *documentRepository) FindAllByCollection(collection string) ([]*model.DocumentRecord, error) {
	var records []*model.DocumentRecord
	err := r.db.Where("collection = ?", collection).Order("doc_id asc").Find(&records).Error
	return records, err
}

// FindByDocIDPrefix 按文档 ID 前缀查找底账记录，
// 导入管道用它清理重导入后多出来的旧分块。
func (r *documentRepository) FindByDocIDPrefix(collection, prefix string) ([]*model.DocumentRecord, error) {
	var records []*model.DocumentRecord
	err := r.db.Where("collection = ? AND doc_id LIKE ?", collection, prefix+"%").
		Order("doc_id asc").Find(&records).Error
	return records, err
}

// DeleteByDocID 删除底账记录，记录不存在时不报错（幂等）。
func (r *documentRepository) DeleteByDocID(collection, docID string) error {
	return r.db.Where("collection = ? AND doc_id = ?", collection, docID).
		Delete(&model.DocumentRecord{}).Error
}
