// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ContentImportTask represents an asynchronous course-content import job.
// 对象指向 MinIO 中的讲义/PDF 源文件，消费端下载、抽取文本、分块后
// 逐块摄取进 course_content 集合。
type ContentImportTask struct {
	ObjectName string   `json:"object_name"`
	FileName   string   `json:"file_name"`
	CourseID   string   `json:"course_id"`
	WeekID     string   `json:"week_id"`
	LectureID  string   `json:"lecture_id"`
	Topics     []string `json:"topics"`
	// RequestedBy 记录发起导入的管理员，摄取走其请求者上下文。
	RequestedBy uint `json:"requested_by"`
}
