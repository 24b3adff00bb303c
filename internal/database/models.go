package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示可登录后台的管理员账号。
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
}

// Course 是证书模板的关联目标。课程本身的管理在 LMS 主服务，
// 这里只保留签发证书所需的最小字段。
type Course struct {
	gorm.Model
	Title       string  `gorm:"size:255"`
	CreditHours float64 `gorm:"default:0"`
	CreditType  string  `gorm:"size:64"`
}

// 模板状态流转：draft -> published -> archived。
const (
	TemplateStatusDraft     = "draft"
	TemplateStatusPublished = "published"
	TemplateStatusArchived  = "archived"
)

// CertificateTemplate 表示一份证书模板。
// Design 是 JSONB 存储的设计稿线格式（canvas + elements），
// 由 internal/design 的编解码器负责读写。
type CertificateTemplate struct {
	gorm.Model
	Name                string         `gorm:"size:255"`
	Description         string         `gorm:"size:1024"`
	CourseID            *uint          `gorm:"index"`
	Course              *Course        `gorm:"constraint:OnDelete:SET NULL"`
	Status              string         `gorm:"size:32;default:'draft'"`
	Design              datatypes.JSON `gorm:"type:jsonb"`
	BackgroundObjectKey string         `gorm:"size:512"`
	PreviewImageURL     string         `gorm:"size:1024"`
	CreatedBy           uint           `gorm:"index"`
}

// 单份证书的渲染状态。
const (
	CertificateStatusPending   = "pending"
	CertificateStatusRendering = "rendering"
	CertificateStatusCompleted = "completed"
	CertificateStatusFailed    = "failed"
)

// IssuedCertificate 是按模板给某个学员签发的一份证书。
// 动态字段的真实值存在这里，渲染时替换进设计稿。
// 日期按展示格式的字符串存储：证书上印的就是这串文字，
// 渲染时原样替换进设计稿，不做时区换算。
type IssuedCertificate struct {
	gorm.Model
	TemplateID       uint                `gorm:"index"`
	Template         CertificateTemplate `gorm:"constraint:OnDelete:CASCADE"`
	RecipientName    string              `gorm:"size:255"`
	CourseTitle      string              `gorm:"size:255"`
	CompletionDate   string              `gorm:"size:64"`
	CredentialNumber string              `gorm:"uniqueIndex;size:64"`
	IssuerName       string              `gorm:"size:255"`
	CreditHours      float64             `gorm:"default:0"`
	CreditType       string              `gorm:"size:64"`
	AccreditingBody  string              `gorm:"size:255"`
	IssueDate        string              `gorm:"size:64"`
	Status           string              `gorm:"size:32;default:'pending'"`
	ImageObjectKey   string              `gorm:"size:512"`
	PdfObjectKey     string              `gorm:"size:512"`
}
