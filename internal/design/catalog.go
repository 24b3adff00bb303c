package design

// FieldKey 是动态字段的枚举键。渲染服务只识别这组固定键，
// 序列化的设计稿中不允许出现枚举之外的 field_key。
type FieldKey string

const (
	FieldRecipientName    FieldKey = "recipient_name"
	FieldCourseTitle      FieldKey = "course_title"
	FieldCompletionDate   FieldKey = "completion_date"
	FieldCredentialNumber FieldKey = "credential_number"
	FieldIssuerName       FieldKey = "issuer_name"
	FieldCreditHours      FieldKey = "credit_hours"
	FieldCreditType       FieldKey = "credit_type"
	FieldAccreditingBody  FieldKey = "accrediting_body"
	FieldIssueDate        FieldKey = "issue_date"
)

// MergeField 描述一个动态字段：展示名与所见即所得预览用的示例值。
type MergeField struct {
	Key    FieldKey `json:"key"`
	Label  string   `json:"label"`
	Sample string   `json:"sample"`
}

// Catalog 把动态字段键映射到标签与示例值。运行时只读。
type Catalog map[FieldKey]MergeField

// DefaultCatalog 返回内置的动态字段目录。
// 顺序由 CatalogFields 保证，map 本身仅用于查找。
func DefaultCatalog() Catalog {
	catalog := make(Catalog, len(catalogFields))
	for _, f := range catalogFields {
		catalog[f.Key] = f
	}
	return catalog
}

// CatalogFields 按工具栏展示顺序返回全部动态字段。
func CatalogFields() []MergeField {
	fields := make([]MergeField, len(catalogFields))
	copy(fields, catalogFields)
	return fields
}

var catalogFields = []MergeField{
	{Key: FieldRecipientName, Label: "学员姓名", Sample: "Jordan Smith"},
	{Key: FieldCourseTitle, Label: "课程名称", Sample: "Advanced Cardiac Life Support"},
	{Key: FieldCompletionDate, Label: "结业日期", Sample: "June 12, 2026"},
	{Key: FieldCredentialNumber, Label: "证书编号", Sample: "CERT-2026-00417"},
	{Key: FieldIssuerName, Label: "签发机构", Sample: "Northfield Training Institute"},
	{Key: FieldCreditHours, Label: "学时", Sample: "8.0"},
	{Key: FieldCreditType, Label: "学时类型", Sample: "CE Credit"},
	{Key: FieldAccreditingBody, Label: "认证机构", Sample: "National Education Board"},
	{Key: FieldIssueDate, Label: "签发日期", Sample: "June 15, 2026"},
}

// Valid 判断 key 是否在目录枚举内。
func (k FieldKey) Valid() bool {
	for _, f := range catalogFields {
		if f.Key == k {
			return true
		}
	}
	return false
}
