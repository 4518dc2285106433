package models

// EmergencyContact 紧急联系人（对应 emergency_contacts 表，接入服务只读）
type EmergencyContact struct {
	ContactID string `json:"contact_id" db:"contact_id"`
	UserID    string `json:"user_id" db:"user_id"`
	Name      string `json:"name" db:"name"`
	Phone     string `json:"phone" db:"phone"`
	Relation  string `json:"relation" db:"relation"`
	IsPrimary bool   `json:"is_primary" db:"is_primary"`
	Priority  int    `json:"priority" db:"priority"` // 同级排序，小值优先
}
