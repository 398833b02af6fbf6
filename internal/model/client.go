package model

// 客户状态
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)

// Client 客户，对应 clients
type Client struct {
	ID            string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name          string  `gorm:"type:varchar(200);not null"                     json:"name"`
	ContactPerson *string `gorm:"type:varchar(100)"                              json:"contact_person,omitempty"`
	Email         *string `gorm:"type:varchar(255)"                              json:"email,omitempty"`
	Phone         *string `gorm:"type:varchar(30)"                               json:"phone,omitempty"`
	Address       *string `gorm:"type:varchar(500)"                              json:"address,omitempty"`
	Industry      *string `gorm:"type:varchar(100)"                              json:"industry,omitempty"`
	Status        string  `gorm:"type:varchar(20);not null;default:'active'"     json:"status"`
	SoftDeleteModel
}

// TableName 指定表名
func (Client) TableName() string { return "clients" }
