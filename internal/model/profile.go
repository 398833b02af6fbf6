package model

// 角色
const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
	RoleClient     = "client"
)

// Profile 用户资料，对应 profiles
type Profile struct {
	ID           string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email        string  `gorm:"type:varchar(255);not null"                     json:"email"`
	FullName     string  `gorm:"type:varchar(100)"                              json:"full_name"`
	Phone        *string `gorm:"type:varchar(30)"                               json:"phone,omitempty"`
	Role         string  `gorm:"type:varchar(20);not null;default:'technician'" json:"role"`
	PasswordHash string  `gorm:"type:varchar(255);not null"                     json:"-"`
	IsActive     bool    `gorm:"not null;default:true"                          json:"is_active"`
	BaseModel
}

// TableName 指定表名
func (Profile) TableName() string { return "profiles" }

// ValidRole 判断角色取值
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTechnician, RoleClient:
		return true
	}
	return false
}
