package dto

// ── 用户资料模块 DTO ──

// CreateProfileRequest 创建用户
type CreateProfileRequest struct {
	Email    string  `json:"email"     binding:"required,email,max=255"`
	FullName string  `json:"full_name" binding:"required,min=1,max=100"`
	Phone    *string `json:"phone"     binding:"omitempty,max=30"`
	Role     string  `json:"role"      binding:"required,oneof=admin technician client"`
	Password string  `json:"password"  binding:"required,min=8,max=64"`
}

// UpdateProfileRequest 更新用户资料（仅更新非 nil 字段）
type UpdateProfileRequest struct {
	Email    *string `json:"email"     binding:"omitempty,email,max=255"`
	FullName *string `json:"full_name" binding:"omitempty,min=1,max=100"`
	Phone    *string `json:"phone"     binding:"omitempty,max=30"`
	IsActive *bool   `json:"is_active"`
}

// AssignRoleRequest 分配角色
type AssignRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin technician client"`
}

// ProfileListRequest 用户列表查询
type ProfileListRequest struct {
	PaginationRequest
	Role    string `form:"role"    binding:"omitempty,oneof=admin technician client"`
	Keyword string `form:"keyword"`
	Active  *bool  `form:"active"`
}

// ProfileResponse 用户信息（脱敏）
type ProfileResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name"`
	Phone     *string `json:"phone,omitempty"`
	Role      string  `json:"role"`
	IsActive  bool    `json:"is_active"`
	CreatedAt string  `json:"created_at"`
}
