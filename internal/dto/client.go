package dto

// ── 客户模块 DTO ──

// CreateClientRequest 创建客户
type CreateClientRequest struct {
	Name          string  `json:"name"           binding:"required,min=1,max=200"`
	ContactPerson *string `json:"contact_person" binding:"omitempty,max=100"`
	Email         *string `json:"email"          binding:"omitempty,email,max=255"`
	Phone         *string `json:"phone"          binding:"omitempty,max=30"`
	Address       *string `json:"address"        binding:"omitempty,max=500"`
	Industry      *string `json:"industry"       binding:"omitempty,max=100"`
	Status        string  `json:"status"         binding:"omitempty,oneof=active inactive"`
}

// UpdateClientRequest 更新客户（仅更新非 nil 字段）
type UpdateClientRequest struct {
	Name          *string `json:"name"           binding:"omitempty,min=1,max=200"`
	ContactPerson *string `json:"contact_person" binding:"omitempty,max=100"`
	Email         *string `json:"email"          binding:"omitempty,email,max=255"`
	Phone         *string `json:"phone"          binding:"omitempty,max=30"`
	Address       *string `json:"address"        binding:"omitempty,max=500"`
	Industry      *string `json:"industry"       binding:"omitempty,max=100"`
	Status        *string `json:"status"         binding:"omitempty,oneof=active inactive"`
}

// ClientListRequest 客户列表查询
type ClientListRequest struct {
	PaginationRequest
	Status  string `form:"status"  binding:"omitempty,oneof=active inactive"`
	Keyword string `form:"keyword"`
}

// ClientResponse 客户信息
type ClientResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ContactPerson *string `json:"contact_person,omitempty"`
	Email         *string `json:"email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Address       *string `json:"address,omitempty"`
	Industry      *string `json:"industry,omitempty"`
	Status        string  `json:"status"`
	DeviceCount   int64   `json:"device_count"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}
