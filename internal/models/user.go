package models

// User roles.
const (
	RoleCustomer = "customer"
	RoleDelivery = "delivery"
	RoleAdmin    = "admin"
)

// User is an account that can act on orders: a customer, delivery staff or an admin.
// Account management lives outside this service; rows are seeded or synced in.
type User struct {
	BaseModel
	Name     string `json:"name"`
	Phone    string `gorm:"uniqueIndex" json:"phone"`
	Email    string `json:"email"`
	Role     string `gorm:"index;size:16" json:"role"`
	IsActive bool   `json:"is_active"`
}

// IsDeliveryStaff reports whether the user may be assigned deliveries.
func (u *User) IsDeliveryStaff() bool {
	return u.Role == RoleDelivery && u.IsActive
}
