package rbac

// 权限常量
const (
	PermissionCreateScan   = "scan:create"
	PermissionCreateScrape = "scrape:create"
	PermissionReadTask     = "task:read"
	PermissionReadEmail    = "email:read"
	PermissionReapTasks    = "task:reap"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionCreateScan,
		PermissionCreateScrape,
		PermissionReadTask,
		PermissionReadEmail,
	},
	RoleAdmin: {
		PermissionCreateScan,
		PermissionCreateScrape,
		PermissionReadTask,
		PermissionReadEmail,
		PermissionReapTasks,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID int, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
