package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"link-tracker/internal/model"
	"link-tracker/pkg/errcode"
	auth "link-tracker/pkg/jwt"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
)

// AuthMiddleware JWT认证中间件，只挂在需要认证的路由组上
func AuthMiddleware(jwtManager *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, errcode.Unauthorized("缺少认证令牌"))
			return
		}

		// 提取Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			abort(c, errcode.Unauthorized("认证格式错误"))
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			abort(c, errcode.Unauthorized("无效的认证令牌"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != model.RoleAdmin {
			abort(c, errcode.Forbidden("需要管理员权限"))
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(errcode.HTTPStatus(err), gin.H{"error": errcode.Message(err)})
}
