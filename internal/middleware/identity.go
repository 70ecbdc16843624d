package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDHeader 由网关在完成鉴权后写入的用户 ID。
const UserIDHeader = "X-User-Id"

const userIDKey = "user_id"

// Identity 从请求头解析当前用户，缺失或非法时返回 401。
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": 401,
				"msg":  "未登录或用户标识无效",
			})
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// UserID 取出 Identity 写入的用户 ID。
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
