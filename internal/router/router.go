package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"takeaway/internal/config"
	"takeaway/internal/middleware"
	"takeaway/internal/service/order"
	rediskey "takeaway/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// IdempotencyHeader 客户端可选的幂等键，同一用户同一键只会下一单。
const IdempotencyHeader = "Idempotency-Key"

// OrderService 是路由依赖的下单能力；*order.Service 满足该接口。
type OrderService interface {
	Submit(ctx context.Context, requesterID int64, draft order.Draft) (order.Receipt, error)
	UserPage(ctx context.Context, userID int64, page, pageSize int) (order.Page, error)
}

// Deps 路由所需依赖。Redis 为 nil 时不启用限流与幂等。
type Deps struct {
	Orders OrderService
	DB     *gorm.DB
	Redis  *rd.Client
	Config config.AppConfig
	Log    *slog.Logger
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	if d.Log == nil {
		d.Log = slog.Default()
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/readyz", readiness(d.DB, d.Redis))

	api := r.Group("/api/order", middleware.Identity())
	submit := []gin.HandlerFunc{}
	if d.Redis != nil {
		submit = append(submit, middleware.RedisRateLimit(d.Redis, d.Config.SubmitRateLimit, d.Config.SubmitRateWindow))
	}
	submit = append(submit, submitOrder(d))
	api.POST("/submit", submit...)
	api.GET("/userPage", userPage(d.Orders))
}

// readiness 检查数据库（以及 Redis，如已配置）是否可用。
func readiness(db *gorm.DB, rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": 503, "msg": "database unavailable"})
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"code": 503, "msg": "redis unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "ready"})
	}
}

// submitOrder 是下单入口。
// 关键流程：
// 1. 解析当前用户与订单草稿
// 2. 可选幂等键：已完成直接回放结果，处理中返回 409
// 3. 调用下单服务（事务内：写订单头/明细、清空购物车、写 outbox）
// 4. 记录幂等结果，返回订单号与金额
func submitOrder(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.UserID(c)

		var req struct {
			AddressBookID int64  `json:"address_book_id" binding:"required,min=1"`
			Remark        string `json:"remark" binding:"max=100"`
			PayMethod     int    `json:"pay_method" binding:"omitempty,oneof=1 2"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		ctx := c.Request.Context()
		idemKey := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		tracked := false
		if idemKey != "" && d.Redis != nil {
			st, claimed, err := rediskey.ClaimSubmitKey(ctx, d.Redis, userID, idemKey, d.Config.IdempotencyTTL)
			switch {
			case err != nil:
				// Redis 出错时不做幂等，正常下单（降级策略）
				d.Log.Warn("idempotency claim failed", "user_id", userID, "error", err)
			case !claimed && st.Status == rediskey.SubmitSuccess:
				c.JSON(http.StatusOK, successBody(st.OrderID, st.Number, st.Amount))
				return
			case !claimed:
				c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "订单正在提交中，请勿重复提交"})
				return
			default:
				tracked = true
			}
		}

		receipt, err := d.Orders.Submit(ctx, userID, order.Draft{
			AddressBookID: req.AddressBookID,
			Remark:        req.Remark,
			PayMethod:     req.PayMethod,
		})
		// 下单本身不可取消，幂等状态的收尾也不能被请求取消打断。
		bg := context.WithoutCancel(ctx)
		if err != nil {
			if tracked {
				if rerr := rediskey.ReleaseSubmitKey(bg, d.Redis, userID, idemKey); rerr != nil {
					d.Log.Warn("idempotency release failed", "user_id", userID, "error", rerr)
				}
			}
			status, msg := submitError(err)
			c.JSON(status, gin.H{"code": status, "msg": msg})
			return
		}

		orderID := strconv.FormatUint(receipt.OrderID, 10)
		amount := receipt.Amount.StringFixed(2)
		if tracked {
			st := rediskey.SubmitState{
				Status:  rediskey.SubmitSuccess,
				OrderID: orderID,
				Number:  receipt.Number,
				Amount:  amount,
			}
			recordSubmitSuccess(bg, d, userID, idemKey, st)
		}
		c.JSON(http.StatusOK, successBody(orderID, receipt.Number, amount))
	}
}

// recordSubmitSuccess 写入幂等结果，失败重试一次；仍失败则释放键，
// 避免键在整个 TTL 内停留在 pending。订单已清空购物车，重试只会得到 400。
func recordSubmitSuccess(ctx context.Context, d Deps, userID int64, idemKey string, st rediskey.SubmitState) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = rediskey.PutSubmitState(ctx, d.Redis, userID, idemKey, st, d.Config.IdempotencyTTL); err == nil {
			return
		}
	}
	d.Log.Warn("idempotency store failed, releasing key", "user_id", userID, "order_id", st.OrderID, "error", err)
	if rerr := rediskey.ReleaseSubmitKey(ctx, d.Redis, userID, idemKey); rerr != nil {
		d.Log.Error("idempotency release failed", "user_id", userID, "order_id", st.OrderID, "error", rerr)
	}
}

func successBody(orderID, number, amount string) gin.H {
	return gin.H{
		"code": 0,
		"msg":  "下单成功",
		"data": gin.H{
			"order_id": orderID,
			"number":   number,
			"amount":   amount,
		},
	}
}

// submitError 将下单错误映射为 HTTP 状态与前端可读文案；内部错误不外泄细节。
func submitError(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, "购物车为空，不能下单"
	case errors.Is(err, order.ErrAddressNotFound):
		return http.StatusBadRequest, "收货地址不存在"
	case errors.Is(err, order.ErrUserNotFound):
		return http.StatusBadRequest, "用户不存在"
	case errors.Is(err, order.ErrSubmitInProgress):
		return http.StatusConflict, "订单正在提交中，请勿重复提交"
	case errors.Is(err, order.ErrCartChanged):
		return http.StatusConflict, "购物车已变化，请确认后重新提交"
	default:
		return http.StatusInternalServerError, "下单失败，请稍后重试"
	}
}

// userPage 分页查询当前用户的历史订单。
func userPage(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.UserID(c)

		page, err := queryInt(c, "page", 1)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "page 必须是整数"})
			return
		}
		pageSize, err := queryInt(c, "pageSize", 10)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "pageSize 必须是整数"})
			return
		}

		p, err := svc.UserPage(c.Request.Context(), userID, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "查询订单失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
