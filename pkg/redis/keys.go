package redis

import "fmt"

// NodeSeqKey 雪花节点号扫描起点计数器。
const NodeSeqKey = "takeaway:idgen:node_seq"

// NodeSlotKey 某个雪花节点号的占用标记，值为持有进程的 token。
func NodeSlotKey(nodeID int64) string {
	return fmt.Sprintf("takeaway:idgen:node:%d", nodeID)
}

// UserSubmitLockKey 标记某用户“正在下单”的占位锁。
func UserSubmitLockKey(userID int64) string {
	return fmt.Sprintf("takeaway:submit:lock:%d", userID)
}

// SubmitIdempotencyKey 将客户端幂等键映射到下单结果。
func SubmitIdempotencyKey(userID int64, idemKey string) string {
	return fmt.Sprintf("takeaway:submit:idem:%d:%s", userID, idemKey)
}

// RateLimitUserKey 下单接口按用户限流。
func RateLimitUserKey(userID int64) string {
	return fmt.Sprintf("rate_limit:submit:user:%d", userID)
}

// RateLimitIPKey 取不到用户时按 IP 降级限流。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:submit:ip:%s", ip)
}
