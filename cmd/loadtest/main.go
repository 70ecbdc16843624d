package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"takeaway/internal/config"
	"takeaway/internal/model"
	"takeaway/internal/store"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	seed := flag.Bool("seed", true, "seed users/addresses/carts into DB_DRIVER/DB_DSN before test")
	firstUser := flag.Int64("first-user", 100000, "first user id used by the test")

	nUsers := flag.Int("users", 200, "distinct users, one submit each")
	concurrency := flag.Int("c", 50, "max concurrency")
	sameUserReqs := flag.Int("same-user", 50, "concurrent submits from one user")
	flag.Parse()

	client := &http.Client{Timeout: 15 * time.Second}
	sameUser := *firstUser + int64(*nUsers)

	var addrs map[int64]int64
	if *seed {
		// 先写入购物车数据，再发并发请求。
		var err error
		addrs, err = seedCarts(*firstUser, *nUsers+1)
		if err != nil {
			panic(fmt.Sprintf("seed failed: %v", err))
		}
		fmt.Printf("seed ok: users %d..%d\n", *firstUser, sameUser)
	}

	// 1) 不同用户并发下单：应全部成功且订单号互不相同
	fmt.Printf("start distinct users test: users=%d concurrency=%d\n", *nUsers, *concurrency)
	results := runSubmit(client, *baseURL, *nUsers, *concurrency, func(i int) (int64, int64) {
		u := *firstUser + int64(i)
		return u, addrs[u]
	})
	printSummary("distinct_users", results)
	fmt.Printf("  distinct order numbers -> %d\n", distinctNumbers(results))

	// 2) 同一用户并发下单：应只有一单成功，其余 400/409/429
	fmt.Printf("\nstart same user test: user=%d requests=%d\n", sameUser, *sameUserReqs)
	results2 := runSubmit(client, *baseURL, *sameUserReqs, *sameUserReqs, func(int) (int64, int64) {
		return sameUser, addrs[sameUser]
	})
	printSummary("same_user", results2)

	total, err := userOrderTotal(client, *baseURL, sameUser)
	if err != nil {
		fmt.Println("order check err:", err)
	} else {
		fmt.Println("orders for same user:", total)
	}
}

// seedCarts 为 [first, first+n) 每个用户写入用户、地址与两行购物车，返回 用户→地址。
func seedCarts(first int64, n int) (map[int64]int64, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, err
	}

	addrs := make(map[int64]int64, n)
	err = db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < n; i++ {
			uid := first + int64(i)
			user := model.User{ID: uid, Name: "load-" + strconv.FormatInt(uid, 10), Status: 1}
			if err := tx.Save(&user).Error; err != nil {
				return err
			}
			detail := "No." + strconv.Itoa(i)
			addr := model.AddressBook{UserID: uid, Consignee: user.Name, Phone: "13800000000", Detail: &detail}
			if err := tx.Create(&addr).Error; err != nil {
				return err
			}
			addrs[uid] = addr.ID
			dish := int64(1)
			lines := []model.ShoppingCart{
				{UserID: uid, DishID: &dish, Number: 2, Amount: decimal.RequireFromString("12.50"), Name: "dish-1"},
				{UserID: uid, DishID: &dish, Number: 1, Amount: decimal.RequireFromString("8.00"), Name: "dish-1"},
			}
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return addrs, err
}

func runSubmit(client *http.Client, baseURL string, total, concurrency int, who func(i int) (userID, addrID int64)) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			userID, addrID := who(idx)
			results[idx] = submitOnce(client, baseURL, userID, addrID)
		}(i)
	}

	wg.Wait()
	return results
}

func submitOnce(client *http.Client, baseURL string, userID, addrID int64) Result {
	b, _ := json.Marshal(map[string]any{"address_book_id": addrID, "pay_method": 1})
	url := fmt.Sprintf("%s/api/order/submit", baseURL)
	httpReq, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-Id", strconv.FormatInt(userID, 10))

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, count[code])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// distinctNumbers 统计成功响应中不同订单号的数量。
func distinctNumbers(results []Result) int {
	seen := map[string]struct{}{}
	for _, r := range results {
		if r.Status != http.StatusOK {
			continue
		}
		var out struct {
			Data struct {
				Number string `json:"number"`
			} `json:"data"`
		}
		if json.Unmarshal([]byte(r.Body), &out) == nil && out.Data.Number != "" {
			seen[out.Data.Number] = struct{}{}
		}
	}
	return len(seen)
}

// userOrderTotal 查询某用户的订单总数，用于压测后校验是否重复下单。
func userOrderTotal(client *http.Client, baseURL string, userID int64) (int64, error) {
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/api/order/userPage?page=1&pageSize=1", nil)
	req.Header.Set("X-User-Id", strconv.FormatInt(userID, 10))
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Total int64 `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Total, nil
}
