package order

import (
	"errors"
	"fmt"
)

var (
	// 用户可自行修正的错误，不产生任何写入。
	ErrEmptyCart        = errors.New("shopping cart is empty")
	ErrAddressNotFound  = errors.New("address book entry not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrSubmitInProgress = errors.New("another submission for this user is in progress")
	ErrCartChanged      = errors.New("shopping cart changed during submission")

	// 内部错误：事务整体回滚。
	ErrPersistence        = errors.New("order persistence failed")
	ErrIdentityGeneration = errors.New("order id generation failed")
)

// IsUserCorrectable 报告 err 是否属于用户可修正的错误（对外 4xx）。
func IsUserCorrectable(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrAddressNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSubmitInProgress) ||
		errors.Is(err, ErrCartChanged)
}

// classify 保证返回的错误一定落在上面某一类；未归类的按持久化失败处理。
func classify(err error) error {
	if err == nil || IsUserCorrectable(err) ||
		errors.Is(err, ErrPersistence) || errors.Is(err, ErrIdentityGeneration) {
		return err
	}
	return persistence(err)
}

func persistence(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
