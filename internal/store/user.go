package store

import (
	"context"

	"takeaway/internal/model"

	"gorm.io/gorm"
)

type userRepo struct {
	db *gorm.DB
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

type addressRepo struct {
	db *gorm.DB
}

func (r *addressRepo) GetByID(ctx context.Context, id int64) (*model.AddressBook, error) {
	var a model.AddressBook
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}
