package models

import (
	"gorm.io/gorm"

	"github.com/hireloop/entitlements-engine/config/database"
	"github.com/hireloop/entitlements-engine/utils"
)

const ERROR_NOT_FOUND string = "record not found"

type ApiStore struct {
	db *database.DB
}

func NewApiStore(db *database.DB) *ApiStore {
	return &ApiStore{
		db: db,
	}
}

func failedRecordResult[T any](err error) utils.Result[T] {
	result := utils.FailedResult[T](err)

	if err.Error() == gorm.ErrRecordNotFound.Error() {
		result = result.NonCapturable().NonRetryable()
	}

	return result
}
