package models

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

var createUsageRecordQuery = regexp.QuoteMeta(
	`INSERT INTO "usage_records" ("id","holder_type","holder_id","feature_key","period_start","period_end","used","extra_allowance","last_reset_at","created_at","updated_at") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) ON CONFLICT DO NOTHING`,
)

var fetchUsageRecordQuery = regexp.QuoteMeta(
	`SELECT * FROM "usage_records" WHERE holder_type = $1 AND holder_id = $2 AND feature_key = $3 AND period_start = $4 AND period_end = $5 LIMIT $6`,
)

var incrementUsageQuery = regexp.QuoteMeta(
	`UPDATE "usage_records" SET "used"=used + $1 WHERE holder_type = $2 AND holder_id = $3 AND feature_key = $4 AND period_start = $5 AND period_end = $6 AND used + $7 <= $8 + extra_allowance RETURNING *`,
)

var usageRecordColumns = []string{
	"id", "holder_type", "holder_id", "feature_key", "period_start", "period_end",
	"used", "extra_allowance", "last_reset_at", "created_at", "updated_at",
}

func usageRecordRow(id string, holder Holder, featureKey string, used int64, extra int64, periodStart, periodEnd time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(usageRecordColumns).
		AddRow(id, holder.Type, holder.ID, featureKey, periodStart, periodEnd, used, extra, nil, periodStart, periodStart)
}

func TestGetOrCreateUsageRecord(t *testing.T) {
	holder := Holder{Type: HolderTypeUser, ID: "user123"}
	periodStart := time.Now()
	periodEnd := periodStart.AddDate(1, 0, 0)

	t.Run("should insert a fresh record with zero usage", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectExec(createUsageRecordQuery).
			WithArgs(
				sqlmock.AnyArg(), holder.Type, holder.ID, "job_postings",
				periodStart, periodEnd, int64(0), int64(0),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		result := store.GetOrCreateUsageRecord(holder, "job_postings", periodStart, periodEnd)

		assert.True(t, result.Success())

		rec := result.Value()
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, int64(0), rec.Used)
		assert.Equal(t, int64(0), rec.ExtraAllowance)
	})

	t.Run("should read back the existing record when the insert conflicts", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectExec(createUsageRecordQuery).
			WithArgs(
				sqlmock.AnyArg(), holder.Type, holder.ID, "job_postings",
				periodStart, periodEnd, int64(0), int64(0),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 0))

		rows := usageRecordRow("rec123", holder, "job_postings", 7, 0, periodStart, periodEnd)
		mock.ExpectQuery(fetchUsageRecordQuery).
			WithArgs(holder.Type, holder.ID, "job_postings", periodStart, periodEnd, 1).
			WillReturnRows(rows)

		result := store.GetOrCreateUsageRecord(holder, "job_postings", periodStart, periodEnd)

		assert.True(t, result.Success())
		assert.Equal(t, "rec123", result.Value().ID)
		assert.Equal(t, int64(7), result.Value().Used)
	})

	t.Run("should handle database connection error", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		dbError := errors.New("database connection failed")

		mock.ExpectExec(createUsageRecordQuery).
			WillReturnError(dbError)

		result := store.GetOrCreateUsageRecord(holder, "job_postings", periodStart, periodEnd)

		assert.False(t, result.Success())
		assert.Equal(t, dbError, result.Error())
		assert.True(t, result.IsCapturable())
		assert.True(t, result.IsRetryable())
	})
}

func TestIncrementUsage(t *testing.T) {
	holder := Holder{Type: HolderTypeUser, ID: "user123"}
	periodStart := time.Now()
	periodEnd := periodStart.AddDate(1, 0, 0)

	t.Run("should increment and return the updated record", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		rows := usageRecordRow("rec123", holder, "job_postings", 3, 0, periodStart, periodEnd)
		mock.ExpectQuery(incrementUsageQuery).
			WithArgs(
				int64(2), holder.Type, holder.ID, "job_postings",
				periodStart, periodEnd, int64(2), int64(10),
			).
			WillReturnRows(rows)

		result := store.IncrementUsage(holder, "job_postings", periodStart, periodEnd, 2, 10)

		assert.True(t, result.Success())
		assert.Equal(t, int64(3), result.Value().Used)
	})

	t.Run("should reject the commit when the cap would be exceeded", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectQuery(incrementUsageQuery).
			WithArgs(
				int64(5), holder.Type, holder.ID, "job_postings",
				periodStart, periodEnd, int64(5), int64(10),
			).
			WillReturnRows(sqlmock.NewRows(usageRecordColumns))

		result := store.IncrementUsage(holder, "job_postings", periodStart, periodEnd, 5, 10)

		assert.False(t, result.Success())
		assert.Equal(t, ErrUsageCapReached, result.Error())
		assert.False(t, result.IsCapturable())
		assert.False(t, result.IsRetryable())
	})

	t.Run("should handle database connection error", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		dbError := errors.New("database connection failed")

		mock.ExpectQuery(incrementUsageQuery).
			WillReturnError(dbError)

		result := store.IncrementUsage(holder, "job_postings", periodStart, periodEnd, 1, 10)

		assert.False(t, result.Success())
		assert.Equal(t, dbError, result.Error())
		assert.True(t, result.IsRetryable())
	})
}

func TestResetUsage(t *testing.T) {
	resetUsageQuery := regexp.QuoteMeta(
		`UPDATE "usage_records" SET "last_reset_at"=$1,"used"=$2 WHERE holder_type = $3 AND holder_id = $4 AND feature_key = $5 AND period_start = $6 AND period_end = $7 RETURNING *`,
	)

	holder := Holder{Type: HolderTypeUser, ID: "user123"}
	periodStart := time.Now()
	periodEnd := periodStart.AddDate(1, 0, 0)

	t.Run("should zero the counter and keep the extra allowance", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		now := time.Now()
		rows := sqlmock.NewRows(usageRecordColumns).
			AddRow("rec123", holder.Type, holder.ID, "job_postings", periodStart, periodEnd, 0, 5, now, periodStart, now)

		mock.ExpectQuery(resetUsageQuery).
			WithArgs(now, 0, holder.Type, holder.ID, "job_postings", periodStart, periodEnd).
			WillReturnRows(rows)

		result := store.ResetUsage(holder, "job_postings", periodStart, periodEnd, now)

		assert.True(t, result.Success())

		rec := result.Value()
		assert.Equal(t, int64(0), rec.Used)
		assert.Equal(t, int64(5), rec.ExtraAllowance)
		assert.True(t, rec.LastResetAt.Valid)
	})

	t.Run("should return record not found when no record exists for the period", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		now := time.Now()

		mock.ExpectQuery(resetUsageQuery).
			WithArgs(now, 0, holder.Type, holder.ID, "job_postings", periodStart, periodEnd).
			WillReturnRows(sqlmock.NewRows(usageRecordColumns))

		result := store.ResetUsage(holder, "job_postings", periodStart, periodEnd, now)

		assert.False(t, result.Success())
		assert.Equal(t, gorm.ErrRecordNotFound, result.Error())
	})
}

func TestGrantExtraAllowance(t *testing.T) {
	grantQuery := regexp.QuoteMeta(
		`UPDATE "usage_records" SET "extra_allowance"=extra_allowance + $1 WHERE holder_type = $2 AND holder_id = $3 AND feature_key = $4 AND period_start = $5 AND period_end = $6 RETURNING *`,
	)

	holder := Holder{Type: HolderTypeOrg, ID: "org456"}
	periodStart := time.Now()
	periodEnd := periodStart.AddDate(1, 0, 0)

	t.Run("should add the grant on top of the plan cap", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		rows := usageRecordRow("rec123", holder, "cv_search", 10, 5, periodStart, periodEnd)
		mock.ExpectQuery(grantQuery).
			WithArgs(int64(5), holder.Type, holder.ID, "cv_search", periodStart, periodEnd).
			WillReturnRows(rows)

		result := store.GrantExtraAllowance(holder, "cv_search", periodStart, periodEnd, 5)

		assert.True(t, result.Success())

		rec := result.Value()
		assert.Equal(t, int64(5), rec.ExtraAllowance)
		assert.Equal(t, int64(15), rec.TotalAllowed(10))
		assert.Equal(t, int64(5), rec.Remaining(10))
	})

	t.Run("should return record not found when no record exists", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		mock.ExpectQuery(grantQuery).
			WithArgs(int64(5), holder.Type, holder.ID, "cv_search", periodStart, periodEnd).
			WillReturnRows(sqlmock.NewRows(usageRecordColumns))

		result := store.GrantExtraAllowance(holder, "cv_search", periodStart, periodEnd, 5)

		assert.False(t, result.Success())
		assert.Equal(t, gorm.ErrRecordNotFound, result.Error())
	})
}

func TestResetEndedPeriodUsage(t *testing.T) {
	bulkResetQuery := regexp.QuoteMeta(
		`UPDATE "usage_records" SET "last_reset_at"=$1,"used"=$2 WHERE period_end <= $3 AND used <> 0`,
	)

	t.Run("should report the number of reset records", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		now := time.Now()

		mock.ExpectExec(bulkResetQuery).
			WithArgs(now, 0, now).
			WillReturnResult(sqlmock.NewResult(0, 4))

		result := store.ResetEndedPeriodUsage(now)

		assert.True(t, result.Success())
		assert.Equal(t, int64(4), result.Value())
	})

	t.Run("should match nothing on a second run", func(t *testing.T) {
		store, mock, cleanup := setupApiStore(t)
		defer cleanup()

		now := time.Now()

		mock.ExpectExec(bulkResetQuery).
			WithArgs(now, 0, now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		result := store.ResetEndedPeriodUsage(now)

		assert.True(t, result.Success())
		assert.Equal(t, int64(0), result.Value())
	})
}
