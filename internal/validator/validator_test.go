package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testSubscribeRequest struct {
	SyncGroup string `json:"sync_group" validate:"required,syncgroup"`
}

type testQueryRequest struct {
	RequestID string `json:"request_id" validate:"required,uuid"`
	SQL       string `json:"sql" validate:"required,min=1,max=8192"`
}

func TestValidateStruct_Success(t *testing.T) {
	req := testQueryRequest{RequestID: "123e4567-e89b-12d3-a456-426614174000", SQL: "SELECT 1"}
	assert.NoError(t, ValidateStruct(req))
}

func TestValidateStruct_RequiredFields(t *testing.T) {
	assert.Error(t, ValidateStruct(testQueryRequest{}))
}

func TestValidateSyncGroup_Valid(t *testing.T) {
	for _, sg := range []string{"public.NORMAL", "world_1.STATIC", "a.B"} {
		errs := ValidateRequest(testSubscribeRequest{SyncGroup: sg})
		assert.Nil(t, errs, "sync group should be valid: %s", sg)
	}
}

func TestValidateSyncGroup_Invalid(t *testing.T) {
	for _, sg := range []string{"NoDot", "public.", ".NORMAL", "", "public NORMAL"} {
		errs := ValidateRequest(testSubscribeRequest{SyncGroup: sg})
		assert.NotNil(t, errs, "sync group should be invalid: %q", sg)
		assert.Contains(t, errs, "syncgroup")
	}
}

func TestValidateUUID_Invalid(t *testing.T) {
	for _, id := range []string{"not-a-uuid", "123456", ""} {
		errs := ValidateRequest(testQueryRequest{RequestID: id, SQL: "SELECT 1"})
		assert.NotNil(t, errs, "uuid should be invalid: %q", id)
		assert.Contains(t, errs, "requestid")
	}
}

func TestValidateMinMax_Strings(t *testing.T) {
	tooLong := make([]byte, 8193)
	errs := ValidateRequest(testQueryRequest{RequestID: "123e4567-e89b-12d3-a456-426614174000", SQL: string(tooLong)})
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "sql")
}

func TestFormatValidationError_NotGeneric(t *testing.T) {
	errs := ValidateRequest(testSubscribeRequest{SyncGroup: "bad"})
	assert.NotNil(t, errs)
	for field, msg := range errs {
		assert.NotEmpty(t, msg, "error message should not be empty for field: %s", field)
		assert.NotContains(t, msg, "validation failed:", "should use the custom error message")
	}
}
