package dto

import (
	"regexp"

	"ikaze-payments/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// rwPhoneRe matches Rwandan MSISDNs in international format: 2507XXXXXXXX,
// with or without a leading plus.
var rwPhoneRe = regexp.MustCompile(`^\+?2507[0-9]{8}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("rw_phone", validateRwandanPhone)
		_ = v.RegisterValidation("payment_method", validatePaymentMethod)
		_ = v.RegisterValidation("decimal_amount", validateDecimalAmount)
	}
}

func validateRwandanPhone(fl validator.FieldLevel) bool {
	return rwPhoneRe.MatchString(fl.Field().String())
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	switch domain.PaymentMethod(fl.Field().String()) {
	case domain.MethodMTN, domain.MethodAirtel, domain.MethodBank, domain.MethodCrypto, domain.MethodWallet:
		return true
	}
	return false
}

// validateDecimalAmount accepts a positive decimal string. Amounts travel as
// strings end to end so float rounding never touches money.
func validateDecimalAmount(fl validator.FieldLevel) bool {
	var raw string
	switch v := fl.Field().Interface().(type) {
	case string:
		raw = v
	default:
		return false
	}
	d, err := decimal.NewFromString(raw)
	return err == nil && d.IsPositive()
}
