package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/uma-arai/barber-booking/internal/model"
)

// CreateRequest は予約作成の入力です。Date と Time は正規化前の入力文字列を受け付けます
type CreateRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=50"`
	Date       string `json:"date" validate:"required"`
	Time       string `json:"time" validate:"required"`
	Service    string `json:"service" validate:"required"`
	CustomerID string `json:"customer_id" validate:"omitempty,max=64"`
	Phone      string `json:"phone" validate:"omitempty,max=32"`
	Notes      string `json:"notes" validate:"omitempty,max=500"`
}

func (r CreateRequest) trimmed() CreateRequest {
	return CreateRequest{
		Name:       strings.TrimSpace(r.Name),
		Date:       strings.TrimSpace(r.Date),
		Time:       strings.TrimSpace(r.Time),
		Service:    strings.TrimSpace(r.Service),
		CustomerID: strings.TrimSpace(r.CustomerID),
		Phone:      strings.TrimSpace(r.Phone),
		Notes:      strings.TrimSpace(r.Notes),
	}
}

// Changes は更新可能な項目です。nil の項目は変更しません
type Changes struct {
	Status *model.Status
	Phone  *string
	Notes  *string
}

// ChangesFromMap は緩い形式の変更指定を Changes に変換します
// 未知の項目や変更できない項目 (id, date など) は黙って無視します
func ChangesFromMap(fields map[string]any) (Changes, error) {
	var c Changes
	for key, value := range fields {
		switch strings.ToLower(key) {
		case "status":
			s, ok := value.(string)
			if !ok {
				return Changes{}, &model.ValidationError{Field: "status", Value: fmt.Sprint(value), Reason: "must be a string"}
			}
			st := model.Status(strings.ToLower(strings.TrimSpace(s)))
			c.Status = &st
		case "phone":
			s, ok := value.(string)
			if !ok {
				return Changes{}, &model.ValidationError{Field: "phone", Value: fmt.Sprint(value), Reason: "must be a string"}
			}
			c.Phone = &s
		case "notes":
			s, ok := value.(string)
			if !ok {
				return Changes{}, &model.ValidationError{Field: "notes", Value: fmt.Sprint(value), Reason: "must be a string"}
			}
			c.Notes = &s
		}
	}
	return c, nil
}

var reasons = map[string]string{
	"required": "is required",
	"min":      "is too short",
	"max":      "is too long",
}

// toValidationError は validator のエラーを model.ValidationError に変換します
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	reason, ok := reasons[fe.Tag()]
	if !ok {
		reason = "failed " + fe.Tag() + " check"
	}
	if fe.Param() != "" {
		reason = fmt.Sprintf("%s (%s %s)", reason, fe.Tag(), fe.Param())
	}
	return &model.ValidationError{Field: strings.ToLower(fe.Field()), Value: fmt.Sprint(fe.Value()), Reason: reason}
}
