package handlers

import (
	"errors"
	"reflect"
	"strings"

	apperrors "Resilix/pkg/errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// useJSONFieldNames 让 gin 的校验错误使用 json 字段名
func useJSONFieldNames() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// bindError 把绑定/校验错误转成字段级 RejectedInput
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Rejected(map[string][]string{"non_field_errors": {err.Error()}})
	}
	fields := map[string][]string{}
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
	}
	return apperrors.Rejected(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	case "min":
		return "Ensure this field has at least " + fe.Param() + " characters."
	default:
		return "Invalid value."
	}
}

func rejected(field, msg string) error {
	return apperrors.Rejected(map[string][]string{field: {msg}})
}
