package alerting

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"Resilix/internal/geo"
	"Resilix/internal/models"
	apperrors "Resilix/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// CreateAlertInput POST /alerts/ 请求体；user_location 为旧客户端使用的 location 别名
type CreateAlertInput struct {
	AlertType      string             `json:"alert_type" validate:"required,notblank,max=100"`
	Description    string             `json:"description" validate:"required,notblank"`
	Location       *geo.LocationInput `json:"location,omitempty"`
	UserLocation   *geo.LocationInput `json:"user_location,omitempty"`
	BroadcastToAll bool               `json:"broadcast_to_all"`
}

// ValidAlert 校验通过的输入，Location 尚未持久化
type ValidAlert struct {
	AlertType      string
	Description    string
	Location       *models.Location
	BroadcastToAll bool
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		validate = v
	})
	return validate
}

// Validate 纯函数，失败时返回带字段信息的 RejectedInput
func Validate(in CreateAlertInput) (*ValidAlert, error) {
	fields := map[string][]string{}

	if err := validatorInstance().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, apperrors.Rejected(map[string][]string{"non_field_errors": {err.Error()}})
		}
		for _, fe := range verrs {
			fields[fe.Field()] = append(fields[fe.Field()], message(fe))
		}
	}

	raw := in.Location
	if raw == nil {
		raw = in.UserLocation
	}
	loc, err := geo.Validate(raw)
	if err != nil {
		if e, ok := apperrors.As(err); ok {
			for k, v := range e.Fields {
				fields[k] = append(fields[k], v...)
			}
		} else {
			fields["location"] = append(fields["location"], err.Error())
		}
	}

	if len(fields) > 0 {
		return nil, apperrors.Rejected(fields)
	}
	return &ValidAlert{
		AlertType:      strings.TrimSpace(in.AlertType),
		Description:    in.Description,
		Location:       loc,
		BroadcastToAll: in.BroadcastToAll,
	}, nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "notblank":
		return "This field may not be blank."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	default:
		return "Invalid value."
	}
}
