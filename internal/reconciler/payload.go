package reconciler

import (
	"fmt"
	"reflect"
	"strings"

	"assignment-reconciliation-service/internal/models"
	"assignment-reconciliation-service/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// SavedRoute is a route as written back on save, with its status flags
type SavedRoute struct {
	models.DeliveryRoute
	Status           models.RouteStatus `json:"status,omitempty"`
	CollectionStatus string             `json:"collectionStatus,omitempty"`
	DropDriver       *models.DriverRef  `json:"dropDriver,omitempty"`
}

// SavePayload is the JSON document written back for an order
type SavePayload struct {
	OrderID            string              `json:"orderId"`
	ProductAssignments []models.Assignment `json:"productAssignments"`
	DeliveryRoutes     []SavedRoute        `json:"deliveryRoutes"`
	SummaryData        Summary             `json:"summaryData"`
}

// rowCheck is the validated view of a row that must name an entity
type rowCheck struct {
	RowID      string `json:"rowId" validate:"required"`
	EntityType string `json:"entityType" validate:"required,oneof=farmer supplier thirdParty"`
	EntityID   string `json:"entityId" validate:"required_without=EntityName"`
	EntityName string `json:"entityName" validate:"required_without=EntityID"`
	Place      string `json:"place" validate:"omitempty,oneof=farmerPlace ownPlace"`
}

// checkRow validates a primary row and converts failures to application
// errors, one per failing field
func checkRow(row AssignmentRow) []*errors.ReconcilerError {
	a := row.Assignment
	check := rowCheck{
		RowID:      row.ID,
		EntityType: a.EntityType.String(),
		EntityID:   strings.TrimSpace(a.EntityID),
		EntityName: strings.TrimSpace(a.EntityName),
		Place:      string(a.Place),
	}

	err := validate.Struct(check)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []*errors.ReconcilerError{
			errors.InternalError(errors.CodeUnexpectedError, "row validation", err),
		}
	}

	var out []*errors.ReconcilerError
	for _, fe := range fieldErrs {
		field := fmt.Sprintf("productAssignments[%s].%s", row.ID, fe.Field())
		var issue *errors.ReconcilerError

		switch fe.Tag() {
		case "required", "required_without":
			issue = errors.ValidationError(errors.CodeMissingField, field, fe.Value(), nil)
		case "oneof":
			code := errors.CodeOutOfRange
			if fe.Field() == "entityType" {
				code = errors.CodeInvalidEntity
			}
			issue = errors.ValidationError(code, field, fe.Value(), nil).
				WithContext("allowed", fe.Param())
		default:
			issue = errors.ValidationError(errors.CodeOutOfRange, field, fe.Value(), nil)
		}
		out = append(out, issue.WithContext("order_item_id", row.OrderItemID))
	}

	// required_without reports both fields when both are empty
	return dedupeMissingEntity(out)
}

func dedupeMissingEntity(issues []*errors.ReconcilerError) []*errors.ReconcilerError {
	out := issues[:0]
	seenEntity := false
	for _, issue := range issues {
		field, _ := issue.Context["field"].(string)
		if issue.Code == errors.CodeMissingField &&
			(strings.HasSuffix(field, ".entityId") || strings.HasSuffix(field, ".entityName")) {
			if seenEntity {
				continue
			}
			seenEntity = true
		}
		out = append(out, issue)
	}
	return out
}
