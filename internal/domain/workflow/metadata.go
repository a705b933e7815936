package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metadata is the caller-owned payload attached to an instance. Each
// category has its own variant; categories without one use GenericMetadata.
type Metadata interface {
	Category() Category
	SubjectEmployeeID() string
	isMetadata()
}

type LeaveMetadata struct {
	EmployeeID  string  `json:"employeeId"`
	LeaveTypeID string  `json:"leaveTypeId"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Days        float64 `json:"days"`
}

func (LeaveMetadata) Category() Category          { return CategoryLeaveRequest }
func (m LeaveMetadata) SubjectEmployeeID() string { return m.EmployeeID }
func (LeaveMetadata) isMetadata()                 {}

type PromotionMetadata struct {
	EmployeeID     string `json:"employeeId"`
	FromPositionID string `json:"fromPositionId"`
	ToPositionID   string `json:"toPositionId"`
	EffectiveDate  string `json:"effectiveDate"`
}

func (PromotionMetadata) Category() Category          { return CategoryPromotion }
func (m PromotionMetadata) SubjectEmployeeID() string { return m.EmployeeID }
func (PromotionMetadata) isMetadata()                 {}

type TransferMetadata struct {
	EmployeeID       string `json:"employeeId"`
	FromDepartmentID string `json:"fromDepartmentId"`
	ToDepartmentID   string `json:"toDepartmentId"`
	EffectiveDate    string `json:"effectiveDate"`
}

func (TransferMetadata) Category() Category          { return CategoryTransfer }
func (m TransferMetadata) SubjectEmployeeID() string { return m.EmployeeID }
func (TransferMetadata) isMetadata()                 {}

type TimesheetMetadata struct {
	CompanyID      string `json:"companyId"`
	FinalizationID string `json:"finalizationId"`
	PeriodStart    string `json:"periodStart"`
	PeriodEnd      string `json:"periodEnd"`
}

func (TimesheetMetadata) Category() Category        { return CategoryTimesheet }
func (TimesheetMetadata) SubjectEmployeeID() string { return "" }
func (TimesheetMetadata) isMetadata()               {}

type GenericMetadata struct {
	Kind       Category          `json:"-"`
	Subject    string            `json:"subjectEmployeeId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (m GenericMetadata) Category() Category        { return m.Kind }
func (m GenericMetadata) SubjectEmployeeID() string { return m.Subject }
func (GenericMetadata) isMetadata()                 {}

// DecodeMetadata selects the variant for category and unmarshals raw into
// it. Typed variants reject fields they do not declare. Empty input yields
// the zero value of the variant.
func DecodeMetadata(category Category, raw []byte) (Metadata, error) {
	empty := len(raw) == 0 || string(raw) == "null"
	switch category {
	case CategoryLeaveRequest:
		return decodeVariant[LeaveMetadata](raw, empty, "leave")
	case CategoryPromotion:
		return decodeVariant[PromotionMetadata](raw, empty, "promotion")
	case CategoryTransfer:
		return decodeVariant[TransferMetadata](raw, empty, "transfer")
	case CategoryTimesheet:
		return decodeVariant[TimesheetMetadata](raw, empty, "timesheet")
	default:
		m := GenericMetadata{Kind: category}
		if !empty {
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode %s metadata: %w", category, err)
			}
		}
		return m, nil
	}
}

func decodeVariant[M Metadata](raw []byte, empty bool, name string) (Metadata, error) {
	var m M
	if empty {
		return m, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", name, err)
	}
	return m, nil
}

func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
