package apiclient

import (
	"github.com/go-playground/validator/v10"

	"presensi/internal/meeting"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(checkOutAfterCheckIn, meeting.AttendanceRecord{})
	return v
}

// checkOutAfterCheckIn rejects records whose check-out precedes check-in.
func checkOutAfterCheckIn(sl validator.StructLevel) {
	r := sl.Current().Interface().(meeting.AttendanceRecord)
	if r.CheckIn != nil && r.CheckOut != nil && r.CheckOut.Before(*r.CheckIn) {
		sl.ReportError(r.CheckOut, "CheckOut", "check_out_time", "gtefield", "CheckIn")
	}
}
