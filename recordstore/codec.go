package recordstore

import (
	"encoding/json"
	"fmt"
	"time"

	"strreconcile.dev/core/model"
)

const dateLayout = "2006-01-02"
const timeLayout = time.RFC3339

func encodeReservation(r *model.Reservation) map[string]interface{} {
	f := map[string]interface{}{
		"UID":                     r.UID,
		"Feed URL":                r.FeedURL,
		"Property":                []string{r.PropertyID},
		"Check-in Date":           r.CheckIn.String(),
		"Check-out Date":          r.CheckOut.String(),
		"Entry Type":              string(r.EntryType),
		"Service Type":            string(r.ServiceType),
		"Status":                  string(r.Status),
		"Same-day Turnover":       r.SameDayTurnover,
		"Overlapping Dates":       r.OverlappingDates,
		"Owner Arriving":          r.OwnerArriving,
		"Long Term Guest":         r.LongTermGuest,
		"Supplier Info":           r.SupplierInfo,
		"Missing Count":           r.MissingCount,
		"Job ID":                  r.JobID,
		"Appointment ID":          r.AppointmentID,
		"Job Status":              string(r.JobStatus),
		"Custom Instructions":     r.CustomInstructions,
		"Service Line Description": r.ServiceLineDescription,
		"Sync Status":             string(r.SyncStatus),
		"Sync Details":            r.SyncDetails,
		"Schedule Sync Details":   r.ScheduleSyncDetails,
	}
	if !r.MissingSince.IsZero() {
		f["Missing Since"] = r.MissingSince.Format(timeLayout)
	}
	if !r.LastSeen.IsZero() {
		f["Last Seen"] = r.LastSeen.Format(timeLayout)
	}
	if !r.ScheduledServiceTime.IsZero() {
		f["Scheduled Service Time"] = r.ScheduledServiceTime.Format(timeLayout)
	}
	if !r.FinalServiceTime.IsZero() {
		f["Final Service Time"] = r.FinalServiceTime.Format(timeLayout)
	}
	if !r.LastUpdated.IsZero() {
		f["Last Updated"] = r.LastUpdated.Format(timeLayout)
	}
	return f
}

func decodeReservation(rec recordEnvelope) (*model.Reservation, error) {
	f := rec.Fields
	r := &model.Reservation{RecordID: rec.ID}

	r.UID, _ = f["UID"].(string)
	r.FeedURL, _ = f["Feed URL"].(string)
	r.PropertyID = firstLinked(f["Property"])
	r.EntryType = model.EntryType(stringField(f, "Entry Type"))
	r.ServiceType = model.ServiceType(stringField(f, "Service Type"))
	r.Status = model.Status(stringField(f, "Status"))
	r.SameDayTurnover = boolField(f, "Same-day Turnover")
	r.OverlappingDates = boolField(f, "Overlapping Dates")
	r.OwnerArriving = boolField(f, "Owner Arriving")
	r.LongTermGuest = boolField(f, "Long Term Guest")
	r.SupplierInfo = stringField(f, "Supplier Info")
	r.MissingCount = intField(f, "Missing Count")
	r.JobID = stringField(f, "Job ID")
	r.AppointmentID = stringField(f, "Appointment ID")
	r.JobStatus = model.JobStatus(stringField(f, "Job Status"))
	r.CustomInstructions = stringField(f, "Custom Instructions")
	r.ServiceLineDescription = stringField(f, "Service Line Description")
	r.SyncStatus = model.SyncStatus(stringField(f, "Sync Status"))
	r.SyncDetails = stringField(f, "Sync Details")
	r.ScheduleSyncDetails = stringField(f, "Schedule Sync Details")

	var err error
	if d := stringField(f, "Check-in Date"); d != "" {
		if r.CheckIn, err = model.ParseDate(d, dateLayout); err != nil {
			return nil, fmt.Errorf("check-in date: %w", err)
		}
	}
	if d := stringField(f, "Check-out Date"); d != "" {
		if r.CheckOut, err = model.ParseDate(d, dateLayout); err != nil {
			return nil, fmt.Errorf("check-out date: %w", err)
		}
	}

	r.MissingSince = timeField(f, "Missing Since")
	r.LastSeen = timeField(f, "Last Seen")
	r.ScheduledServiceTime = timeField(f, "Scheduled Service Time")
	r.FinalServiceTime = timeField(f, "Final Service Time")
	r.LastUpdated = timeField(f, "Last Updated")

	return r, nil
}

func decodeProperty(rec recordEnvelope) *model.Property {
	f := rec.Fields
	p := &model.Property{
		ID:             rec.ID,
		Name:           stringField(f, "Name"),
		OwnerFullName:  stringField(f, "Owner Full Name"),
		CustomerID:     stringField(f, "Customer ID"),
		AddressID:      stringField(f, "Address ID"),
		TimeZone:       stringField(f, "Time Zone"),
		ListingNumber:  stringField(f, "Listing Number"),
		FeedURL:        stringField(f, "Feed URL"),
		JobTemplateIDs: serviceTypeMapField(f, "Job Template IDs"),
		JobTypeIDs:     serviceTypeMapField(f, "Job Type IDs"),
	}
	return p
}

// serviceTypeMapField decodes a JSON object long-text field (e.g.
// {"Turnover":"tpl_123","Inspection":"tpl_456"}) into a ServiceType-keyed
// map. The record store has no native map field type (spec §6.1's field
// type list), so per-property job template/type ids are stored as a JSON
// blob in a long-text column, the same encoding recordstore.automations.go
// uses for Automations.Statistics.
func serviceTypeMapField(f map[string]interface{}, key string) map[model.ServiceType]string {
	raw, _ := f[key].(string)
	if raw == "" {
		return nil
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil
	}
	out := make(map[model.ServiceType]string, len(decoded))
	for k, v := range decoded {
		out[model.ServiceType(k)] = v
	}
	return out
}

func stringField(f map[string]interface{}, key string) string {
	v, _ := f[key].(string)
	return v
}

func boolField(f map[string]interface{}, key string) bool {
	v, _ := f[key].(bool)
	return v
}

func intField(f map[string]interface{}, key string) int {
	switch v := f[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func timeField(f map[string]interface{}, key string) time.Time {
	s, _ := f[key].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstLinked(v interface{}) string {
	list, ok := v.([]interface{})
	if ok {
		if len(list) == 0 {
			return ""
		}
		s, _ := list[0].(string)
		return s
	}
	strs, ok := v.([]string)
	if ok && len(strs) > 0 {
		return strs[0]
	}
	return ""
}
