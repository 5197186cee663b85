package models

import (
	"strings"
	"time"
)

// completionLayouts are the spellings of KamPurnDate found in office data.
var completionLayouts = []string{"02-01-2006", "02/01/2006", "02.01.2006", "2006-01-02"}

// WorkRecord is one row of an office's SMS schedule (SendSms_tbl).
type WorkRecord struct {
	WorkID           string `json:"workId"`
	WorkName         string `json:"workName"`
	CompletionDate   string `json:"completionDate"`
	EngineerName     string `json:"engineerName"`
	EngineerMobile   string `json:"engineerMobile"`
	DeputyName       string `json:"deputyName"`
	DeputyMobile     string `json:"deputyMobile"`
	ContractorName   string `json:"contractorName"`
	ContractorMobile string `json:"contractorMobile"`
	Subdivision      string `json:"subdivision,omitempty"`
}

// Recipients returns the non-empty mobile numbers of engineer, deputy
// engineer and contractor, in that order.
func (w WorkRecord) Recipients() []string {
	out := make([]string, 0, 3)
	for _, m := range []string{w.EngineerMobile, w.DeputyMobile, w.ContractorMobile} {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// DueDate parses CompletionDate as a calendar date in loc. Timestamps keep
// only their date part. ok is false for free text and for impossible dates
// such as 45-13-2024 or 31-02-2024.
func (w WorkRecord) DueDate(loc *time.Location) (due time.Time, ok bool) {
	raw := strings.TrimSpace(w.CompletionDate)
	if len(raw) > 10 && (raw[10] == ' ' || raw[10] == 'T') {
		raw = raw[:10]
	}
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range completionLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DispatchOutcome is the result of sending one message to one recipient.
type DispatchOutcome struct {
	Mobile  string `json:"mobile"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NotificationResult is produced per record per run. It is never persisted.
type NotificationResult struct {
	WorkID        string            `json:"workId"`
	Message       string            `json:"message"`
	Recipients    []string          `json:"recipients"`
	RemainingDays string            `json:"remainingDays"`
	Outcomes      []DispatchOutcome `json:"outcomes"`
}

// Delivered counts successful outcomes.
func (r NotificationResult) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}
